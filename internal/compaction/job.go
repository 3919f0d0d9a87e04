// Package compaction implements the preview/confirm/rollback workflow for
// shortening example sentences.
package compaction

import (
	"time"

	"github.com/ankichat/ankichat/internal/model"
)

// State of a compaction job. A token that has been applied or rolled back can
// never become appliable again without a fresh preview.
type State string

const (
	StateNone       State = "NONE"
	StatePreviewed  State = "PREVIEWED"
	StateApplied    State = "APPLIED"
	StateExpired    State = "EXPIRED"
	StateRolledBack State = "ROLLED_BACK"
)

// Event drives a job transition.
type Event string

const (
	EventPreview  Event = "preview"
	EventApply    Event = "apply"
	EventExpire   Event = "expire"
	EventRollback Event = "rollback"
)

// Change is one proposed field mutation. Unchanged entries are carried for
// reporting but never written.
type Change struct {
	NoteID    int64
	Word      string
	Original  string
	Candidate string
	Unchanged bool
}

// Job is the ephemeral server-side record between preview and apply. It lives
// only in the injected store and does not survive a process restart.
type Job struct {
	Token       string
	Deck        string
	Field       string
	BackupField string
	Changes     []Change
	CreatedAt   time.Time
	ExpiresAt   time.Time
	State       State
}

// Transition is the pure state-machine step. It returns the next state or the
// typed lifecycle error for an illegal move; it performs no I/O.
func Transition(s State, ev Event) (State, error) {
	switch ev {
	case EventPreview:
		if s == StateNone {
			return StatePreviewed, nil
		}
	case EventApply:
		switch s {
		case StatePreviewed:
			return StateApplied, nil
		case StateExpired:
			return s, model.ErrTokenExpired
		case StateApplied, StateRolledBack:
			return s, model.ErrAlreadyApplied
		}
	case EventExpire:
		if s == StatePreviewed {
			return StateExpired, nil
		}
	case EventRollback:
		if s == StateApplied {
			return StateRolledBack, nil
		}
	}
	return s, model.Validationf("illegal transition %s on %s", ev, s)
}

// ChangedCount returns how many changes would actually be written.
func (j *Job) ChangedCount() int {
	n := 0
	for _, c := range j.Changes {
		if !c.Unchanged && c.Candidate != c.Original {
			n++
		}
	}
	return n
}
