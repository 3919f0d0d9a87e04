package compaction

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ankichat/ankichat/internal/anki"
	"github.com/ankichat/ankichat/internal/cards"
	"github.com/ankichat/ankichat/internal/decks"
	"github.com/ankichat/ankichat/internal/llm"
	"github.com/ankichat/ankichat/internal/metrics"
	"github.com/ankichat/ankichat/internal/model"
)

// Candidate acceptance bounds: the model is asked for 10-16 words and a
// candidate is rejected when it leaves that range by more than the tolerance
// or drops the vocabulary token.
const (
	wordMin       = 10
	wordMax       = 16
	wordTolerance = 2
)

// DeckResolver resolves a requested deck name against live data.
type DeckResolver interface {
	ResolveLive(ctx context.Context, requested string) (*decks.Match, error)
}

// Options fixes the engine's policy knobs.
type Options struct {
	MaxLimit     int           // hard cap on a preview batch
	TokenTTL     time.Duration // preview-to-apply window
	CallDelay    time.Duration // minimum delay between model calls
	BackupSuffix string        // e.g. "_Original"
	MarkerTag    string        // tag set on every compacted note
}

// Engine orchestrates preview, apply and rollback.
type Engine struct {
	backend  anki.Connector
	resolver DeckResolver
	llm      llm.Model
	store    *Store
	opts     Options
	log      zerolog.Logger

	sleep func(time.Duration) // swapped out in tests
}

func NewEngine(backend anki.Connector, resolver DeckResolver, m llm.Model, store *Store, opts Options, log zerolog.Logger) *Engine {
	return &Engine{
		backend:  backend,
		resolver: resolver,
		llm:      m,
		store:    store,
		opts:     opts,
		log:      log,
		sleep:    time.Sleep,
	}
}

// Preview proposes compactions for up to totalLimit notes and stores the batch
// behind a fresh single-use token. The returned sample holds the first
// previewCount proposals; apply acts on the whole batch.
func (e *Engine) Preview(ctx context.Context, deck, field string, previewCount, totalLimit int) (*model.PreviewResult, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, model.Validationf("field is required")
	}

	match, err := e.resolver.ResolveLive(ctx, deck)
	if err != nil {
		return nil, err
	}
	deck = match.Name

	if e.store.HasLive(deck, field) {
		return nil, model.ErrJobInProgress
	}

	totalLimit = cards.Clamp(totalLimit, e.opts.MaxLimit)
	previewCount = cards.Clamp(previewCount, totalLimit)

	ids, err := e.backend.FindNotes(ctx, anki.FieldQuery(deck, field, e.opts.MarkerTag))
	if err != nil {
		return nil, err
	}
	if len(ids) > totalLimit {
		ids = ids[:totalLimit]
	}

	result := &model.PreviewResult{Deck: deck, Field: field, TotalLimit: totalLimit}
	if len(ids) == 0 {
		return result, nil
	}

	notes, err := e.backend.NotesInfo(ctx, ids)
	if err != nil {
		return nil, err
	}

	changes := make([]Change, 0, len(notes))
	calls := 0
	for _, n := range notes {
		word := anki.Headword(n)
		if word == "" {
			e.log.Warn().Int64("note_id", n.ID).Msg("skipping note without headword")
			continue
		}
		text, ok := n.Field(field)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}

		if calls > 0 && e.opts.CallDelay > 0 {
			e.sleep(e.opts.CallDelay)
		}
		calls++

		change := Change{NoteID: n.ID, Word: word, Original: text}
		candidate, err := e.llm.CompactSentence(ctx, word, text)
		switch {
		case err != nil:
			e.log.Warn().Err(err).Int64("note_id", n.ID).Msg("compaction call failed, keeping original")
			change.Candidate = text
			change.Unchanged = true
		case !acceptCandidate(word, candidate):
			e.log.Debug().Int64("note_id", n.ID).Str("candidate", candidate).Msg("candidate rejected, keeping original")
			change.Candidate = text
			change.Unchanged = true
		default:
			change.Candidate = candidate
			change.Unchanged = candidate == text
		}
		changes = append(changes, change)
	}

	job := &Job{
		Token:       uuid.NewString(),
		Deck:        deck,
		Field:       field,
		BackupField: field + e.opts.BackupSuffix,
		Changes:     changes,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(e.opts.TokenTTL),
	}
	job.State, err = Transition(StateNone, EventPreview)
	if err != nil {
		return nil, err
	}

	result.Count = job.ChangedCount()
	if result.Count == 0 {
		// nothing to confirm; no token issued
		return result, nil
	}

	e.store.Put(job)
	result.Token = job.Token
	for _, c := range changes {
		if c.Unchanged || c.Candidate == c.Original {
			continue
		}
		result.Sample = append(result.Sample, model.PreviewDiff{
			NoteID: c.NoteID, Word: c.Word, Old: c.Original, New: c.Candidate,
		})
		if len(result.Sample) == previewCount {
			break
		}
	}
	return result, nil
}

// Apply consumes a previewed token: backs up, writes candidates and tags each
// note. A note-level failure is counted and skipped; a batch where nothing
// could be written at all leaves the job PREVIEWED so the same token can be
// retried (safe because the backup write is conditional on an empty backup).
func (e *Engine) Apply(ctx context.Context, token string) (*model.ApplySummary, error) {
	job := e.store.Get(token)
	if job == nil {
		return nil, model.ErrInvalidToken
	}
	if _, err := Transition(job.State, EventApply); err != nil {
		return nil, err
	}

	summary := &model.ApplySummary{}
	attempted := 0
	for _, c := range job.Changes {
		if c.Unchanged || c.Candidate == c.Original {
			continue
		}
		attempted++
		if err := e.applyOne(ctx, job, c); err != nil {
			e.log.Warn().Err(err).Int64("note_id", c.NoteID).Msg("note update failed, skipping")
			summary.Skipped++
			continue
		}
		summary.Applied++
		summary.Tagged++
	}

	if attempted > 0 && summary.Applied == 0 {
		// total failure: keep the job retryable
		return nil, model.ErrBackendUnavailable
	}

	next, err := Transition(job.State, EventApply)
	if err != nil {
		return nil, err
	}
	job.State = next
	e.store.Update(job)
	metrics.CompactionsApplied.Add(float64(summary.Applied))
	return summary, nil
}

// applyOne writes the backup (only when empty), the candidate and the marker
// tag for a single note.
func (e *Engine) applyOne(ctx context.Context, job *Job, c Change) error {
	notes, err := e.backend.NotesInfo(ctx, []int64{c.NoteID})
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		return model.Validationf("note %d no longer exists", c.NoteID)
	}

	// Write-once backup: a second compaction must never clobber the true
	// original captured by the first one.
	if current, ok := notes[0].Field(job.BackupField); !ok || strings.TrimSpace(current) == "" {
		if err := e.backend.UpdateNoteFields(ctx, c.NoteID, map[string]string{job.BackupField: c.Original}); err != nil {
			return err
		}
	}

	if err := e.backend.UpdateNoteFields(ctx, c.NoteID, map[string]string{job.Field: c.Candidate}); err != nil {
		return err
	}
	return e.backend.AddTags(ctx, []int64{c.NoteID}, e.opts.MarkerTag)
}

// Rollback restores primaries from backup fields for every marked note in the
// deck. It needs no token: it operates on persisted backup state, so it works
// across process restarts and is idempotent.
func (e *Engine) Rollback(ctx context.Context, deck, field string) (*model.RollbackSummary, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, model.Validationf("field is required")
	}

	match, err := e.resolver.ResolveLive(ctx, deck)
	if err != nil {
		return nil, err
	}
	deck = match.Name
	backupField := field + e.opts.BackupSuffix

	ids, err := e.backend.FindNotes(ctx, anki.RollbackQuery(deck, e.opts.MarkerTag, backupField))
	if err != nil {
		return nil, err
	}

	summary := &model.RollbackSummary{}
	if len(ids) == 0 {
		return summary, nil
	}

	notes, err := e.backend.NotesInfo(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		backup, ok := n.Field(backupField)
		if !ok || strings.TrimSpace(backup) == "" {
			continue
		}
		fields := map[string]string{field: backup, backupField: ""}
		if err := e.backend.UpdateNoteFields(ctx, n.ID, fields); err != nil {
			e.log.Warn().Err(err).Int64("note_id", n.ID).Msg("rollback failed for note")
			continue
		}
		if err := e.backend.RemoveTags(ctx, []int64{n.ID}, e.opts.MarkerTag); err != nil {
			e.log.Warn().Err(err).Int64("note_id", n.ID).Msg("untag failed for note")
		} else {
			summary.Untagged++
		}
		summary.Restored++
	}

	e.retireApplied(deck, field)
	metrics.NotesRestored.Add(float64(summary.Restored))
	return summary, nil
}

// retireApplied moves any APPLIED job for the deck+field to ROLLED_BACK so its
// token stays dead.
func (e *Engine) retireApplied(deck, field string) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	for _, j := range e.store.jobs {
		if j.Deck == deck && j.Field == field && j.State == StateApplied {
			if next, err := Transition(j.State, EventRollback); err == nil {
				j.State = next
			}
		}
	}
}

// acceptCandidate enforces the compaction contract: the vocabulary token must
// survive and the word count must stay near the requested range.
func acceptCandidate(word, candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	if !strings.Contains(strings.ToLower(candidate), strings.ToLower(word)) {
		return false
	}
	n := len(strings.Fields(candidate))
	return n >= wordMin-wordTolerance && n <= wordMax+wordTolerance
}
