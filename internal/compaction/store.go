package compaction

import (
	"context"
	"sync"
	"time"
)

// Store holds in-flight jobs keyed by confirmation token. It is an explicit,
// injected component so tests construct isolated stores per case; there is no
// process-wide map. Contents are lost on restart, which is acceptable: the
// caller re-previews.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job), now: time.Now}
}

// Put registers a freshly previewed job.
func (s *Store) Put(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.Token] = j
}

// Get returns the job for a token, expiring it first when past its TTL.
// Returns nil for unknown tokens.
func (s *Store) Get(token string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[token]
	if !ok {
		return nil
	}
	s.expireLocked(j)
	return j
}

// Update persists a job's new state. The store owns the job pointer, so this
// only needs to exist for readability at call sites.
func (s *Store) Update(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.Token] = j
}

// HasLive reports whether an unexpired PREVIEWED job already covers the
// deck+field pair. Used to refuse overlapping preview batches.
func (s *Store) HasLive(deck, field string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		s.expireLocked(j)
		if j.State == StatePreviewed && j.Deck == deck && j.Field == field {
			return true
		}
	}
	return false
}

// expireLocked moves a past-TTL PREVIEWED job to EXPIRED. Callers hold s.mu.
func (s *Store) expireLocked(j *Job) {
	if j.State == StatePreviewed && s.now().After(j.ExpiresAt) {
		if next, err := Transition(j.State, EventExpire); err == nil {
			j.State = next
		}
	}
}

// Sweep removes jobs that are terminal or expired longer than retain ago.
func (s *Store) Sweep(retain time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-retain)
	for token, j := range s.jobs {
		s.expireLocked(j)
		if j.State != StatePreviewed && j.ExpiresAt.Before(cutoff) {
			delete(s.jobs, token)
		}
	}
}

// StartSweep launches a background goroutine sweeping every interval until
// ctx is done.
func (s *Store) StartSweep(ctx context.Context, interval, retain time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(retain)
			}
		}
	}()
}
