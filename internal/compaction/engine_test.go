package compaction

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ankichat/ankichat/internal/decks"
	"github.com/ankichat/ankichat/internal/llm"
	"github.com/ankichat/ankichat/internal/model"
)

// --- Fakes ---

type fakeBackend struct {
	notes       map[int64]*model.Note
	failUpdates bool
	failNote    map[int64]bool
	updateCalls int
}

func newFakeBackend(n int) *fakeBackend {
	f := &fakeBackend{notes: map[int64]*model.Note{}, failNote: map[int64]bool{}}
	for i := 1; i <= n; i++ {
		id := int64(i)
		f.notes[id] = &model.Note{
			ID:        id,
			ModelName: "Vocab",
			Fields: []model.NoteField{
				{Name: "Word", Value: fmt.Sprintf("word%d", i), Order: 0},
				{Name: "Example", Value: fmt.Sprintf("This is the original very long example sentence number %d containing word%d somewhere inside it.", i, i), Order: 1},
				{Name: "Example_Original", Value: "", Order: 2},
			},
		}
	}
	return f
}

func (f *fakeBackend) setField(id int64, name, value string) {
	n := f.notes[id]
	for i := range n.Fields {
		if n.Fields[i].Name == name {
			n.Fields[i].Value = value
			return
		}
	}
	n.Fields = append(n.Fields, model.NoteField{Name: name, Value: value, Order: len(n.Fields)})
}

func (f *fakeBackend) Version(ctx context.Context) (int, error) { return 6, nil }

func (f *fakeBackend) DeckNames(ctx context.Context) ([]string, error) {
	return []string{"News B2"}, nil
}

func (f *fakeBackend) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	rollback := strings.Contains(query, " tag:compact_examples")
	for id, n := range f.notes {
		if rollback {
			backup, _ := n.Field("Example_Original")
			if n.HasTag("compact_examples") && backup != "" {
				ids = append(ids, id)
			}
			continue
		}
		text, _ := n.Field("Example")
		if !n.HasTag("compact_examples") && text != "" {
			ids = append(ids, id)
		}
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	return ids, nil
}

func (f *fakeBackend) NotesInfo(ctx context.Context, ids []int64) ([]model.Note, error) {
	var out []model.Note
	for _, id := range ids {
		if n, ok := f.notes[id]; ok {
			copied := *n
			copied.Fields = append([]model.NoteField(nil), n.Fields...)
			copied.Tags = append([]string(nil), n.Tags...)
			out = append(out, copied)
		}
	}
	return out, nil
}

func (f *fakeBackend) UpdateNoteFields(ctx context.Context, id int64, fields map[string]string) error {
	f.updateCalls++
	if f.failUpdates || f.failNote[id] {
		return fmt.Errorf("%w: injected failure", model.ErrBackendUnavailable)
	}
	for name, value := range fields {
		f.setField(id, name, value)
	}
	return nil
}

func (f *fakeBackend) AddTags(ctx context.Context, ids []int64, tag string) error {
	for _, id := range ids {
		if n := f.notes[id]; n != nil && !n.HasTag(tag) {
			n.Tags = append(n.Tags, tag)
		}
	}
	return nil
}

func (f *fakeBackend) RemoveTags(ctx context.Context, ids []int64, tag string) error {
	for _, id := range ids {
		n := f.notes[id]
		if n == nil {
			continue
		}
		kept := n.Tags[:0]
		for _, t := range n.Tags {
			if t != tag {
				kept = append(kept, t)
			}
		}
		n.Tags = kept
	}
	return nil
}

func (f *fakeBackend) ModelFieldNames(ctx context.Context, modelName string) ([]string, error) {
	return []string{"Word", "Example", "Example_Original"}, nil
}

type fakeResolver struct{}

func (fakeResolver) ResolveLive(ctx context.Context, requested string) (*decks.Match, error) {
	return &decks.Match{Name: requested, Exact: true}, nil
}

type fakeModel struct {
	calls   int
	respond func(word, sentence string) (string, error)
}

func (f *fakeModel) CompactSentence(ctx context.Context, word, sentence string) (string, error) {
	f.calls++
	if f.respond != nil {
		return f.respond(word, sentence)
	}
	return fmt.Sprintf("Here the word %s appears in a short everyday sentence about daily life.", word), nil
}

func (f *fakeModel) ParseIntent(ctx context.Context, message string) (*llm.Intent, error) {
	panic("unused")
}
func (f *fakeModel) FilterCards(ctx context.Context, description string, cards []llm.Candidate, limit int) ([]llm.Match, error) {
	panic("unused")
}
func (f *fakeModel) Ping(ctx context.Context) error { return nil }

func testOptions() Options {
	return Options{
		MaxLimit:     50,
		TokenTTL:     10 * time.Minute,
		CallDelay:    0,
		BackupSuffix: "_Original",
		MarkerTag:    "compact_examples",
	}
}

func newTestEngine(backend *fakeBackend, m *fakeModel) (*Engine, *Store) {
	store := NewStore()
	e := NewEngine(backend, fakeResolver{}, m, store, testOptions(), zerolog.Nop())
	return e, store
}

// --- Preview ---

func TestPreviewReturnsSampleAndToken(t *testing.T) {
	backend := newFakeBackend(30)
	m := &fakeModel{}
	e, _ := newTestEngine(backend, m)

	res, err := e.Preview(context.Background(), "News B2", "Example", 5, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Token == "" {
		t.Fatalf("expected a confirmation token")
	}
	if res.Count != 30 {
		t.Fatalf("expected 30 candidates, got %d", res.Count)
	}
	if len(res.Sample) != 5 {
		t.Fatalf("expected sample of 5, got %d", len(res.Sample))
	}
	if m.calls != 30 {
		t.Fatalf("expected one model call per note, got %d", m.calls)
	}
	// preview must not mutate anything
	if backend.updateCalls != 0 {
		t.Fatalf("preview performed %d writes", backend.updateCalls)
	}
}

func TestPreviewRefusesOverlappingBatch(t *testing.T) {
	e, _ := newTestEngine(newFakeBackend(5), &fakeModel{})

	if _, err := e.Preview(context.Background(), "News B2", "Example", 2, 5); err != nil {
		t.Fatalf("first preview failed: %v", err)
	}
	_, err := e.Preview(context.Background(), "News B2", "Example", 2, 5)
	if !model.IsJobInProgress(err) {
		t.Fatalf("expected JobInProgress, got %v", err)
	}
	// a different field is an independent job
	if _, err := e.Preview(context.Background(), "News B2", "Word", 2, 5); model.IsJobInProgress(err) {
		t.Fatalf("different field should not be blocked: %v", err)
	}
}

func TestPreviewClampsLimits(t *testing.T) {
	e, store := newTestEngine(newFakeBackend(60), &fakeModel{})

	res, err := e.Preview(context.Background(), "News B2", "Example", 100, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalLimit != 50 {
		t.Fatalf("expected totalLimit clamped to 50, got %d", res.TotalLimit)
	}
	job := store.Get(res.Token)
	if job == nil || len(job.Changes) != 50 {
		t.Fatalf("expected batch of 50, got %+v", job)
	}
	if len(res.Sample) > 50 {
		t.Fatalf("sample exceeds batch: %d", len(res.Sample))
	}
}

func TestPreviewRejectsCandidateDroppingWord(t *testing.T) {
	m := &fakeModel{respond: func(word, sentence string) (string, error) {
		return "A short sentence that simply forgot to include the required token here today.", nil
	}}
	e, _ := newTestEngine(newFakeBackend(3), m)

	res, err := e.Preview(context.Background(), "News B2", "Example", 5, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Count != 0 {
		t.Fatalf("expected all candidates rejected, got %d", res.Count)
	}
	if res.Token != "" {
		t.Fatalf("no token should be issued when nothing would change")
	}
}

func TestPreviewRejectsCandidateOutsideWordRange(t *testing.T) {
	m := &fakeModel{respond: func(word, sentence string) (string, error) {
		return word + " is short.", nil // far below the word range
	}}
	e, _ := newTestEngine(newFakeBackend(2), m)

	res, err := e.Preview(context.Background(), "News B2", "Example", 5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Count != 0 {
		t.Fatalf("expected rejection of out-of-range candidates, got count %d", res.Count)
	}
}

func TestPreviewRateLimitsModelCalls(t *testing.T) {
	backend := newFakeBackend(3)
	m := &fakeModel{}
	store := NewStore()
	opts := testOptions()
	opts.CallDelay = 100 * time.Millisecond
	e := NewEngine(backend, fakeResolver{}, m, store, opts, zerolog.Nop())

	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	if _, err := e.Preview(context.Background(), "News B2", "Example", 3, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slept) != 2 {
		t.Fatalf("expected delay between calls only (2 sleeps for 3 calls), got %d", len(slept))
	}
	for _, d := range slept {
		if d != 100*time.Millisecond {
			t.Fatalf("unexpected delay %s", d)
		}
	}
}

// --- Apply ---

func TestApplyWritesBackupFieldAndTag(t *testing.T) {
	backend := newFakeBackend(30)
	e, _ := newTestEngine(backend, &fakeModel{})

	res, err := e.Preview(context.Background(), "News B2", "Example", 5, 30)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	summary, err := e.Apply(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if summary.Applied != 30 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	n := backend.notes[1]
	text, _ := n.Field("Example")
	backup, _ := n.Field("Example_Original")
	if !strings.Contains(text, "word1") || strings.Contains(text, "original very long") {
		t.Fatalf("primary field not compacted: %q", text)
	}
	if !strings.Contains(backup, "original very long example sentence number 1") {
		t.Fatalf("backup does not hold the original: %q", backup)
	}
	if !n.HasTag("compact_examples") {
		t.Fatalf("marker tag missing")
	}
}

func TestApplyTokenSingleUse(t *testing.T) {
	backend := newFakeBackend(3)
	e, _ := newTestEngine(backend, &fakeModel{})

	res, _ := e.Preview(context.Background(), "News B2", "Example", 3, 3)
	if _, err := e.Apply(context.Background(), res.Token); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	writesAfterFirst := backend.updateCalls

	_, err := e.Apply(context.Background(), res.Token)
	if !model.IsAlreadyApplied(err) {
		t.Fatalf("expected AlreadyApplied, got %v", err)
	}
	if backend.updateCalls != writesAfterFirst {
		t.Fatalf("second apply performed writes")
	}
}

func TestApplyInvalidToken(t *testing.T) {
	e, _ := newTestEngine(newFakeBackend(1), &fakeModel{})
	_, err := e.Apply(context.Background(), "no-such-token")
	if !model.IsInvalidToken(err) {
		t.Fatalf("expected InvalidToken, got %v", err)
	}
}

func TestApplyExpiredTokenWritesNothing(t *testing.T) {
	backend := newFakeBackend(3)
	e, store := newTestEngine(backend, &fakeModel{})

	start := time.Now()
	clock := start
	store.now = func() time.Time { return clock }

	res, err := e.Preview(context.Background(), "News B2", "Example", 3, 3)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	clock = start.Add(11 * time.Minute)
	_, err = e.Apply(context.Background(), res.Token)
	if !model.IsTokenExpired(err) {
		t.Fatalf("expected Expired, got %v", err)
	}
	if backend.updateCalls != 0 {
		t.Fatalf("expired apply performed %d writes", backend.updateCalls)
	}
}

func TestApplyPartialFailureReportsCounts(t *testing.T) {
	backend := newFakeBackend(5)
	backend.failNote[3] = true
	e, store := newTestEngine(backend, &fakeModel{})

	res, _ := e.Preview(context.Background(), "News B2", "Example", 5, 5)
	summary, err := e.Apply(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if summary.Applied != 4 || summary.Skipped != 1 {
		t.Fatalf("expected 4 applied / 1 skipped, got %+v", summary)
	}
	if store.Get(res.Token).State != StateApplied {
		t.Fatalf("job should be APPLIED after partial success")
	}
}

func TestApplyTotalFailureStaysRetryable(t *testing.T) {
	backend := newFakeBackend(3)
	backend.failUpdates = true
	e, store := newTestEngine(backend, &fakeModel{})

	res, _ := e.Preview(context.Background(), "News B2", "Example", 3, 3)
	_, err := e.Apply(context.Background(), res.Token)
	if !model.IsBackendUnavailable(err) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
	if store.Get(res.Token).State != StatePreviewed {
		t.Fatalf("job must stay PREVIEWED after total failure")
	}

	// backend recovers; the same token applies cleanly
	backend.failUpdates = false
	summary, err := e.Apply(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("retry apply: %v", err)
	}
	if summary.Applied != 3 {
		t.Fatalf("expected 3 applied on retry, got %+v", summary)
	}
}

func TestApplyBackupIsWriteOnce(t *testing.T) {
	backend := newFakeBackend(1)
	// simulate a note whose true original is already in backup from an earlier run
	backend.setField(1, "Example_Original", "The true pre-compaction original sentence that must never be overwritten by later runs.")
	e, _ := newTestEngine(backend, &fakeModel{})

	res, _ := e.Preview(context.Background(), "News B2", "Example", 1, 1)
	if _, err := e.Apply(context.Background(), res.Token); err != nil {
		t.Fatalf("apply: %v", err)
	}

	backup, _ := backend.notes[1].Field("Example_Original")
	if !strings.HasPrefix(backup, "The true pre-compaction original") {
		t.Fatalf("backup was overwritten: %q", backup)
	}
}

// --- Rollback ---

func TestRollbackRestoresAndIsIdempotent(t *testing.T) {
	backend := newFakeBackend(30)
	e, _ := newTestEngine(backend, &fakeModel{})

	res, _ := e.Preview(context.Background(), "News B2", "Example", 5, 30)
	if _, err := e.Apply(context.Background(), res.Token); err != nil {
		t.Fatalf("apply: %v", err)
	}

	summary, err := e.Rollback(context.Background(), "News B2", "Example")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if summary.Restored != 30 || summary.Untagged != 30 {
		t.Fatalf("unexpected rollback summary: %+v", summary)
	}

	n := backend.notes[1]
	text, _ := n.Field("Example")
	backup, _ := n.Field("Example_Original")
	if !strings.Contains(text, "original very long example sentence number 1") {
		t.Fatalf("primary not restored: %q", text)
	}
	if backup != "" {
		t.Fatalf("backup not cleared: %q", backup)
	}
	if n.HasTag("compact_examples") {
		t.Fatalf("marker tag not removed")
	}

	again, err := e.Rollback(context.Background(), "News B2", "Example")
	if err != nil {
		t.Fatalf("second rollback: %v", err)
	}
	if again.Restored != 0 {
		t.Fatalf("second rollback restored %d, want 0", again.Restored)
	}
}

func TestRollbackWorksWithoutJobState(t *testing.T) {
	backend := newFakeBackend(5)
	e, _ := newTestEngine(backend, &fakeModel{})
	res, _ := e.Preview(context.Background(), "News B2", "Example", 5, 5)
	if _, err := e.Apply(context.Background(), res.Token); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// fresh engine and store, as after a process restart
	restarted, _ := newTestEngine(backend, &fakeModel{})
	summary, err := restarted.Rollback(context.Background(), "News B2", "Example")
	if err != nil {
		t.Fatalf("rollback after restart: %v", err)
	}
	if summary.Restored != 5 {
		t.Fatalf("expected 5 restored, got %+v", summary)
	}
}
