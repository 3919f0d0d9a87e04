// Package cards lists and filters card projections with hard caps.
package cards

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ankichat/ankichat/internal/anki"
	"github.com/ankichat/ankichat/internal/decks"
	"github.com/ankichat/ankichat/internal/llm"
	"github.com/ankichat/ankichat/internal/model"
)

// fieldPriority is the auto-detection order for content fields.
var fieldPriority = []string{"Example", "Front", "Text", "Back", "Definition", "Meaning", "Translation"}

// candidate window bounds for LLM filtering: the model never sees more than
// this many raw notes, regardless of collection size.
const (
	filterWindowFactor = 4
	filterWindowCap    = 40
)

// DeckResolver resolves a requested deck name against live data.
type DeckResolver interface {
	ResolveLive(ctx context.Context, requested string) (*decks.Match, error)
}

// ListRequest carries the parameters for one listing. Limit is clamped, not
// validated: out-of-range values are pulled into [1, max].
type ListRequest struct {
	Deck   string
	Field  string // empty means auto-detect
	Filter string // natural-language filter, delegated to the model
	Limit  int
	Order  string // "top" (default) or "bottom"
}

// Service implements card listing over the backend.
type Service struct {
	backend  anki.Connector
	resolver DeckResolver
	llm      llm.Model
	maxLimit int
	log      zerolog.Logger
}

func NewService(backend anki.Connector, resolver DeckResolver, m llm.Model, maxLimit int, log zerolog.Logger) *Service {
	return &Service{backend: backend, resolver: resolver, llm: m, maxLimit: maxLimit, log: log}
}

// Clamp pulls limit into [1, max]. Exposed for the orchestrator, which applies
// the same policy to intent parameters.
func Clamp(limit, max int) int {
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}

// List returns at most clamp(limit) cards from the resolved deck, either in
// collection order or filtered by the model over a bounded candidate window.
func (s *Service) List(ctx context.Context, req ListRequest) (*model.CardPage, error) {
	limit := Clamp(req.Limit, s.maxLimit)

	match, err := s.resolver.ResolveLive(ctx, req.Deck)
	if err != nil {
		return nil, err
	}
	deck := match.Name

	field := strings.TrimSpace(req.Field)
	if field == "" {
		field, err = s.detectField(ctx, deck)
		if err != nil {
			return nil, err
		}
	}

	ids, err := s.backend.FindNotes(ctx, anki.FieldQuery(deck, field, ""))
	if err != nil {
		return nil, err
	}

	page := &model.CardPage{Field: field, TotalFound: len(ids)}
	if !match.Exact {
		page.DeckResolved = deck
	}
	if len(ids) == 0 {
		return page, nil
	}

	// Note ids are creation timestamps, so ascending id order is collection
	// order and doubles as the tie-break.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if strings.EqualFold(req.Order, "bottom") {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}

	if req.Filter != "" {
		items, err := s.filterCards(ctx, ids, field, req.Filter, limit)
		if err != nil {
			return nil, err
		}
		page.Items = items
		page.FilterApplied = req.Filter
		return page, nil
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}
	notes, err := s.backend.NotesInfo(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		text, ok := n.Field(field)
		if !ok || text == "" {
			// never return a partially-validated record
			continue
		}
		page.Items = append(page.Items, model.Card{NoteID: n.ID, Text: text, Score: 1})
	}
	return page, nil
}

// detectField picks the content field for a deck: first priority-list match
// against the note type's declared field order, else the first declared field.
func (s *Service) detectField(ctx context.Context, deck string) (string, error) {
	ids, err := s.backend.FindNotes(ctx, "deck:\""+deck+"\"")
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", &model.NotFoundError{Kind: "field", Requested: "(auto)", Suggestions: nil}
	}

	sample, err := s.backend.NotesInfo(ctx, ids[:1])
	if err != nil {
		return "", err
	}
	if len(sample) == 0 {
		return "", &model.NotFoundError{Kind: "field", Requested: "(auto)", Suggestions: nil}
	}

	declared, err := s.backend.ModelFieldNames(ctx, sample[0].ModelName)
	if err != nil {
		return "", err
	}
	if len(declared) == 0 {
		return "", &model.NotFoundError{Kind: "field", Requested: "(auto)", Suggestions: nil}
	}

	for _, want := range fieldPriority {
		for _, name := range declared {
			if name == want {
				return name, nil
			}
		}
	}
	s.log.Debug().Str("deck", deck).Str("field", declared[0]).Msg("no priority field, using first declared")
	return declared[0], nil
}

// filterCards hands a bounded window of candidates to the model and maps the
// matches back onto card projections.
func (s *Service) filterCards(ctx context.Context, ids []int64, field, filter string, limit int) ([]model.Card, error) {
	window := limit * filterWindowFactor
	if window > filterWindowCap {
		window = filterWindowCap
	}
	if len(ids) > window {
		ids = ids[:window]
	}

	notes, err := s.backend.NotesInfo(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]string, len(notes))
	candidates := make([]llm.Candidate, 0, len(notes))
	for _, n := range notes {
		text, ok := n.Field(field)
		if !ok || text == "" {
			continue
		}
		byID[n.ID] = text
		candidates = append(candidates, llm.Candidate{NoteID: n.ID, Text: text})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	matches, err := s.llm.FilterCards(ctx, filter, candidates, limit)
	if err != nil {
		return nil, err
	}

	items := make([]model.Card, 0, len(matches))
	for _, m := range matches {
		text, ok := byID[m.NoteID]
		if !ok {
			// the model invented an id; drop it
			continue
		}
		items = append(items, model.Card{NoteID: m.NoteID, Text: text, Score: m.Score, Reasoning: m.Reasoning})
		if len(items) == limit {
			break
		}
	}
	return items, nil
}
