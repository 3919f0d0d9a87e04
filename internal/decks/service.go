package decks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ankichat/ankichat/internal/anki"
	"github.com/ankichat/ankichat/internal/model"
)

// Service lists decks and resolves deck references against live data.
type Service struct {
	backend anki.Connector
	log     zerolog.Logger
}

func NewService(backend anki.Connector, log zerolog.Logger) *Service {
	return &Service{backend: backend, log: log}
}

// List returns every deck with its note count and example-bearing note count.
// The snapshot is fetched fresh per call, never cached.
func (s *Service) List(ctx context.Context) ([]model.Deck, error) {
	names, err := s.backend.DeckNames(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.Deck, 0, len(names))
	for _, name := range names {
		d := model.Deck{Name: name}

		ids, err := s.backend.FindNotes(ctx, fmt.Sprintf("deck:%q", name))
		if err != nil {
			// Keep the deck visible with zero counts rather than dropping it.
			s.log.Warn().Err(err).Str("deck", name).Msg("deck stats unavailable")
			out = append(out, d)
			continue
		}
		d.NoteCount = len(ids)

		examples, err := s.backend.FindNotes(ctx, anki.FieldQuery(name, "Example", ""))
		if err == nil {
			d.ExampleCount = len(examples)
		}
		out = append(out, d)
	}
	return out, nil
}

// ResolveLive resolves a requested deck name against the current deck list.
func (s *Service) ResolveLive(ctx context.Context, requested string) (*Match, error) {
	names, err := s.backend.DeckNames(ctx)
	if err != nil {
		return nil, err
	}
	m, err := Resolve(requested, names)
	if err != nil {
		return nil, err
	}
	if !m.Exact {
		s.log.Info().Str("requested", requested).Str("resolved", m.Name).
			Float64("score", m.Score).Msg("deck resolved fuzzily")
	}
	return m, nil
}
