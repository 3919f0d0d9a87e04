package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ankichat/ankichat/internal/model"
)

// Action is the closed set of intents the assistant executes.
type Action string

const (
	ActionCompact   Action = "compact_examples"
	ActionRollback  Action = "rollback"
	ActionListCards Action = "list_cards"
	ActionListDecks Action = "list_decks"
)

// Intent is the structured result of classifying a user message.
// Zero-valued numeric fields mean "not specified"; the orchestrator fills
// defaults and clamps.
type Intent struct {
	Action       Action
	Deck         string
	Field        string
	Limit        int
	PreviewCount int
	Filter       string
	Position     string
	Confirm      bool
}

// decodeIntent parses the model's JSON reply strictly against the schema for
// its claimed action. Anything that does not fit is a model failure (bad
// shape) or a validation error (bad numeric), never a guessed default.
func decodeIntent(out string) (*Intent, error) {
	dec := json.NewDecoder(strings.NewReader(stripFences(out)))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: intent is not valid JSON: %v", model.ErrModelFailure, err)
	}

	actionVal, ok := raw["action"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: intent missing action", model.ErrModelFailure)
	}

	in := &Intent{Action: Action(actionVal)}
	switch in.Action {
	case ActionCompact, ActionRollback, ActionListCards, ActionListDecks:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", model.ErrModelFailure, actionVal)
	}

	if v, ok := raw["deck"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: deck is not a string", model.ErrModelFailure)
		}
		in.Deck = strings.TrimSpace(s)
	}
	if v, ok := raw["field"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field is not a string", model.ErrModelFailure)
		}
		in.Field = strings.TrimSpace(s)
	}
	if v, ok := raw["filter_description"]; ok {
		if s, ok := v.(string); ok {
			in.Filter = strings.TrimSpace(s)
		}
	}
	if v, ok := raw["position"]; ok {
		if s, ok := v.(string); ok {
			in.Position = strings.ToLower(strings.TrimSpace(s))
		}
	}
	if v, ok := raw["confirm"]; ok {
		if b, ok := v.(bool); ok {
			in.Confirm = b
		}
	}

	var err error
	if v, ok := raw["limit"]; ok {
		if in.Limit, err = coerceInt(v); err != nil {
			return nil, err
		}
	}
	if v, ok := raw["preview_count"]; ok {
		if in.PreviewCount, err = coerceInt(v); err != nil {
			return nil, err
		}
	}

	// Every action except list_decks needs a deck.
	if in.Action != ActionListDecks && in.Deck == "" {
		return nil, fmt.Errorf("%w: action %s requires a deck", model.ErrModelFailure, in.Action)
	}

	return in, nil
}
