// Package assistant routes natural-language messages to the deck, card and
// compaction capabilities. It holds capability interfaces, never concrete
// backends, so tests substitute fakes.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ankichat/ankichat/internal/cards"
	"github.com/ankichat/ankichat/internal/config"
	"github.com/ankichat/ankichat/internal/llm"
	"github.com/ankichat/ankichat/internal/model"
)

// Reply is the uniform user-visible result of routing one message.
type Reply struct {
	Message           string      `json:"message"`
	Action            string      `json:"action"`
	Data              interface{} `json:"data,omitempty"`
	NeedsConfirmation bool        `json:"needs_confirmation"`
	ConfirmToken      string      `json:"confirm_token,omitempty"`
}

// DeckLister lists decks with counts.
type DeckLister interface {
	List(ctx context.Context) ([]model.Deck, error)
}

// CardLister lists card projections.
type CardLister interface {
	List(ctx context.Context, req cards.ListRequest) (*model.CardPage, error)
}

// Compactor is the preview/apply/rollback capability.
type Compactor interface {
	Preview(ctx context.Context, deck, field string, previewCount, totalLimit int) (*model.PreviewResult, error)
	Apply(ctx context.Context, token string) (*model.ApplySummary, error)
	Rollback(ctx context.Context, deck, field string) (*model.RollbackSummary, error)
}

// Assistant parses intent and dispatches.
type Assistant struct {
	llm       llm.Model
	decks     DeckLister
	cards     CardLister
	compactor Compactor
	cfg       *config.Config
	log       zerolog.Logger
}

func New(m llm.Model, decks DeckLister, cards CardLister, compactor Compactor, cfg *config.Config, log zerolog.Logger) *Assistant {
	return &Assistant{llm: m, decks: decks, cards: cards, compactor: compactor, cfg: cfg, log: log}
}

// confirmation signals that skip intent classification when a token is pending.
var confirmWords = map[string]bool{
	"yes": true, "y": true, "confirm": true, "apply": true,
	"do it": true, "go ahead": true, "ok": true, "okay": true,
}

func isConfirmation(message string) bool {
	return confirmWords[strings.ToLower(strings.TrimSpace(message))]
}

// Route handles one chat message. Domain errors are translated into
// human-readable replies with a suggested next action; nothing is silently
// swallowed.
func (a *Assistant) Route(ctx context.Context, message, confirmToken string) *Reply {
	if confirmToken != "" && isConfirmation(message) {
		return a.applyToken(ctx, confirmToken)
	}

	intent, err := a.llm.ParseIntent(ctx, message)
	if err != nil {
		if model.IsValidation(err) {
			return &Reply{Action: "clarify", Message: fmt.Sprintf("I couldn't use one of the values in that request: %v. Please rephrase with plain numbers.", err)}
		}
		a.log.Warn().Err(err).Msg("intent parse failed")
		return &Reply{Action: "clarify", Message: "I couldn't work out what you want me to do. Try something like \"list 5 cards in deck French\" or \"compact examples in News B2\"."}
	}

	a.log.Info().Str("action", string(intent.Action)).Str("deck", intent.Deck).Msg("intent parsed")

	switch intent.Action {
	case llm.ActionListDecks:
		return a.listDecks(ctx)
	case llm.ActionListCards:
		return a.listCards(ctx, intent)
	case llm.ActionRollback:
		return a.rollback(ctx, intent)
	case llm.ActionCompact:
		if confirmToken != "" && intent.Confirm {
			return a.applyToken(ctx, confirmToken)
		}
		return a.preview(ctx, intent)
	default:
		return &Reply{Action: "clarify", Message: "I don't know how to do that yet."}
	}
}

func (a *Assistant) applyToken(ctx context.Context, token string) *Reply {
	summary, err := a.compactor.Apply(ctx, token)
	if err != nil {
		return errorReply("compact_examples", err)
	}
	return &Reply{
		Action: "compact_examples",
		Data:   summary,
		Message: fmt.Sprintf("Done. Updated %d notes, skipped %d. Say \"rollback\" with the deck name to undo.",
			summary.Applied, summary.Skipped),
	}
}

func (a *Assistant) preview(ctx context.Context, intent *llm.Intent) *Reply {
	field := intent.Field
	if field == "" {
		field = "Example"
	}
	previewCount := intent.PreviewCount
	if previewCount == 0 {
		previewCount = a.cfg.DefaultPreviewCount
	}
	limit := intent.Limit
	if limit == 0 {
		limit = a.cfg.DefaultCompactLimit
	}

	res, err := a.compactor.Preview(ctx, intent.Deck, field, previewCount, limit)
	if err != nil {
		return errorReply("compact_examples", err)
	}
	if res.Count == 0 {
		return &Reply{
			Action:  "compact_examples",
			Data:    res,
			Message: fmt.Sprintf("Nothing to compact in deck '%s' (field %s).", res.Deck, res.Field),
		}
	}
	return &Reply{
		Action:            "compact_examples",
		Data:              res,
		NeedsConfirmation: true,
		ConfirmToken:      res.Token,
		Message: fmt.Sprintf("Found %d examples to compact in deck '%s'. Preview:\n\n%sReply \"yes\" to apply these changes.",
			res.Count, res.Deck, formatDiffs(res.Sample)),
	}
}

func (a *Assistant) rollback(ctx context.Context, intent *llm.Intent) *Reply {
	field := intent.Field
	if field == "" {
		field = "Example"
	}
	summary, err := a.compactor.Rollback(ctx, intent.Deck, field)
	if err != nil {
		return errorReply("rollback", err)
	}
	if summary.Restored == 0 {
		return &Reply{Action: "rollback", Data: summary,
			Message: fmt.Sprintf("No compacted examples to restore in deck '%s'.", intent.Deck)}
	}
	return &Reply{Action: "rollback", Data: summary,
		Message: fmt.Sprintf("Restored %d notes in deck '%s' from backup.", summary.Restored, intent.Deck)}
}

func (a *Assistant) listCards(ctx context.Context, intent *llm.Intent) *Reply {
	limit := intent.Limit
	if limit == 0 {
		limit = a.cfg.DefaultListLimit
	}
	page, err := a.cards.List(ctx, cards.ListRequest{
		Deck:   intent.Deck,
		Field:  intent.Field,
		Filter: intent.Filter,
		Limit:  limit,
		Order:  intent.Position,
	})
	if err != nil {
		return errorReply("list_cards", err)
	}
	if page.TotalFound == 0 {
		return &Reply{Action: "list_cards", Data: page,
			Message: fmt.Sprintf("No cards found in deck '%s'.", intent.Deck)}
	}
	msg := fmt.Sprintf("Found %d cards in deck '%s' (%s field). Showing %d:\n\n%s",
		page.TotalFound, intent.Deck, page.Field, len(page.Items), formatCards(page.Items))
	if page.DeckResolved != "" {
		msg = fmt.Sprintf("Note: resolved deck name to '%s'.\n\n%s", page.DeckResolved, msg)
	}
	return &Reply{Action: "list_cards", Data: page, Message: msg}
}

func (a *Assistant) listDecks(ctx context.Context) *Reply {
	all, err := a.decks.List(ctx)
	if err != nil {
		return errorReply("list_decks", err)
	}
	if len(all) == 0 {
		return &Reply{Action: "list_decks", Message: "No decks found."}
	}
	return &Reply{Action: "list_decks", Data: all,
		Message: fmt.Sprintf("Found %d decks:\n\n%s", len(all), formatDecks(all))}
}

// errorReply maps a typed domain error to a user-visible reply with a
// suggested next action.
func errorReply(action string, err error) *Reply {
	switch {
	case model.IsNotFound(err):
		msg := err.Error()
		if s := model.SuggestionsFrom(err); len(s) > 0 {
			msg = fmt.Sprintf("%v. Valid choices include: %s.", err, strings.Join(s, ", "))
		}
		return &Reply{Action: action, Message: msg}
	case model.IsJobInProgress(err):
		return &Reply{Action: action, Message: "A compaction preview for that deck and field is already waiting for confirmation. Confirm it or let it expire first."}
	case model.IsInvalidToken(err):
		return &Reply{Action: action, Message: "That confirmation token is not valid. Run a new preview first."}
	case model.IsTokenExpired(err):
		return &Reply{Action: action, Message: "That preview has expired; nothing was changed. Run a new preview."}
	case model.IsAlreadyApplied(err):
		return &Reply{Action: action, Message: "Those changes were already applied; nothing was changed again."}
	case model.IsValidation(err):
		return &Reply{Action: action, Message: fmt.Sprintf("Invalid request: %v.", err)}
	case model.IsBackendUnavailable(err):
		return &Reply{Action: action, Message: "I can't reach Anki right now. Make sure Anki is running with AnkiConnect, then try again."}
	case model.IsModelFailure(err):
		return &Reply{Action: action, Message: "The language model call failed. Please try again."}
	default:
		return &Reply{Action: action, Message: fmt.Sprintf("Something went wrong: %v.", err)}
	}
}

func formatDiffs(diffs []model.PreviewDiff) string {
	var b strings.Builder
	for _, d := range diffs {
		fmt.Fprintf(&b, "Note %d (word: '%s'):\n  Old: %s\n  New: %s\n\n", d.NoteID, d.Word, d.Old, d.New)
	}
	return b.String()
}

func formatCards(items []model.Card) string {
	var b strings.Builder
	for i, c := range items {
		text := c.Text
		if len(text) > 100 {
			text = text[:100] + "..."
		}
		fmt.Fprintf(&b, "%d. Note %d (score %.2f):\n   %s\n", i+1, c.NoteID, c.Score, text)
		if c.Reasoning != "" {
			fmt.Fprintf(&b, "   Reason: %s\n", c.Reasoning)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatDecks(all []model.Deck) string {
	var b strings.Builder
	for i, d := range all {
		fmt.Fprintf(&b, "%d. %s\n   Notes: %d, Examples: %d\n\n", i+1, d.Name, d.NoteCount, d.ExampleCount)
	}
	return b.String()
}
