// Package llm wraps the OpenAI chat API behind the narrow collaborator
// interface the assistant needs: intent parsing, card filtering and sentence
// compaction. Calls are synchronous, single-attempt; failures surface as
// model.ErrModelFailure.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ankichat/ankichat/internal/model"
)

// Model is the language-model capability interface.
type Model interface {
	ParseIntent(ctx context.Context, message string) (*Intent, error)
	CompactSentence(ctx context.Context, target, sentence string) (string, error)
	FilterCards(ctx context.Context, description string, cards []Candidate, limit int) ([]Match, error)
	Ping(ctx context.Context) error
}

// Candidate is one card handed to the model for filtering. The caller bounds
// the candidate set before it reaches the model.
type Candidate struct {
	NoteID int64  `json:"note_id"`
	Text   string `json:"text"`
}

// Match is one filtered card returned by the model.
type Match struct {
	NoteID    int64   `json:"note_id"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Client calls the OpenAI chat completions API.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// New creates a Client for the given API key and model name.
func New(apiKey, modelName string, timeout time.Duration) *Client {
	return &Client{
		api:     openai.NewClient(apiKey),
		model:   modelName,
		timeout: timeout,
	}
}

// complete performs one chat completion and returns the trimmed message text.
func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrModelFailure, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", model.ErrModelFailure)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Ping verifies the API is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: %v", model.ErrModelFailure, err)
	}
	return nil
}

// ParseIntent classifies a user message into one of the closed intent set.
func (c *Client) ParseIntent(ctx context.Context, message string) (*Intent, error) {
	out, err := c.complete(ctx, intentPrompt(message), 500)
	if err != nil {
		return nil, err
	}
	return decodeIntent(out)
}

// CompactSentence asks the model for a shortened sentence. Validation of the
// word range and token preservation is the caller's responsibility.
func (c *Client) CompactSentence(ctx context.Context, target, sentence string) (string, error) {
	return c.complete(ctx, compactPrompt(target, sentence), 200)
}

// FilterCards classifies the bounded candidate set against a natural-language
// description and returns up to limit matches.
func (c *Client) FilterCards(ctx context.Context, description string, cards []Candidate, limit int) ([]Match, error) {
	out, err := c.complete(ctx, filterPrompt(description, cards, limit), 1000)
	if err != nil {
		return nil, err
	}

	var matches []Match
	if err := json.Unmarshal([]byte(stripFences(out)), &matches); err != nil {
		return nil, fmt.Errorf("%w: decode filter response: %v", model.ErrModelFailure, err)
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// stripFences removes a markdown code fence wrapper, if present.
func stripFences(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimSpace(s)
}

// coerceInt converts a JSON value to int. Numbers given as quoted digits are
// accepted; anything else is a validation error, not a crash.
func coerceInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, model.Validationf("not an integer: %v", v)
			}
			return int(f), nil
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, model.Validationf("not an integer: %q", n)
		}
		return i, nil
	default:
		return 0, model.Validationf("not an integer: %v", v)
	}
}
