// Package decks resolves fuzzy deck references and lists decks with counts.
package decks

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ankichat/ankichat/internal/model"
)

// Matching constants.
const (
	// acceptThreshold is the minimum similarity (1 - dist/maxLen) for the
	// best candidate to be accepted at all.
	acceptThreshold = 0.72
	// ambiguityMargin is how far below the best score the runner-up must sit;
	// closer than this and the match is ambiguous.
	ambiguityMargin = 0.08
	// maxSuggestions caps the candidates returned on NotFound.
	maxSuggestions = 3
)

// Match is a successful deck resolution.
type Match struct {
	Name  string
	Exact bool
	Score float64
}

// Resolve maps a user-supplied deck name onto one of the available decks.
// Pure function: exact match wins, then case-insensitive exact, then fuzzy
// with threshold and ambiguity checks. On failure the returned error wraps
// model.ErrNotFound and carries the top suggestions; the caller must surface
// them, never silently pick.
func Resolve(requested string, available []string) (*Match, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return nil, model.Validationf("deck name is required")
	}

	for _, name := range available {
		if name == requested {
			return &Match{Name: name, Exact: true, Score: 1}, nil
		}
	}
	for _, name := range available {
		if strings.EqualFold(name, requested) {
			return &Match{Name: name, Exact: true, Score: 1}, nil
		}
	}

	type scored struct {
		name  string
		score float64
	}
	candidates := make([]scored, 0, len(available))
	for _, name := range available {
		candidates = append(candidates, scored{name: name, score: similarity(requested, name)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if len(candidates) > 0 && candidates[0].score >= acceptThreshold {
		unambiguous := len(candidates) == 1 || candidates[0].score-candidates[1].score >= ambiguityMargin
		if unambiguous {
			best := candidates[0]
			return &Match{Name: best.name, Score: best.score}, nil
		}
	}

	n := len(candidates)
	if n > maxSuggestions {
		n = maxSuggestions
	}
	suggestions := make([]string, 0, n)
	for _, c := range candidates[:n] {
		suggestions = append(suggestions, c.name)
	}
	return nil, &model.NotFoundError{Kind: "deck", Requested: requested, Suggestions: suggestions}
}

// similarity is normalized edit distance over lowercased names, in [0,1].
func similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
