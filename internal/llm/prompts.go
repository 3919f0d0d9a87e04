package llm

import (
	"fmt"
	"strings"
)

func intentPrompt(message string) string {
	return fmt.Sprintf(`Parse this natural language command into structured parameters for an Anki assistant.

Command: %s

Return a JSON object with these fields:
- action: "compact_examples", "rollback", "list_cards", or "list_decks"
- deck: deck name (string, required for all actions except "list_decks")
- field: field name (string, optional)
- limit: maximum number of notes (integer, optional)
- preview_count: number of preview items (integer, optional)
- filter_description: free-text filter for list_cards (string, optional)
- position: "top" or "bottom" for list_cards (string, optional)
- confirm: whether the user already confirmed (boolean, default false)

Examples:
- "Compact examples in deck 'News B2', preview 5, apply 30" -> {"action": "compact_examples", "deck": "News B2", "preview_count": 5, "limit": 30, "confirm": false}
- "Rollback compacted examples in 'News B2'" -> {"action": "rollback", "deck": "News B2"}
- "List top 10 cards in the A deck" -> {"action": "list_cards", "deck": "A", "limit": 10, "position": "top"}
- "Show 5 cards about cooking in deck B" -> {"action": "list_cards", "deck": "B", "limit": 5, "filter_description": "about cooking"}
- "List my decks" -> {"action": "list_decks"}

JSON response:`, message)
}

func compactPrompt(target, sentence string) string {
	return fmt.Sprintf(`Compact this example sentence while following these constraints:

Target word: %s
Current sentence: %s

Constraints:
1. Keep the target word EXACTLY as given (unchanged form)
2. Make it 10-16 words total
3. Use CEFR B2 level vocabulary and everyday context
4. No named entities, no rare idioms
5. Use the most common sense of the word
6. Ensure the target word is present in the output

Return only the compacted sentence, nothing else.`, target, sentence)
}

func filterPrompt(description string, cards []Candidate, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Select the cards that best match this description: %s\n\n", description)
	b.WriteString("Cards:\n")
	for _, c := range cards {
		fmt.Fprintf(&b, "- note_id %d: %s\n", c.NoteID, c.Text)
	}
	fmt.Fprintf(&b, `
Return a JSON array with at most %d entries, best matches first, each shaped as
{"note_id": <id>, "score": <0.0-1.0>, "reasoning": "<one short sentence>"}.
Only include cards that actually match. JSON response:`, limit)
	return b.String()
}
