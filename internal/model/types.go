package model

// Deck is a read-only snapshot of one deck from the backend.
type Deck struct {
	Name         string `json:"name"`
	NoteCount    int    `json:"noteCount"`
	ExampleCount int    `json:"exampleCount"`
}

// Note is a flashcard record owned by the backend. Fields preserves the
// note type's declared order.
type Note struct {
	ID        int64
	ModelName string
	Fields    []NoteField
	Tags      []string
}

// NoteField is one named field of a note.
type NoteField struct {
	Name  string
	Value string
	Order int
}

// Field returns the value of the named field and whether it exists.
func (n Note) Field(name string) (string, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// HasTag reports whether the note carries the given tag.
func (n Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Card is an ephemeral projection of a note for display; never persisted.
type Card struct {
	NoteID    int64   `json:"noteId"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// CardPage is the bounded result of a card listing.
type CardPage struct {
	Items         []Card `json:"items"`
	TotalFound    int    `json:"totalFound"`
	Field         string `json:"field"`
	FilterApplied string `json:"filterApplied,omitempty"`
	DeckResolved  string `json:"deckResolved,omitempty"`
}

// PreviewDiff is one proposed compaction for user inspection.
type PreviewDiff struct {
	NoteID    int64  `json:"noteId"`
	Word      string `json:"word"`
	Old       string `json:"old"`
	New       string `json:"new"`
	Unchanged bool   `json:"unchanged,omitempty"`
}

// PreviewResult is returned by the compaction engine's preview step.
type PreviewResult struct {
	Token      string        `json:"confirmToken,omitempty"`
	Deck       string        `json:"deck"`
	Field      string        `json:"field"`
	Count      int           `json:"count"`
	Sample     []PreviewDiff `json:"sample"`
	TotalLimit int           `json:"totalLimit"`
}

// ApplySummary reports partial success explicitly; counts are never hidden.
type ApplySummary struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Tagged  int `json:"tagged"`
}

// RollbackSummary reports how many notes were restored from backup.
type RollbackSummary struct {
	Restored int `json:"restored"`
	Untagged int `json:"untagged"`
}
