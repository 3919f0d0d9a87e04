package anki

import (
	"fmt"
	"strings"

	"github.com/ankichat/ankichat/internal/model"
)

// headwordFields is the priority order for locating the vocabulary token on a note.
var headwordFields = []string{"Word", "Lemma", "Target", "Headword"}

// FieldQuery builds an Anki search for notes in deck with a non-empty field,
// optionally excluding a tag.
func FieldQuery(deck, field, excludeTag string) string {
	parts := []string{fmt.Sprintf("deck:%q", deck), fmt.Sprintf("%s:_*", field)}
	if excludeTag != "" {
		parts = append(parts, "-tag:"+excludeTag)
	}
	return strings.Join(parts, " ")
}

// RollbackQuery builds an Anki search for notes carrying the marker tag with a
// non-empty backup field.
func RollbackQuery(deck, markerTag, backupField string) string {
	return fmt.Sprintf("deck:%q tag:%s %s:_*", deck, markerTag, backupField)
}

// Headword returns the vocabulary token for a note, checking the priority
// field list in order. Empty string when none is present.
func Headword(n model.Note) string {
	for _, name := range headwordFields {
		if v, ok := n.Field(name); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
