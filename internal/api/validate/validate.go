package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// fieldRx keeps field names to what Anki itself accepts in searches: letters,
// digits, spaces, hyphen and underscore.
var fieldRx = regexp.MustCompile(`^[\pL\pN _-]+$`)

// Message checks a chat message is present and within a sane bound.
func Message(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("message is required")
	}
	if len(v) > 2000 {
		return fmt.Errorf("message exceeds 2000 characters")
	}
	return nil
}

// DeckName checks a deck reference is present. Resolution against live decks
// happens later; this only rejects empty input.
func DeckName(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("deck is required")
	}
	if len(v) > 200 {
		return fmt.Errorf("deck name exceeds 200 characters")
	}
	return nil
}

// FieldName checks an explicit field name, when given.
func FieldName(v string) error {
	if v == "" {
		return nil
	}
	if len(v) > 100 {
		return fmt.Errorf("field name exceeds 100 characters")
	}
	if !fieldRx.MatchString(v) {
		return fmt.Errorf("field name contains invalid characters")
	}
	return nil
}

// Token checks a confirmation token shape without revealing validity.
func Token(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("confirm_token is required")
	}
	return nil
}
