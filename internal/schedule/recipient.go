package schedule

import (
	"fmt"
	"regexp"
	"strings"
)

type RecipientErrorKind string

const (
	RecipientInvalidPhone    RecipientErrorKind = "INVALID_PHONE"
	RecipientContactNotFound RecipientErrorKind = "CONTACT_NOT_FOUND"
)

type RecipientError struct {
	Kind  RecipientErrorKind
	Input string
}

func (e *RecipientError) Error() string {
	return fmt.Sprintf("recipient %s: %q", e.Kind, e.Input)
}

// Recipient is a resolved delivery target.
type Recipient struct {
	Phone string // "+" and digits only
	Input string
}

var phoneRe = regexp.MustCompile(`^\+\d{6,}$`)

// ResolveRecipient accepts international phone numbers, with hyphens allowed
// between digits. Contact names are recognised but never resolved.
func ResolveRecipient(token string) (Recipient, error) {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, "+") {
		return Recipient{}, &RecipientError{Kind: RecipientContactNotFound, Input: token}
	}
	clean := strings.ReplaceAll(token, "-", "")
	if !phoneRe.MatchString(clean) {
		return Recipient{}, &RecipientError{Kind: RecipientInvalidPhone, Input: token}
	}
	return Recipient{Phone: clean, Input: token}, nil
}
