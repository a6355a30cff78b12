package schedule

import (
	"strings"
	"unicode/utf8"

	"schedbot/internal/job"
)

// ValidContent reports whether s can be delivered as a message body: not
// blank, and at most job.MaxContentLength characters.
func ValidContent(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	return utf8.RuneCountInString(s) <= job.MaxContentLength
}
