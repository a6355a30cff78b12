package schedule

import (
	"regexp"
	"strings"

	"schedbot/internal/datetime"
	"schedbot/internal/job"
)

var embeddedPhoneRe = regexp.MustCompile(`\+\d[\d-]*`)

// schedulingPrefixes are stripped once from the start of the content,
// longest first.
var schedulingPrefixes = []string{
	"envía este mensaje", "envia este mensaje", "send this message",
	"agendar para", "agenda para", "programa para", "programar para",
	"recuérdale", "recuerdale", "remind",
	"agendar", "agenda", "programar", "programa",
	"envíale", "enviale", "envía", "envia", "enviar",
	"schedule", "send",
}

// Natural is an unstructured scheduling request split into its parts.
type Natural struct {
	Phone   string // raw "+digits" token, empty when absent
	Phrase  datetime.Phrase
	Content string
	// Missing is set when the request is salvageable but incomplete.
	Missing job.MissingField
	// Understood is false when neither a date nor a time was found.
	Understood bool
}

// Complete reports whether the request names a phone, a date and a time.
func (n Natural) Complete() bool { return n.Understood && n.Missing == "" }

// ParseNatural extracts an embedded phone number and a date/time phrase from
// free text. What remains, minus a leading scheduling verb, is the content.
func ParseNatural(text string) Natural {
	var n Natural
	rest := text
	if loc := embeddedPhoneRe.FindStringIndex(text); loc != nil {
		n.Phone = text[loc[0]:loc[1]]
		rest = text[:loc[0]] + " " + text[loc[1]:]
	}

	n.Phrase = datetime.Scan(rest)
	n.Content = stripSchedulingPrefix(n.Phrase.Remainder())

	switch {
	case !n.Phrase.HasDate() && !n.Phrase.HasTime() && !n.Phrase.InvalidClock():
		return n
	case !n.Phrase.HasTime():
		n.Missing = job.MissingTime
	case !n.Phrase.HasDate():
		n.Missing = job.MissingDate
	}
	n.Understood = true
	if n.Phone == "" {
		n.Missing = job.MissingPhone
	}
	return n
}

func stripSchedulingPrefix(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	lower := strings.ToLower(s)
	for _, p := range schedulingPrefixes {
		if lower == p {
			return ""
		}
		if strings.HasPrefix(lower, p+" ") || strings.HasPrefix(lower, p+":") {
			return strings.TrimSpace(strings.TrimLeft(s[len(p):], ":"))
		}
	}
	return s
}
