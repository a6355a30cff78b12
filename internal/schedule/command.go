// Package schedule turns inbound scheduling text into stored jobs: the
// delimited /schedule command, its natural-language variant and the
// follow-up conversation that completes a partial request.
package schedule

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultKeyword starts a delimited scheduling command.
const DefaultKeyword = "/schedule"

type ParseErrorKind string

const (
	ParseMissingRecipient ParseErrorKind = "MISSING_RECIPIENT"
	ParseMissingDateTime  ParseErrorKind = "MISSING_DATETIME"
	ParseMissingMessage   ParseErrorKind = "MISSING_MESSAGE"
	ParseInvalidFormat    ParseErrorKind = "INVALID_FORMAT"
)

type ParseError struct {
	Kind ParseErrorKind
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse command: %s", e.Kind) }

// Command is a split scheduling command. Fields are not validated.
type Command struct {
	Recipient string
	DateTime  string
	Content   string
}

// segmentRe matches one $...$ segment.
var segmentRe = regexp.MustCompile(`\$([^$]*)\$`)

// Parser splits "<keyword> <recipient> $when$ $content$". The recipient may
// itself be a leading $...$ segment.
type Parser struct {
	Keyword string
}

func NewParser(keyword string) Parser {
	if strings.TrimSpace(keyword) == "" {
		keyword = DefaultKeyword
	}
	return Parser{Keyword: keyword}
}

// Matches reports whether text starts with the command keyword. The check is
// case-sensitive.
func (p Parser) Matches(text string) bool {
	_, ok := p.body(text)
	return ok
}

// body returns the text after the keyword. A Telegram style "@botname"
// suffix on the keyword is skipped.
func (p Parser) body(text string) (string, bool) {
	kw := p.Keyword
	if kw == "" {
		kw = DefaultKeyword
	}
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, kw) {
		return "", false
	}
	rest := t[len(kw):]
	if strings.HasPrefix(rest, "@") {
		if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
			rest = rest[i:]
		} else {
			rest = ""
		}
	}
	return strings.TrimSpace(rest), true
}

func (p Parser) Parse(text string) (Command, error) {
	body, ok := p.body(text)
	if !ok {
		return Command{}, &ParseError{Kind: ParseInvalidFormat}
	}

	matches := segmentRe.FindAllStringSubmatch(body, -1)
	if len(matches) < 2 {
		return Command{}, &ParseError{Kind: ParseInvalidFormat}
	}
	segs := make([]string, len(matches))
	for i, m := range matches {
		segs[i] = m[1]
	}

	var cmd Command
	cmd.DateTime = strings.TrimSpace(segs[len(segs)-2])
	cmd.Content = segs[len(segs)-1]

	if len(segs) == 3 {
		cmd.Recipient = strings.TrimSpace(segs[0])
	} else {
		cmd.Recipient = strings.TrimSpace(body[:strings.Index(body, "$")])
	}

	switch {
	case cmd.Recipient == "":
		return Command{}, &ParseError{Kind: ParseMissingRecipient}
	case cmd.DateTime == "":
		return Command{}, &ParseError{Kind: ParseMissingDateTime}
	case cmd.Content == "":
		return Command{}, &ParseError{Kind: ParseMissingMessage}
	}
	return cmd, nil
}
