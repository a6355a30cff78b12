// Package view answers "show my messages" requests by paging an owner's
// pending jobs.
package view

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidRequest is returned for blank, unrecognised or suspicious input.
var ErrInvalidRequest = errors.New("invalid view request")

// Intent is the classification of one utterance.
type Intent struct {
	List  bool
	More  bool
	Valid bool
	// Suspicious marks input rejected by the denylist.
	Suspicious bool
	Err        error
}

var listPatterns = compileAll(
	`ver\s+mensajes`,
	`mostrar\s+mensajes`,
	`mu[eé]strame\s+(mis\s+)?mensajes`,
	`qu[eé]\s+mensajes\s+tengo`,
	`cu[aá]les\s+mensajes\s+tengo`,
	`mis\s+mensajes`,
	`mensajes\s+programados`,
	`ver\s+programados`,
	`mostrar\s+programados`,
	`^/(mensajes|messages|list)\b`,
	`show\s+(my\s+)?messages`,
	`list\s+(my\s+)?messages`,
	`my\s+(scheduled\s+)?messages`,
	`scheduled\s+messages`,
)

var morePatterns = compileAll(
	`ver\s+m[aá]s`,
	`mostrar\s+m[aá]s`,
	`m[aá]s\s+mensajes`,
	`siguientes`,
	`continuar`,
	`^/(mas|más|more)\b`,
	`show\s+more`,
	`more\s+messages`,
	`next\s+page`,
)

var denyPatterns = compileAll(
	`select\s+.*\s+from`,
	`insert\s+into`,
	`update\s+.*\s+set`,
	`delete\s+from`,
	`<script`,
	`javascript:`,
	`\{\{.*\}\}`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Classify matches text against the list and more trigger phrases,
// case-insensitively. Suspicious payloads are rejected before matching.
func Classify(text string) Intent {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return Intent{Err: ErrInvalidRequest}
	}
	if anyMatch(denyPatterns, s) {
		return Intent{Suspicious: true, Err: ErrInvalidRequest}
	}
	in := Intent{List: anyMatch(listPatterns, s), More: anyMatch(morePatterns, s)}
	in.Valid = in.List || in.More
	if !in.Valid {
		in.Err = ErrInvalidRequest
	}
	return in
}
