// Package datetime turns a short date/time phrase written in the issuer's
// local time into an absolute UTC instant.
package datetime

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrorKind enumerates resolution failures.
type ErrorKind string

const (
	KindInvalidFormat ErrorKind = "INVALID_FORMAT"
	KindPastDate      ErrorKind = "PAST_DATE"
	KindInvalidHour   ErrorKind = "INVALID_HOUR"
)

type Error struct {
	Kind  ErrorKind
	Input string
}

func (e *Error) Error() string {
	return fmt.Sprintf("datetime %s: %q", e.Kind, e.Input)
}

// Resolved is a successfully resolved phrase.
type Resolved struct {
	UTC           time.Time
	Original      string
	OffsetMinutes int
}

// DefaultTime is applied when a phrase names a day but no time.
var DefaultTime = Clock{Hour: 12}

var (
	// A minus directly attached to a clock reading, not the separator of an
	// ISO date.
	negativeClockRe = regexp.MustCompile(`(?:^|[^\d])-\s*\d{1,2}:\d{2}`)
	anyClockRe      = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
)

// Resolve interprets input relative to ref, with the phrase written in a zone
// offsetMinutes east of UTC (Chile is -240). The result is strictly after ref.
func Resolve(input string, ref time.Time, offsetMinutes int) (Resolved, error) {
	if negativeClockRe.MatchString(input) {
		return Resolved{}, &Error{Kind: KindInvalidHour, Input: input}
	}
	for _, m := range anyClockRe.FindAllStringSubmatch(input, -1) {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if !validClock(h, min) {
			return Resolved{}, &Error{Kind: KindInvalidHour, Input: input}
		}
	}

	p := Scan(input)
	if p.invalidClock {
		return Resolved{}, &Error{Kind: KindInvalidHour, Input: input}
	}
	if (!p.HasDate() && !p.HasTime()) || !p.onlyFillers() {
		return Resolved{}, &Error{Kind: KindInvalidFormat, Input: input}
	}

	at, err := p.Instant(ref, offsetMinutes)
	if err != nil {
		return Resolved{}, err
	}
	if !at.After(ref) {
		return Resolved{}, &Error{Kind: KindPastDate, Input: input}
	}
	return Resolved{UTC: at, Original: input, OffsetMinutes: offsetMinutes}, nil
}

// Zone returns the fixed zone offsetMinutes east of UTC.
func Zone(offsetMinutes int) *time.Location {
	return time.FixedZone(zoneName(offsetMinutes), offsetMinutes*60)
}

func zoneName(offsetMinutes int) string {
	sign := "+"
	if offsetMinutes < 0 {
		sign = "-"
		offsetMinutes = -offsetMinutes
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, offsetMinutes/60, offsetMinutes%60)
}

// Instant computes the UTC instant of a scanned phrase. It does not check
// that the instant is in the future.
func (p Phrase) Instant(ref time.Time, offsetMinutes int) (time.Time, error) {
	loc := Zone(offsetMinutes)
	local := ref.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	clock := DefaultTime
	if p.Clock != nil {
		clock = *p.Clock
	}
	at := func(day time.Time) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour, clock.Minute, 0, 0, loc)
	}

	if p.Date == nil {
		t := at(today)
		if !t.After(ref) {
			t = at(today.AddDate(0, 0, 1))
		}
		return t.UTC(), nil
	}

	d := *p.Date
	switch d.Kind {
	case DateAbsolute:
		year := d.Year
		if year == 0 {
			year = today.Year()
		}
		day := time.Date(year, d.Month, d.Day, 0, 0, 0, 0, loc)
		if day.Month() != d.Month || day.Day() != d.Day {
			return time.Time{}, &Error{Kind: KindInvalidFormat, Input: p.Matched()}
		}
		if d.Year == 0 && !at(day).After(ref) {
			day = day.AddDate(1, 0, 0)
		}
		return at(day).UTC(), nil
	case DateRelative:
		return at(today.AddDate(0, 0, d.Days)).UTC(), nil
	case DateNextWeekday:
		delta := (int(d.Weekday) - int(today.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return at(today.AddDate(0, 0, delta)).UTC(), nil
	case DateNearWeekday:
		delta := (int(d.Weekday) - int(today.Weekday()) + 7) % 7
		t := at(today.AddDate(0, 0, delta))
		if !t.After(ref) {
			t = t.AddDate(0, 0, 7)
		}
		return t.UTC(), nil
	}
	return time.Time{}, &Error{Kind: KindInvalidFormat, Input: p.Matched()}
}
