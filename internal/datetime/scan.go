package datetime

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateKind classifies the date half of a phrase.
type DateKind int

const (
	DateNone DateKind = iota
	DateAbsolute
	DateRelative
	DateNextWeekday   // "próximo lunes": strictly after the reference day
	DateNearWeekday   // bare "lunes": nearest occurrence still in the future
)

// DateSpec is the recognised date half of a phrase.
type DateSpec struct {
	Kind    DateKind
	Year    int // 0 when the phrase omits the year
	Month   time.Month
	Day     int
	Days    int // relative offset for DateRelative
	Weekday time.Weekday
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// Phrase is the result of scanning free text for a date/time expression.
type Phrase struct {
	Tokens   []string // original whitespace-separated tokens
	Date     *DateSpec
	Clock    *Clock
	consumed map[int]bool
	invalidClock bool
}

// InvalidClock reports a token shaped like HH:MM with an out-of-range value.
func (p Phrase) InvalidClock() bool { return p.invalidClock }

// HasDate reports whether a date was recognised.
func (p Phrase) HasDate() bool { return p.Date != nil }

// HasTime reports whether a time of day was recognised.
func (p Phrase) HasTime() bool { return p.Clock != nil }

// Remainder joins the tokens that are not part of the date/time expression.
func (p Phrase) Remainder() string {
	out := make([]string, 0, len(p.Tokens))
	for i, t := range p.Tokens {
		if !p.consumed[i] {
			out = append(out, t)
		}
	}
	return strings.Join(out, " ")
}

// Matched joins the tokens that form the date/time expression.
func (p Phrase) Matched() string {
	out := make([]string, 0, 4)
	for i, t := range p.Tokens {
		if p.consumed[i] {
			out = append(out, t)
		}
	}
	return strings.Join(out, " ")
}

var (
	isoDateRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	dmyDateRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{4}))?$`)
	clockRe   = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?:h|hs|hrs)?$`)
)

var relativeDays = map[string]int{
	"hoy":       0,
	"today":     0,
	"mañana":    1,
	"manana":    1,
	"tomorrow":  1,
	"ayer":      -1,
	"yesterday": -1,
}

var weekdays = map[string]time.Weekday{
	"domingo":   time.Sunday,
	"lunes":     time.Monday,
	"martes":    time.Tuesday,
	"miércoles": time.Wednesday,
	"miercoles": time.Wednesday,
	"jueves":    time.Thursday,
	"viernes":   time.Friday,
	"sábado":    time.Saturday,
	"sabado":    time.Saturday,
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var nextWords = map[string]bool{
	"próximo": true, "proximo": true, "próxima": true, "proxima": true, "next": true,
}

// nearWords may precede a bare weekday without changing its meaning.
var nearWords = map[string]bool{"el": true, "este": true, "this": true, "on": true}

// clockPrefixes are consumed when they directly precede a time token.
var clockPrefixes = [][]string{{"a", "las"}, {"a", "la"}, {"at"}, {"las"}}

// fillers may appear around a date/time expression without carrying meaning.
var fillers = map[string]bool{"a": true, "las": true, "la": true, "at": true, "el": true, "de": true, "del": true, "on": true, "para": true}

func normalizeToken(t string) string {
	return strings.Trim(strings.ToLower(t), ",.;!?¿¡()\"'")
}

// Scan looks for the first date token and the first time token in text.
// Unknown words are left in the remainder.
func Scan(text string) Phrase {
	p := Phrase{Tokens: strings.Fields(text), consumed: map[int]bool{}}
	norm := make([]string, len(p.Tokens))
	for i, t := range p.Tokens {
		norm[i] = normalizeToken(t)
	}

	for i := 0; i < len(norm); i++ {
		w := norm[i]
		if p.Clock == nil {
			if c, ok, valid := parseClock(w); ok {
				if !valid {
					p.invalidClock = true
					continue
				}
				p.Clock = &c
				p.consumed[i] = true
				p.consumePrefix(norm, i)
				continue
			}
		}
		if p.Date != nil {
			continue
		}
		if d, ok := parseDateToken(w); ok {
			p.Date = &d
			p.consumed[i] = true
			if i > 0 && nearWords[norm[i-1]] {
				p.consumed[i-1] = true
			}
			continue
		}
		if w == "pasado" && i+1 < len(norm) && relativeDays[norm[i+1]] == 1 && norm[i+1] != "tomorrow" {
			p.Date = &DateSpec{Kind: DateRelative, Days: 2}
			p.consumed[i], p.consumed[i+1] = true, true
			i++
			continue
		}
		if days, ok := relativeDays[w]; ok {
			p.Date = &DateSpec{Kind: DateRelative, Days: days}
			p.consumed[i] = true
			continue
		}
		if nextWords[w] && i+1 < len(norm) {
			if wd, ok := weekdays[norm[i+1]]; ok {
				p.Date = &DateSpec{Kind: DateNextWeekday, Weekday: wd}
				p.consumed[i], p.consumed[i+1] = true, true
				i++
				continue
			}
		}
		if wd, ok := weekdays[w]; ok {
			p.Date = &DateSpec{Kind: DateNearWeekday, Weekday: wd}
			p.consumed[i] = true
			if i > 0 && nearWords[norm[i-1]] {
				p.consumed[i-1] = true
			}
		}
	}
	return p
}

func (p *Phrase) consumePrefix(norm []string, at int) {
	for _, pre := range clockPrefixes {
		start := at - len(pre)
		if start < 0 {
			continue
		}
		match := true
		for j, w := range pre {
			if norm[start+j] != w || p.consumed[start+j] {
				match = false
				break
			}
		}
		if match {
			for j := range pre {
				p.consumed[start+j] = true
			}
			return
		}
	}
}

// onlyFillers reports whether every unconsumed token is a filler word.
func (p Phrase) onlyFillers() bool {
	for i, t := range p.Tokens {
		if p.consumed[i] {
			continue
		}
		if !fillers[normalizeToken(t)] {
			return false
		}
	}
	return true
}

// parseClock returns ok when w has the HH:MM shape and valid when it is in
// range. 24:00 is accepted and folded into 00:00 of the same date, not
// the next one: "2024-12-25 24:00" is the start of Dec 25 and "mañana 24:00"
// equals "mañana 00:00".
func parseClock(w string) (c Clock, ok bool, valid bool) {
	m := clockRe.FindStringSubmatch(w)
	if m == nil {
		return Clock{}, false, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if !validClock(h, min) {
		return Clock{}, true, false
	}
	if h == 24 {
		h = 0
	}
	return Clock{Hour: h, Minute: min}, true, true
}

func validClock(h, m int) bool {
	return h >= 0 && h <= 24 && m >= 0 && m <= 59 && !(h == 24 && m > 0)
}

func parseDateToken(w string) (DateSpec, bool) {
	if m := isoDateRe.FindStringSubmatch(w); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return DateSpec{Kind: DateAbsolute, Year: y, Month: time.Month(mo), Day: d}, true
	}
	if m := dmyDateRe.FindStringSubmatch(w); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y := 0
		if m[3] != "" {
			y, _ = strconv.Atoi(m[3])
		}
		return DateSpec{Kind: DateAbsolute, Year: y, Month: time.Month(mo), Day: d}, true
	}
	return DateSpec{}, false
}
