package datetime

import (
	"errors"
	"testing"
	"time"
)

const chile = -240

// 2024-03-15 10:00 UTC is a Friday, 06:00 in Chile.
var ref = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func mustResolve(t *testing.T, in string) time.Time {
	t.Helper()
	r, err := Resolve(in, ref, chile)
	if err != nil {
		t.Fatalf("Resolve(%q) err=%v", in, err)
	}
	if r.Original != in || r.OffsetMinutes != chile {
		t.Fatalf("Resolve(%q) metadata=%+v", in, r)
	}
	return r.UTC
}

func TestResolveValid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-12-25 10:30", time.Date(2024, 12, 25, 14, 30, 0, 0, time.UTC)},
		{"15:00", time.Date(2024, 3, 15, 19, 0, 0, 0, time.UTC)},
		{"05:00", time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC)},
		{"mañana 09:00", time.Date(2024, 3, 16, 13, 0, 0, 0, time.UTC)},
		{"Mañana a las 09:00", time.Date(2024, 3, 16, 13, 0, 0, 0, time.UTC)},
		{"tomorrow at 09:00", time.Date(2024, 3, 16, 13, 0, 0, 0, time.UTC)},
		{"hoy 18:15", time.Date(2024, 3, 15, 22, 15, 0, 0, time.UTC)},
		{"próximo lunes 08:00", time.Date(2024, 3, 18, 12, 0, 0, 0, time.UTC)},
		{"next friday 08:00", time.Date(2024, 3, 22, 12, 0, 0, 0, time.UTC)},
		{"viernes 08:00", time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)},
		{"viernes 05:00", time.Date(2024, 3, 22, 9, 0, 0, 0, time.UTC)},
		{"mañana 00:00", time.Date(2024, 3, 16, 4, 0, 0, 0, time.UTC)},
		{"mañana 12:30", time.Date(2024, 3, 16, 16, 30, 0, 0, time.UTC)},
		{"mañana", time.Date(2024, 3, 16, 16, 0, 0, 0, time.UTC)},
		{"pasado mañana 10:00", time.Date(2024, 3, 17, 14, 0, 0, 0, time.UTC)},
		{"25/12 10:30", time.Date(2024, 12, 25, 14, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := mustResolve(t, tc.in); !got.Equal(tc.want) {
			t.Fatalf("Resolve(%q)=%s want %s", tc.in, got, tc.want)
		}
	}
}

func TestResolveMidnight24EqualsZero(t *testing.T) {
	t.Parallel()
	a := mustResolve(t, "mañana 24:00")
	b := mustResolve(t, "mañana 00:00")
	if !a.Equal(b) {
		t.Fatalf("24:00=%s 00:00=%s", a, b)
	}

	// An explicit date keeps its day.
	if got, want := mustResolve(t, "2024-12-25 24:00"), time.Date(2024, 12, 25, 4, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("2024-12-25 24:00=%s want %s", got, want)
	}
	_, err := Resolve("hoy 24:00", ref, chile)
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindPastDate {
		t.Fatalf("hoy 24:00 err=%v want PAST_DATE", err)
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		kind ErrorKind
	}{
		{"", KindInvalidFormat},
		{"not a date", KindInvalidFormat},
		{"mañana 10:00 11:00", KindInvalidFormat},
		{"2024-02-30 10:00", KindInvalidFormat},
		{"2024-03-14 10:00", KindPastDate},
		{"ayer 15:00", KindPastDate},
		{"hoy 05:00", KindPastDate},
		{"mañana 25:00", KindInvalidHour},
		{"mañana -1:00", KindInvalidHour},
		{"mañana 12:60", KindInvalidHour},
		{"24:30", KindInvalidHour},
	}
	for _, tc := range cases {
		_, err := Resolve(tc.in, ref, chile)
		var de *Error
		if !errors.As(err, &de) {
			t.Fatalf("Resolve(%q) err=%v, want *Error", tc.in, err)
		}
		if de.Kind != tc.kind {
			t.Fatalf("Resolve(%q) kind=%s want %s", tc.in, de.Kind, tc.kind)
		}
	}
}

func TestResolveAlwaysAfterReference(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"00:00", "06:00", "05:59", "hoy 06:01", "lunes", "sábado 23:59"} {
		r, err := Resolve(in, ref, chile)
		if err != nil {
			continue
		}
		if !r.UTC.After(ref) {
			t.Fatalf("Resolve(%q)=%s not after %s", in, r.UTC, ref)
		}
	}
}

func TestScanRemainder(t *testing.T) {
	t.Parallel()
	p := Scan("recordar comprar pan mañana a las 10:30 por favor")
	if !p.HasDate() || !p.HasTime() {
		t.Fatalf("date=%v time=%v", p.HasDate(), p.HasTime())
	}
	if got := p.Remainder(); got != "recordar comprar pan por favor" {
		t.Fatalf("Remainder=%q", got)
	}
	if got := p.Matched(); got != "mañana a las 10:30" {
		t.Fatalf("Matched=%q", got)
	}
}

func TestFormatLocal(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 12, 25, 14, 30, 0, 0, time.UTC)
	if got := FormatLocal(at, chile); got != "miércoles 25 de diciembre de 2024, 10:30" {
		t.Fatalf("FormatLocal=%q", got)
	}
	if got := Zone(chile).String(); got != "UTC-04:00" {
		t.Fatalf("Zone name=%q", got)
	}
}
