package schedule

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestResolveRecipient(t *testing.T) {
	t.Parallel()
	ok := []struct{ in, want string }{
		{"+1234567890", "+1234567890"},
		{"+123456", "+123456"},
		{"+56-9-1234-5678", "+56912345678"},
		{" +56912345678 ", "+56912345678"},
	}
	for _, tc := range ok {
		r, err := ResolveRecipient(tc.in)
		if err != nil {
			t.Fatalf("ResolveRecipient(%q) err=%v", tc.in, err)
		}
		if r.Phone != tc.want || strings.Contains(r.Phone, "-") {
			t.Fatalf("ResolveRecipient(%q)=%q want %q", tc.in, r.Phone, tc.want)
		}
	}

	bad := []struct {
		in   string
		kind RecipientErrorKind
	}{
		{"+12345", RecipientInvalidPhone},
		{"+12 345 678", RecipientInvalidPhone},
		{"+abc1234567", RecipientInvalidPhone},
		{"+", RecipientInvalidPhone},
		{"Juan", RecipientContactNotFound},
		{"56912345678", RecipientContactNotFound},
	}
	for _, tc := range bad {
		_, err := ResolveRecipient(tc.in)
		var re *RecipientError
		if !errors.As(err, &re) || re.Kind != tc.kind {
			t.Fatalf("ResolveRecipient(%q) err=%v want %s", tc.in, err, tc.kind)
		}
	}
}

func TestValidContent(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"   \n\t", false},
		{"hola", true},
		{"  hola   mundo  ", true},
		{"🎄🎁", true},
		{strings.Repeat("a", 1000), true},
		{strings.Repeat("a", 1001), false},
		{strings.Repeat("ñ", 1000), true},
	}
	for _, tc := range cases {
		if got := ValidContent(tc.in); got != tc.want {
			t.Fatalf("ValidContent(len=%d)=%v want %v", utf8.RuneCountInString(tc.in), got, tc.want)
		}
	}
}
