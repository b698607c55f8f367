package textutil_test

import (
	"testing"

	"meetiq/internal/textutil"
)

func TestNormalizeSubject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"quarterly_review-2026.03", "Quarterly Review 2026 03"},
		{"  client   call  ", "Client Call"},
		{"", ""},
		{"///", ""},
		{"pension plan", "Pension Plan"},
	}
	for _, tc := range cases {
		if got := textutil.NormalizeSubject(tc.in); got != tc.want {
			t.Errorf("NormalizeSubject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeSegment(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Client Call.aac", "Client_Call_aac"},
		{"weird/../path", "weird__path"},
		{"", "untitled"},
		{"___", "untitled"},
		{"ok-name_1", "ok-name_1"},
	}
	for _, tc := range cases {
		if got := textutil.SanitizeSegment(tc.in); got != tc.want {
			t.Errorf("SanitizeSegment(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := textutil.Truncate("short", 10); got != "short" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := textutil.Truncate("a very long subject line", 10); got != "a very ..." {
		t.Errorf("Truncate long = %q", got)
	}
	if got := textutil.Truncate("abcdef", 3); got != "abc" {
		t.Errorf("Truncate tiny = %q", got)
	}
}
