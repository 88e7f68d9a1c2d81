package voice

import "testing"

func TestNormalizeStopPhrase(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"Stop!!":         "stop",
		"  Ok,  Stop.  ": "ok stop",
		"STOP---now":     "stop now",
	}
	for in, want := range cases {
		if got := NormalizeStopPhrase(in); got != want {
			t.Errorf("NormalizeStopPhrase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStopPhraseMatcherExactPrefixSuffix(t *testing.T) {
	m := NewStopPhraseMatcher()

	cases := []struct {
		text  string
		match bool
	}{
		{"stop", true},
		{"Stop.", true},
		{"stop please", true},
		{"please stop", true},
		{"don't stop now", false},
		{"stopwatch", false},
		{"", false},
	}
	for _, c := range cases {
		_, ok := m.Match(c.text)
		if ok != c.match {
			t.Errorf("Match(%q) = %v, want %v", c.text, ok, c.match)
		}
	}
}

func TestStopPhraseMatcherOkStopTolerance(t *testing.T) {
	m := NewStopPhraseMatcher()

	accepted := []string{"ok stop", "okay stop", "okey stop", "oh stop"}
	for _, text := range accepted {
		if _, ok := m.Match(text); !ok {
			t.Errorf("Match(%q) = false, want true (tolerant ok/okay stop)", text)
		}
	}

	// Not within one edit of ok/okay: these fall back to the bare "stop"
	// suffix rule instead of the single-hit "ok stop".
	bare := []string{"dont stop", "no stop"}
	for _, text := range bare {
		if phrase, ok := m.Match(text); !ok || phrase != "stop" {
			t.Errorf("Match(%q) = (%q, %v), want (\"stop\", true)", text, phrase, ok)
		}
	}

	rejected := []string{"up stop now please"}
	for _, text := range rejected {
		if _, ok := m.Match(text); ok {
			t.Errorf("Match(%q) = true, want false", text)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"ok", "", 2},
		{"ok", "okay", 2},
		{"okey", "okay", 1},
		{"oh", "ok", 1},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
