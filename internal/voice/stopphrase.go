package voice

import "strings"

// NormalizeStopPhrase lowercases text, replaces any run of non
// alphanumeric characters with a single space, and collapses whitespace.
// It deliberately avoids fancy text transforms — this is the same
// conservative normalization the matcher relies on to avoid false
// positives like "don't stop now".
func NormalizeStopPhrase(text string) string {
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	var b strings.Builder
	lastWasSpace := false
	for _, r := range lower {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			b.WriteRune(r)
			lastWasSpace = false
			continue
		}
		if !lastWasSpace {
			b.WriteByte(' ')
			lastWasSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// StopPhraseMatcher matches normalized text against a set of configured
// stop phrases. Matching is whole-word (exact, prefix, suffix) plus a
// narrow Levenshtein-bounded tolerance for "ok stop"/"okay stop" — the
// only fuzzy matching this matcher does. Everything else requires an
// exact word-boundary match, so "don't stop now" never matches "stop".
type StopPhraseMatcher struct {
	phrases []string
}

// NewStopPhraseMatcher creates a matcher for the given phrases. If none
// are given, it defaults to {"stop", "ok stop", "okay stop"}.
func NewStopPhraseMatcher(phrases ...string) *StopPhraseMatcher {
	if len(phrases) == 0 {
		phrases = []string{"stop", "ok stop", "okay stop"}
	}
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := NormalizeStopPhrase(p); n != "" {
			normalized = append(normalized, n)
		}
	}
	return &StopPhraseMatcher{phrases: normalized}
}

// Match returns the matched phrase and true if text is (or tolerantly
// resembles) a configured stop phrase. When several phrases match, the
// longest one wins, so "ok stop" is reported as "ok stop" rather than as
// the bare "stop" it ends with.
func (m *StopPhraseMatcher) Match(text string) (string, bool) {
	normalized := NormalizeStopPhrase(text)
	if normalized == "" {
		return "", false
	}

	best := ""
	for _, phrase := range m.phrases {
		if phrase == "" || len(phrase) <= len(best) {
			continue
		}
		if normalized == phrase ||
			strings.HasPrefix(normalized, phrase+" ") ||
			strings.HasSuffix(normalized, " "+phrase) {
			best = phrase
		}
	}

	if phrase, ok := matchTolerantOkStop(normalized); ok && len(phrase) > len(best) {
		return phrase, true
	}
	if best != "" {
		return best, true
	}
	return "", false
}

// matchTolerantOkStop handles the spec's one fuzzy-matching carve-out:
// normalized text of 2-3 tokens ending in "stop", where the preceding
// one or two tokens are within Levenshtein distance 1 of "ok" or "okay".
// This accepts STT slips like "okey stop" or "oh stop" without opening
// the matcher up to broader fuzzy matching.
func matchTolerantOkStop(normalized string) (string, bool) {
	tokens := strings.Fields(normalized)
	if len(tokens) < 2 || len(tokens) > 3 {
		return "", false
	}
	if tokens[len(tokens)-1] != "stop" {
		return "", false
	}

	preceding := tokens[:len(tokens)-1]
	candidate := strings.Join(preceding, "")
	if levenshtein(candidate, "ok") <= 1 || levenshtein(candidate, "okay") <= 1 {
		return "ok stop", true
	}
	return "", false
}

// levenshtein computes the classic edit distance between two strings.
func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
