package voice

import "testing"

func TestSanitizeMarkdownForSpeech(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"## Heading\nbody", "Heading\nbody"},
		{"this is **bold** text", "this is bold text"},
		{"this is *italic* text", "this is italic text"},
		{"# Title\n**bold** and *italic*", "Title\nbold and italic"},
		{"no markdown here", "no markdown here"},
	}
	for _, c := range cases {
		if got := SanitizeMarkdownForSpeech(c.in); got != c.want {
			t.Errorf("SanitizeMarkdownForSpeech(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
