package voice

import (
	"testing"

	"github.com/lpalbou/voicerun/internal/logger"
)

func TestEncodeDecodeWAVRoundTrip(t *testing.T) {
	frame := []float32{0, 0.5, -0.5, 1, -1}
	wav := encodeWAVPCM16(frame, 16000)

	decoded, sr, err := decodeWAVPCM16(wav)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if sr != 16000 {
		t.Fatalf("sample rate = %d, want 16000", sr)
	}
	if len(decoded) != len(frame) {
		t.Fatalf("decoded len = %d, want %d", len(decoded), len(frame))
	}
	for i := range frame {
		diff := decoded[i] - frame[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.001 {
			t.Fatalf("sample %d round-trip drift: got %v, want %v", i, decoded[i], frame[i])
		}
	}
}

func TestWhisperSTTAdapterSetLanguage(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	w := NewWhisperSTTAdapter("whisper-cli-does-not-exist", "model.bin", log)

	if !w.SetLanguage("fr") {
		t.Fatalf("expected fr to be supported")
	}
	if w.SetLanguage("xx") {
		t.Fatalf("expected xx to be rejected")
	}
	if w.Info()["language"] != "fr" {
		t.Fatalf("expected language to remain fr after rejected SetLanguage")
	}
	if !w.SetLanguage("") {
		t.Fatalf("expected empty string (auto) to be accepted")
	}
}

func TestWhisperSTTAdapterUnavailableWithoutBinary(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	w := NewWhisperSTTAdapter("definitely-not-a-real-binary-xyz", "model.bin", log)
	if w.IsAvailable() {
		t.Fatalf("expected adapter to report unavailable for a missing binary")
	}
	if _, err := w.Transcribe("somefile.wav", ""); err != ErrAdapterUnavailable {
		t.Fatalf("expected ErrAdapterUnavailable, got %v", err)
	}
}

func TestCleanWhisperText(t *testing.T) {
	cases := map[string]string{
		"  hello world  \n":                  "hello world",
		"[BLANK_AUDIO]":                      "",
		"Thank you.":                         "",
		"[00:00:00.000 --> 00:00:02.000] hi": "hi",
	}
	for in, want := range cases {
		if got := cleanWhisperText(in); got != want {
			t.Errorf("cleanWhisperText(%q) = %q, want %q", in, got, want)
		}
	}
}
