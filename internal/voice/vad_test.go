package voice

import (
	"testing"

	"github.com/lpalbou/voicerun/internal/logger"
)

func TestVADIsSpeechBeforeInitReturnsError(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	v := NewVAD("model.onnx", "libonnxruntime.so", 480, 1, log)

	pcm := make([]byte, 480*2)
	if _, err := v.IsSpeech(pcm); err != ErrVADNotInitialized {
		t.Fatalf("expected ErrVADNotInitialized, got %v", err)
	}
}

func TestVADAggressivenessClamped(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)

	v := NewVAD("model.onnx", "lib.so", 480, 9, log)
	if v.aggressiveness != 3 {
		t.Fatalf("expected aggressiveness clamped to 3, got %d", v.aggressiveness)
	}

	v2 := NewVAD("model.onnx", "lib.so", 480, -5, log)
	if v2.aggressiveness != 0 {
		t.Fatalf("expected aggressiveness clamped to 0, got %d", v2.aggressiveness)
	}

	v.SetAggressiveness(42)
	if v.aggressiveness != 3 {
		t.Fatalf("expected SetAggressiveness to clamp to 3, got %d", v.aggressiveness)
	}
}

func TestVADFrameSizeMismatch(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	v := NewVAD("model.onnx", "lib.so", 480, 1, log)
	v.initialized = true // simulate init without a real ONNX session

	wrongSize := make([]byte, 100)
	if _, err := v.IsSpeech(wrongSize); err != ErrInvalidAudioFrame {
		t.Fatalf("expected ErrInvalidAudioFrame, got %v", err)
	}
}
