package voice

import (
	"encoding/binary"
	"testing"

	"github.com/lpalbou/voicerun/internal/logger"
)

func buildWAV(sampleRate int, samples []int16) []byte {
	dataSize := len(samples) * 2
	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}
	return buf
}

func TestDecodeWAVPCM16(t *testing.T) {
	wav := buildWAV(24000, []int16{0, 16384, -32768, 32767})
	frame, sr, err := decodeWAVPCM16(wav)
	if err != nil {
		t.Fatalf("decodeWAVPCM16 error: %v", err)
	}
	if sr != 24000 {
		t.Fatalf("sample rate = %d, want 24000", sr)
	}
	if len(frame) != 4 {
		t.Fatalf("frame len = %d, want 4", len(frame))
	}
	if frame[0] != 0 {
		t.Fatalf("frame[0] = %v, want 0", frame[0])
	}
	if frame[2] != -1.0 {
		t.Fatalf("frame[2] = %v, want -1.0", frame[2])
	}
}

func TestDecodeWAVPCM16RejectsGarbage(t *testing.T) {
	if _, _, err := decodeWAVPCM16([]byte("not a wav")); err == nil {
		t.Fatalf("expected error for non-WAV input")
	}
}

func TestAzureTTSAdapterAvailability(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)

	unavailable := NewAzureTTSAdapter("", "", log)
	if unavailable.IsAvailable() {
		t.Fatalf("expected adapter without credentials to be unavailable")
	}

	available := NewAzureTTSAdapter("key", "region", log)
	if !available.IsAvailable() {
		t.Fatalf("expected adapter with credentials to be available")
	}
}

func TestAzureTTSAdapterSetLanguage(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	c := NewAzureTTSAdapter("key", "region", log)

	if !c.SetLanguage("fr") {
		t.Fatalf("expected fr to be supported")
	}
	if c.SetLanguage("xx") {
		t.Fatalf("expected xx to be rejected")
	}
	if c.Info()["language"] != "fr" {
		t.Fatalf("expected language to remain fr after rejected SetLanguage")
	}
}

func TestAzureTTSAdapterSynthesizeToBytesRejectsFormat(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	c := NewAzureTTSAdapter("key", "region", log)
	if _, err := c.SynthesizeToBytes("hello", "mp3"); err != ErrUnsupportedFormat {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
