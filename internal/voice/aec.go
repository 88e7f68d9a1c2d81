package voice

import "sync"

// AECConfig bundles the tunables an AECProcessor implementation needs.
// Mirrors the original's AecConfig dataclass: sample rate and channel
// count describe the stream both near-end and far-end PCM arrive at,
// StreamDelayMs estimates the render-to-capture loopback delay, and the
// noise-suppression/gain-control flags are passed straight through to
// whatever native APM backend implements the interface.
type AECConfig struct {
	SampleRate    int
	Channels      int
	StreamDelayMs int
	EnableNS      bool
	EnableAGC     bool
}

// AECProcessor cancels acoustic echo from a near-end capture stream given
// the corresponding far-end (render) stream. This module ships no
// concrete implementation beyond NullAEC — a real WebRTC APM binding has
// no Go port in the retrieved example set, so callers that need genuine
// echo cancellation must supply their own AECProcessor (e.g. via cgo
// bindings to libwebrtc-apm) at construction time.
type AECProcessor interface {
	// Process feeds one matched pair of near-end and far-end PCM16 frames
	// and returns the cleaned near-end PCM16.
	Process(nearPCM16, farPCM16 []byte) ([]byte, error)
	// SetStreamDelay updates the estimated render-to-capture delay.
	// Implementations may treat this as best-effort.
	SetStreamDelay(ms int)
}

// NullAEC is the zero-value AECProcessor: it returns the near-end frame
// unmodified. It lets Recognizer.EnableAEC be exercised end-to-end (far
// end buffering, pairing, sub-frame splitting) without requiring a real
// APM backend to be present.
type NullAEC struct{}

var _ AECProcessor = (*NullAEC)(nil)

// NewNullAEC creates a no-op AECProcessor.
func NewNullAEC() *NullAEC { return &NullAEC{} }

// Process returns nearPCM16 unchanged.
func (n *NullAEC) Process(nearPCM16, farPCM16 []byte) ([]byte, error) {
	return nearPCM16, nil
}

// SetStreamDelay is a no-op.
func (n *NullAEC) SetStreamDelay(ms int) {}

// farEndBuffer accumulates rendered audio so the recognizer can pair it
// with near-end capture for echo cancellation, and so the echo gate can
// peek at recently rendered audio when AEC itself is disabled. It is
// fed through Recognizer.FeedFarEndAudio (for instance from a caller's
// AudioPlayer.OnAudioChunk hook on the playback goroutine) and drained
// from the capture goroutine, so every method locks.
//
// Unlike the original's _far_end_pcm16 deque (which the recognizer
// never even populates unless AEC is enabled), this buffer is always
// fed: the echo gate needs recent far-end audio precisely in the case
// AEC is off.
type farEndBuffer struct {
	mu      sync.Mutex
	pcm16   []byte
	maxSize int
}

// newFarEndBuffer creates a buffer that retains at most maxSize bytes of
// trailing far-end PCM16.
func newFarEndBuffer(maxSize int) *farEndBuffer {
	if maxSize <= 0 {
		maxSize = 48000 * 2 * 2 // ~2s at 48kHz mono 16-bit, a generous cap
	}
	return &farEndBuffer{maxSize: maxSize}
}

// feed appends PCM16 bytes, trimming the oldest bytes if the buffer
// would exceed maxSize.
func (f *farEndBuffer) feed(pcm16 []byte) {
	if len(pcm16) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pcm16 = append(f.pcm16, pcm16...)
	if over := len(f.pcm16) - f.maxSize; over > 0 {
		f.pcm16 = f.pcm16[over:]
	}
}

// pop removes and returns up to n bytes from the front of the buffer,
// zero-padding the tail if fewer than n bytes are available. Used by AEC
// pairing, which needs a far-end frame matched to each near-end frame
// even when rendering has fallen behind or already finished.
func (f *farEndBuffer) pop(n int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, n)
	if len(f.pcm16) == 0 {
		return out
	}
	take := n
	if take > len(f.pcm16) {
		take = len(f.pcm16)
	}
	copy(out, f.pcm16[:take])
	f.pcm16 = f.pcm16[take:]
	return out
}

// peekRecent returns (a copy of) up to the last n bytes fed, without
// consuming them. Used by the echo gate, which must not steal bytes the
// AEC pairing path (or a later peek) still needs.
func (f *farEndBuffer) peekRecent(n int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > len(f.pcm16) {
		n = len(f.pcm16)
	}
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, f.pcm16[len(f.pcm16)-n:])
	return out
}

// reset discards all buffered far-end audio.
func (f *farEndBuffer) reset() {
	f.mu.Lock()
	f.pcm16 = nil
	f.mu.Unlock()
}
