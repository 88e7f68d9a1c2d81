package voice

import (
	"math"
	"sync"
	"testing"
)

func bytesToFloat32(buf []byte) []float32 {
	n := len(buf) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func TestAudioPlayerReadDrainsQueueInOrder(t *testing.T) {
	p := &AudioPlayer{openedRate: 16000}
	p.queue = [][]float32{{1, 2, 3}, {4, 5}}

	buf := make([]byte, 4*4) // room for 4 float32 samples
	n, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Read returned n=%d, want %d", n, len(buf))
	}

	got := bytesToFloat32(buf)
	want := []float32{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAudioPlayerReadPausedWritesSilenceWithoutConsuming(t *testing.T) {
	p := &AudioPlayer{openedRate: 16000, paused: true}
	p.queue = [][]float32{{1, 2, 3}}

	buf := make([]byte, 4*4)
	if _, err := p.Read(buf); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	for _, s := range bytesToFloat32(buf) {
		if s != 0 {
			t.Fatalf("expected silence while paused, got %v", s)
		}
	}
	if len(p.queue) != 1 || len(p.queue[0]) != 3 {
		t.Fatalf("paused Read must not consume the queue")
	}
}

func TestAudioPlayerOnAudioEndFiresOnDrain(t *testing.T) {
	p := &AudioPlayer{openedRate: 16000, playing: true}
	p.queue = [][]float32{{1, 2}}

	var mu sync.Mutex
	endFired := false
	p.onAudioEnd = func() {
		mu.Lock()
		endFired = true
		mu.Unlock()
	}

	buf := make([]byte, 8*4) // more than enough to drain the 2-sample queue
	if _, err := p.Read(buf); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !endFired {
		t.Fatalf("expected OnAudioEnd to fire once the queue drained")
	}
	if p.IsPlaying() {
		t.Fatalf("expected is_playing to be false after drain")
	}
}

func TestAudioPlayerOnAudioStartFiresOnceOnNonZeroSamples(t *testing.T) {
	p := &AudioPlayer{openedRate: 16000}
	p.queue = [][]float32{{0, 0, 1, 0}, {0, 1, 0}}

	starts := 0
	p.onAudioStart = func() { starts++ }

	buf := make([]byte, 4*4)
	if _, err := p.Read(buf); err != nil {
		t.Fatalf("read 1: %v", err)
	}
	if _, err := p.Read(buf); err != nil {
		t.Fatalf("read 2: %v", err)
	}
	if starts != 1 {
		t.Fatalf("OnAudioStart fired %d times, want 1", starts)
	}
}

func TestAudioPlayerOnAudioChunkSeesWrittenChunk(t *testing.T) {
	p := &AudioPlayer{openedRate: 24000}
	p.queue = [][]float32{{0.5, 0.25}}

	var gotRate int
	var gotLen int
	p.onAudioChunk = func(frame []float32, sampleRate int) {
		gotRate = sampleRate
		gotLen = len(frame)
	}

	buf := make([]byte, 2*4)
	if _, err := p.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if gotRate != 24000 {
		t.Fatalf("onAudioChunk rate = %d, want 24000", gotRate)
	}
	if gotLen != 2 {
		t.Fatalf("onAudioChunk frame len = %d, want 2", gotLen)
	}
}

func TestAudioPlayerPauseResumeFireOnTransitionOnly(t *testing.T) {
	p := &AudioPlayer{}
	pauses, resumes := 0, 0
	p.onAudioPause = func() { pauses++ }
	p.onAudioResume = func() { resumes++ }

	p.Pause()
	p.Pause() // already paused — no second fire
	if pauses != 1 {
		t.Fatalf("onAudioPause fired %d times, want 1", pauses)
	}

	p.Resume()
	p.Resume() // already resumed — no second fire
	if resumes != 1 {
		t.Fatalf("onAudioResume fired %d times, want 1", resumes)
	}
}

func TestNormalizeClippingOnlyScalesWhenClipping(t *testing.T) {
	quiet := []float32{0.1, -0.2, 0.3}
	if got := normalizeClipping(quiet); &got[0] != &quiet[0] {
		t.Fatalf("expected untouched slice when not clipping")
	}

	loud := []float32{2.0, -1.0, 0.5}
	out := normalizeClipping(loud)
	if out[0] != 1.0 {
		t.Fatalf("expected peak sample normalized to 1.0, got %v", out[0])
	}
	if out[1] != -0.5 {
		t.Fatalf("expected proportional scaling, got %v", out[1])
	}
}

func TestClearQueueResetsState(t *testing.T) {
	p := &AudioPlayer{playing: true}
	p.queue = [][]float32{{1, 2, 3}}
	p.current = []float32{9, 9}
	p.pos = 1

	p.ClearQueue()

	if p.IsPlaying() {
		t.Fatalf("expected is_playing false after ClearQueue")
	}
	if len(p.queue) != 0 || p.current != nil || p.pos != 0 {
		t.Fatalf("expected queue/current/pos reset")
	}
}
