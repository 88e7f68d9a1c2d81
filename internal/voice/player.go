package voice

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/lpalbou/voicerun/internal/logger"
)

// fallbackRates is tried, in order, after the caller's requested rate
// fails to open. Mirrors the device-negotiation ladder a desktop audio
// stack falls back through when the requested rate isn't native.
var fallbackRates = []int{48000, 44100, 24000, 22050, 16000}

// PlayerOption configures an AudioPlayer.
type PlayerOption func(*AudioPlayer)

// WithBlockSizes overrides the candidate block sizes (in frames) tried
// when opening the stream. 0 means "let oto pick its own buffer size".
func WithBlockSizes(sizes []int) PlayerOption {
	return func(p *AudioPlayer) { p.blockSizes = sizes }
}

// AudioPlayer is a non-blocking, callback-driven mono float32 audio
// output. oto's io.Reader-driven Player IS the audio callback here: oto
// pulls fixed-size buffers from AudioPlayer.Read on its own goroutine,
// exactly the role sounddevice's output callback plays in the original.
//
// The queue is single-consumer (Read, called only from oto's playback
// goroutine) / multi-producer (PlayAudio, called from synthesis
// workers). Only Read ever mutates current/pos — producers append only.
type AudioPlayer struct {
	log *logger.Logger

	blockSizes []int

	mu        sync.Mutex
	ctx       *oto.Context
	otoPlayer *oto.Player
	openedRate int

	queue   [][]float32
	current []float32
	pos     int

	playing bool
	paused  bool

	audioStartFired bool

	onAudioStart  func()
	onAudioEnd    func()
	onAudioPause  func()
	onAudioResume func()
	onAudioChunk  func(frame []float32, sampleRate int)
}

// NewAudioPlayer creates an audio player. The device stream isn't opened
// until StartStream (or the first PlayAudio) is called.
func NewAudioPlayer(log *logger.Logger, opts ...PlayerOption) *AudioPlayer {
	p := &AudioPlayer{
		log:        log,
		blockSizes: []int{1024, 0},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnAudioStart registers the hook fired the first time the callback
// writes non-zero samples after a stream is (re)opened.
func (p *AudioPlayer) OnAudioStart(fn func()) {
	p.mu.Lock()
	p.onAudioStart = fn
	p.mu.Unlock()
}

// OnAudioEnd registers the hook fired when the queue drains, the current
// frame is exhausted, and is_playing transitions to false.
func (p *AudioPlayer) OnAudioEnd(fn func()) {
	p.mu.Lock()
	p.onAudioEnd = fn
	p.mu.Unlock()
}

// OnAudioPause registers the hook fired on a paused-state transition.
func (p *AudioPlayer) OnAudioPause(fn func()) {
	p.mu.Lock()
	p.onAudioPause = fn
	p.mu.Unlock()
}

// OnAudioResume registers the hook fired on a resumed-state transition.
func (p *AudioPlayer) OnAudioResume(fn func()) {
	p.mu.Lock()
	p.onAudioResume = fn
	p.mu.Unlock()
}

// OnAudioChunk registers the hook fired for exactly the chunk about to
// be written to the device — not the enqueued frame — so AEC consumers
// see precisely what went out the speaker.
func (p *AudioPlayer) OnAudioChunk(fn func(frame []float32, sampleRate int)) {
	p.mu.Lock()
	p.onAudioChunk = fn
	p.mu.Unlock()
}

// StartStream opens the output device, trying requestedRate first and
// falling back through fallbackRates and p.blockSizes. Idempotent — a
// second call while a stream is already open is a no-op.
func (p *AudioPlayer) StartStream(requestedRate int) error {
	p.mu.Lock()
	if p.ctx != nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	var lastErr error
	for _, rate := range rateCandidates(requestedRate) {
		for _, bs := range p.blockSizes {
			opts := &oto.NewContextOptions{
				SampleRate:   rate,
				ChannelCount: 1,
				Format:       oto.FormatFloat32LE,
			}
			if bs > 0 {
				opts.BufferSize = time.Duration(bs) * time.Second / time.Duration(rate)
			}

			ctx, ready, err := oto.NewContext(opts)
			if err != nil {
				lastErr = err
				p.log.Warn("player: open rate=%d blocksize=%d failed: %v", rate, bs, err)
				continue
			}
			<-ready

			otoPlayer := ctx.NewPlayer(p)
			otoPlayer.Play()

			p.mu.Lock()
			p.ctx = ctx
			p.otoPlayer = otoPlayer
			p.openedRate = rate
			p.audioStartFired = false
			p.mu.Unlock()

			p.log.Info("player: stream opened (rate=%dhz, blocksize=%d)", rate, bs)
			return nil
		}
	}

	if lastErr == nil {
		lastErr = ErrDeviceUnavailable
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, lastErr)
}

// rateCandidates returns requested followed by the fallback ladder, with
// duplicates removed.
func rateCandidates(requested int) []int {
	seen := make(map[int]bool)
	var out []int
	add := func(r int) {
		if r > 0 && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	add(requested)
	for _, r := range fallbackRates {
		add(r)
	}
	return out
}

// OpenedRate returns the sample rate the device stream actually opened
// at, or 0 if no stream is open.
func (p *AudioPlayer) OpenedRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openedRate
}

// PlayAudio ensures the stream is open (at sampleRate, if not already
// open at some other rate), resamples the frame to the opened rate if
// needed, peak-normalizes clipping audio, and enqueues it for playback.
func (p *AudioPlayer) PlayAudio(frame []float32, sampleRate int) error {
	if err := p.StartStream(sampleRate); err != nil {
		return err
	}

	opened := p.OpenedRate()
	out := frame
	if sampleRate > 0 && sampleRate != opened {
		out = ResampleLinear(frame, sampleRate, opened)
	}
	out = normalizeClipping(out)

	p.mu.Lock()
	p.queue = append(p.queue, out)
	p.playing = true
	p.mu.Unlock()
	return nil
}

// normalizeClipping divides every sample by the frame's peak absolute
// value when that peak exceeds 1.0, otherwise returns the frame as-is.
func normalizeClipping(frame []float32) []float32 {
	var peak float32
	for _, s := range frame {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	if peak <= 1.0 {
		return frame
	}
	out := make([]float32, len(frame))
	for i, s := range frame {
		out[i] = s / peak
	}
	return out
}

// Pause mutes the callback's output (it keeps writing zeros) without
// disturbing the queue. Fires OnAudioPause only on the false->true
// transition.
func (p *AudioPlayer) Pause() {
	p.mu.Lock()
	already := p.paused
	p.paused = true
	hook := p.onAudioPause
	p.mu.Unlock()
	if !already && hook != nil {
		hook()
	}
}

// Resume undoes Pause. Fires OnAudioResume only on the true->false
// transition.
func (p *AudioPlayer) Resume() {
	p.mu.Lock()
	was := p.paused
	p.paused = false
	hook := p.onAudioResume
	p.mu.Unlock()
	if was && hook != nil {
		hook()
	}
}

// IsPaused reports the current paused state.
func (p *AudioPlayer) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// IsPlaying reports whether the queue has audio still in flight.
func (p *AudioPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// ClearQueue discards all queued and in-flight audio and marks playback
// stopped. Safe to call at any time, including while idle.
func (p *AudioPlayer) ClearQueue() {
	p.mu.Lock()
	p.queue = nil
	p.current = nil
	p.pos = 0
	p.playing = false
	p.mu.Unlock()
}

// StopStream clears the queue and, if closeStream is true, tears down
// the device. closeStream=false keeps the device open — some host APIs
// (notably macOS AUHAL) get progressively flakier across repeated
// open/close cycles, so callers that expect to speak again soon should
// pass false.
func (p *AudioPlayer) StopStream(closeStream bool) {
	p.ClearQueue()
	if !closeStream {
		return
	}

	p.mu.Lock()
	otoPlayer := p.otoPlayer
	p.otoPlayer = nil
	p.ctx = nil
	p.openedRate = 0
	p.mu.Unlock()

	if otoPlayer != nil {
		otoPlayer.Pause()
		if err := otoPlayer.Close(); err != nil {
			p.log.Warn("player: close failed: %v", err)
		}
	}
}

// Read implements io.Reader — this is the pull-style audio callback oto
// invokes on its own goroutine. It must never block and must degrade to
// silence rather than error.
func (p *AudioPlayer) Read(buf []byte) (int, error) {
	n := len(buf) / 4
	if n == 0 {
		return 0, nil
	}
	frame := make([]float32, n)

	p.mu.Lock()
	if !p.paused {
		p.fillLocked(frame)
	}
	rate := p.openedRate
	wasPlaying := p.playing
	drained := !p.paused && p.current == nil && len(p.queue) == 0
	if drained && wasPlaying {
		p.playing = false
	}
	fireStart := !p.paused && !p.audioStartFired && hasNonZero(frame)
	if fireStart {
		p.audioStartFired = true
	}
	fireEnd := drained && wasPlaying
	chunkHook := p.onAudioChunk
	startHook := p.onAudioStart
	endHook := p.onAudioEnd
	p.mu.Unlock()

	for i, s := range frame {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}

	if chunkHook != nil {
		chunkHook(frame, rate)
	}
	if fireStart && startHook != nil {
		startHook()
	}
	if fireEnd && endHook != nil {
		endHook()
	}
	return n * 4, nil
}

// fillLocked copies queued audio into out, consuming current/queue as it
// goes. Must be called with p.mu held. Any tail left after the queue
// drains stays zero (Go zero-values the slice on allocation).
func (p *AudioPlayer) fillLocked(out []float32) {
	i := 0
	for i < len(out) {
		if p.current == nil {
			if len(p.queue) == 0 {
				return
			}
			p.current = p.queue[0]
			p.queue = p.queue[1:]
			p.pos = 0
		}
		n := copy(out[i:], p.current[p.pos:])
		p.pos += n
		i += n
		if p.pos >= len(p.current) {
			p.current = nil
			p.pos = 0
		}
	}
}

func hasNonZero(frame []float32) bool {
	for _, s := range frame {
		if s != 0 {
			return true
		}
	}
	return false
}
