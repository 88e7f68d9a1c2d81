package voice

import (
	"strconv"
	"sync"
	"time"

	"github.com/lpalbou/voicerun/internal/logger"
)

// CloneChunk is one streamed unit of clone-voice audio: a mono float32
// frame plus the sample rate it was rendered at.
type CloneChunk struct {
	Frame      []float32
	SampleRate int
}

// CloneChunkIterator is a pull iterator over streamed clone audio. Next
// returns ok=false once the underlying generator is exhausted, with no
// further calls expected afterward.
type CloneChunkIterator interface {
	Next() (chunk CloneChunk, ok bool, err error)
}

// CloneEngine renders cloned-voice speech given resolved reference
// material. It intentionally takes reference paths/text rather than a
// voice id — voice storage and id resolution are a VoiceResolver's job,
// kept out of this package per spec.
type CloneEngine interface {
	// InferToWAVBytes renders the full utterance as a WAV (PCM16) byte
	// slice in one call, used for the non-streaming playback path.
	InferToWAVBytes(text string, referencePaths []string, referenceText string, speed float64) ([]byte, error)
	// InferToAudioChunks renders the utterance incrementally, batching
	// text into roughly maxChars-sized pieces for lower latency to
	// first audio.
	InferToAudioChunks(text string, referencePaths []string, referenceText string, speed float64, maxChars int) (CloneChunkIterator, error)
}

// VoiceResolver resolves a voice id to the reference audio paths and
// transcript a CloneEngine needs. Voice storage, export/import, and
// naming all live outside this package — this is the one seam
// CloneOrchestrator needs to stay decoupled from that store.
type VoiceResolver interface {
	ResolveVoice(voiceID string) (referencePaths []string, referenceText string, err error)
}

// CancelToken is a one-shot cancellation signal. A fresh token MUST be
// allocated per utterance — reusing/clearing an old token risks a
// cancelled worker reading a token that has since been "un-cancelled"
// and resuming stale audio.
type CancelToken struct {
	ch   chan struct{}
	once sync.Once
}

// NewCancelToken creates an unset cancel token.
func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Cancel signals the token. Safe to call more than once or concurrently.
func (c *CancelToken) Cancel() {
	c.once.Do(func() { close(c.ch) })
}

// Cancelled reports whether Cancel has been called.
func (c *CancelToken) Cancelled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// CloneJob bundles one speak() request's parameters for the worker
// goroutine that executes it.
type CloneJob struct {
	Text      string
	VoiceID   string
	Speed     float64
	Streaming bool
	Callback  func()
	Cancel    *CancelToken
}

// CloneOrchestrator drives voice-cloned synthesis: stop whatever is
// playing, cancel any prior clone job, spin up a fresh worker, and
// record metrics once it finishes (or fails). It reuses PlaybackFacade
// for the actual device I/O so clone audio and adapter-synthesized
// audio share one playback queue and lifecycle hooks.
type CloneOrchestrator struct {
	log              *logger.Logger
	facade           *PlaybackFacade
	engine           CloneEngine
	resolver         VoiceResolver
	metrics          *MetricsSink
	targetSampleRate int
	maxChars         int

	mu     sync.Mutex
	cancel *CancelToken
	active bool
}

// NewCloneOrchestrator creates a CloneOrchestrator. engine/resolver may
// be nil until voice cloning is actually configured — Speak returns
// ErrAdapterUnavailable in that case.
func NewCloneOrchestrator(facade *PlaybackFacade, engine CloneEngine, resolver VoiceResolver, metrics *MetricsSink, log *logger.Logger, cfg Config) *CloneOrchestrator {
	return &CloneOrchestrator{
		log:              log,
		facade:           facade,
		engine:           engine,
		resolver:         resolver,
		metrics:          metrics,
		targetSampleRate: cfg.CloneTargetSampleRate,
		maxChars:         cfg.CloneMaxChars,
	}
}

// IsActive reports whether a clone synthesis worker is currently
// running.
func (o *CloneOrchestrator) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Cancel signals any in-flight clone job to stop at its next yield
// point, without touching the playback device.
func (o *CloneOrchestrator) Cancel() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel.Cancel()
	}
	o.mu.Unlock()
}

// Speak renders text in voiceID's cloned voice and plays it back.
// Streaming trades smoothness for lower time-to-first-audio.
//
// Sequence: stop current speech (flush only, no device teardown),
// signal and replace the cancel token, then start a worker goroutine.
// Speak returns once the worker has been launched — it does not wait
// for synthesis to finish.
func (o *CloneOrchestrator) Speak(text, voiceID string, speed float64, streaming bool, callback func()) (bool, error) {
	if o.engine == nil || o.resolver == nil {
		return false, ErrAdapterUnavailable
	}
	if text == "" {
		return false, ErrEmptyText
	}
	if speed <= 0 {
		speed = 1.0
	}
	if speed < 0.5 || speed > 2.0 {
		return false, ErrInvalidSpeed
	}

	refs, refText, err := o.resolver.ResolveVoice(voiceID)
	if err != nil {
		return false, err
	}

	o.facade.Stop(false)

	token := NewCancelToken()
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel.Cancel()
	}
	o.cancel = token
	o.active = true
	o.mu.Unlock()

	job := CloneJob{Text: text, VoiceID: voiceID, Speed: speed, Streaming: streaming, Callback: callback, Cancel: token}
	go o.runWorker(job, refs, refText)
	return true, nil
}

func (o *CloneOrchestrator) runWorker(job CloneJob, refs []string, refText string) {
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("clone: synthesis worker panicked: %v", rec)
			o.metrics.Record(VoiceMetrics{Engine: "clone", Error: "panic"})
		}
		o.mu.Lock()
		o.active = false
		o.mu.Unlock()
	}()

	if job.Streaming {
		o.speakStreaming(job, refs, refText)
	} else {
		o.speakNonStreaming(job, refs, refText)
	}
}

func (o *CloneOrchestrator) speakNonStreaming(job CloneJob, refs []string, refText string) {
	// The clone engine renders speed into the frame, so speed is part of
	// the cache tag.
	cacheTag := "clone:" + job.VoiceID + "@" + strconv.FormatFloat(job.Speed, 'g', -1, 64)
	start := time.Now()

	frame, sr, cached := o.facade.cache.get(cacheTag, job.Text)
	synthSeconds := 0.0
	if !cached {
		wav, err := o.engine.InferToWAVBytes(job.Text, refs, refText, job.Speed)
		if err != nil {
			o.recordError(err)
			return
		}
		synthSeconds = time.Since(start).Seconds()
		if job.Cancel.Cancelled() {
			return
		}

		var err2 error
		frame, sr, err2 = decodeWAVPCM16(wav)
		if err2 != nil {
			o.recordError(err2)
			return
		}
		o.facade.cache.put(cacheTag, job.Text, frame, sr)
	}
	if job.Cancel.Cancelled() {
		return
	}

	if err := o.facade.BeginPlayback(sr); err != nil {
		o.recordError(err)
		return
	}
	if job.Cancel.Cancelled() {
		return
	}

	if err := o.facade.PlayAudioArray(frame, sr, job.Callback); err != nil {
		o.recordError(err)
		return
	}

	audioSeconds := 0.0
	if sr > 0 {
		audioSeconds = float64(len(frame)) / float64(sr)
	}
	rtf := 0.0
	if audioSeconds > 0 {
		rtf = synthSeconds / audioSeconds
	}
	o.metrics.Record(VoiceMetrics{
		Engine:       "clone",
		Streaming:    false,
		SynthSeconds: synthSeconds,
		AudioSeconds: audioSeconds,
		RTF:          rtf,
		SampleRate:   sr,
		AudioSamples: len(frame),
	})
}

func (o *CloneOrchestrator) speakStreaming(job CloneJob, refs []string, refText string) {
	start := time.Now()
	it, err := o.engine.InferToAudioChunks(job.Text, refs, refText, job.Speed, o.maxChars)
	if err != nil {
		o.recordError(err)
		return
	}

	if err := o.facade.BeginPlayback(o.targetSampleRate); err != nil {
		o.recordError(err)
		return
	}
	if job.Callback != nil {
		o.facade.enqueueDrain(job.Callback)
	}

	var firstChunkAt time.Time
	totalSamples := 0
	chunks := 0

	for {
		if job.Cancel.Cancelled() {
			break
		}
		c, ok, err := it.Next()
		if err != nil {
			o.recordError(err)
			return
		}
		if !ok {
			break
		}
		if firstChunkAt.IsZero() {
			firstChunkAt = time.Now()
		}
		frame := c.Frame
		if c.SampleRate > 0 && c.SampleRate != o.targetSampleRate {
			frame = ResampleLinear(frame, c.SampleRate, o.targetSampleRate)
		}
		totalSamples += len(frame)
		chunks++
		if err := o.facade.EnqueueAudio(frame, o.targetSampleRate); err != nil {
			o.recordError(err)
			return
		}
	}

	synthSeconds := time.Since(start).Seconds()
	ttfb := 0.0
	if !firstChunkAt.IsZero() {
		ttfb = firstChunkAt.Sub(start).Seconds()
	}
	audioSeconds := 0.0
	if totalSamples > 0 {
		audioSeconds = float64(totalSamples) / float64(o.targetSampleRate)
	}
	rtf := 0.0
	if audioSeconds > 0 {
		rtf = synthSeconds / audioSeconds
	}
	o.metrics.Record(VoiceMetrics{
		Engine:       "clone",
		Streaming:    true,
		SynthSeconds: synthSeconds,
		AudioSeconds: audioSeconds,
		RTF:          rtf,
		SampleRate:   o.targetSampleRate,
		AudioSamples: totalSamples,
		TTFBSeconds:  ttfb,
		Chunks:       chunks,
		Cancelled:    job.Cancel.Cancelled(),
	})
}

func (o *CloneOrchestrator) recordError(err error) {
	o.log.Error("clone: synthesis failed: %v", err)
	o.metrics.Record(VoiceMetrics{Engine: "clone", Error: err.Error()})
}
