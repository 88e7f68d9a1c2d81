package voice

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/lpalbou/voicerun/internal/logger"
)

// speechDetector is the subset of VAD's surface the recognizer depends
// on, factored out so tests can substitute a fake classifier without
// opening a real ONNX session. *VAD satisfies it structurally.
type speechDetector interface {
	IsSpeech(pcm16 []byte) (bool, error)
}

var _ speechDetector = (*VAD)(nil)

// RecognizerOption configures a Recognizer at construction time.
type RecognizerOption func(*Recognizer)

// WithRecognizerLanguage sets the default transcription language passed
// to the STT adapter. "" means auto-detect.
func WithRecognizerLanguage(code string) RecognizerOption {
	return func(r *Recognizer) { r.language = code }
}

// WithStopPhrases overrides the configured stop phrase set.
func WithStopPhrases(phrases ...string) RecognizerOption {
	return func(r *Recognizer) { r.stopMatcher = NewStopPhraseMatcher(phrases...) }
}

// Recognizer runs a single capture-and-transcription worker: it reads
// fixed-size PCM16 chunks from the microphone, classifies them with a
// VAD, accumulates utterances, and hands finished utterances to a
// transcription or stop callback. It also runs a low-rate rolling
// stop-phrase detector so "stop" keeps working while normal
// transcription is paused during TTS playback.
//
// Loop state (speechBuffer/speechCount/silenceCount/recording and the
// stop-ring fields) is touched only by the single active capture
// goroutine; processChunk is exported to package tests but must never
// be called concurrently with a running captureLoop.
type Recognizer struct {
	log *logger.Logger
	vad speechDetector
	stt STTAdapter

	sampleRate      int
	chunkDurationMs int
	chunkSize       int

	mu                          sync.Mutex
	language                    string
	profile                     ListeningProfile
	minSpeechChunks             int
	silenceTimeoutChunks        int
	defaultMinSpeechChunks      int
	defaultSilenceTimeoutChunks int
	listeningPaused             bool
	transcriptionsPaused        bool
	ttsInterruptEnabled         bool
	running                     bool
	aecEnabled                  bool
	aec                         AECProcessor

	farEnd *farEndBuffer

	stopMatcher       *StopPhraseMatcher
	stopWindowSeconds float64
	stopCheckInterval time.Duration
	stopConfirmWindow time.Duration

	transcriptionCallback func(text string)
	stopCallback          func()
	ttsInterruptCallback  func()

	stopCh chan struct{}
	wg     sync.WaitGroup

	// loop state, capture-goroutine-owned
	speechBuffer  [][]byte
	speechCount   int
	silenceCount  int
	recording     bool
	stopRing      []byte
	stopLastCheck time.Time
	stopHitCount  int
	stopHitDeadline time.Time
}

// NewRecognizer creates a Recognizer. vad and stt must be non-nil; the
// capture device itself is opened lazily in Start.
func NewRecognizer(vad speechDetector, stt STTAdapter, cfg Config, log *logger.Logger, opts ...RecognizerOption) *Recognizer {
	chunkSize := cfg.CaptureSampleRate * cfg.ChunkDurationMs / 1000
	defaultMin := roundDiv(cfg.MinSpeechDurationMs, cfg.ChunkDurationMs)
	defaultSilence := roundDiv(cfg.SilenceTimeoutMs, cfg.ChunkDurationMs)

	r := &Recognizer{
		log:                         log,
		vad:                         vad,
		stt:                         stt,
		sampleRate:                  cfg.CaptureSampleRate,
		chunkDurationMs:             cfg.ChunkDurationMs,
		chunkSize:                   chunkSize,
		profile:                     cfg.ListeningProfile,
		defaultMinSpeechChunks:      defaultMin,
		defaultSilenceTimeoutChunks: defaultSilence,
		ttsInterruptEnabled:         true,
		farEnd:                      newFarEndBuffer(0),
		stopMatcher:                 NewStopPhraseMatcher(),
		stopWindowSeconds:           cfg.StopWindowSeconds,
		stopCheckInterval:           time.Duration(cfg.StopIntervalMs) * time.Millisecond,
		stopConfirmWindow:           time.Duration(cfg.StopConfirmWindowSeconds * float64(time.Second)),
	}
	for _, opt := range opts {
		opt(r)
	}
	_ = r.SetProfile(r.profile)
	return r
}

// roundDiv rounds ms/chunkMs to the nearest chunk count.
func roundDiv(ms, chunkMs int) int {
	if chunkMs <= 0 {
		return 0
	}
	return int(math.Round(float64(ms) / float64(chunkMs)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// SetProfile applies the thresholds for a listening profile, following
// the same tuning recognition.py's set_profile uses: PTT favors very low
// latency, FULL is tuned to start/stop recording sooner (barge-in
// scenarios), everything else uses the conservative default derived
// from Config's MinSpeechDurationMs/SilenceTimeoutMs.
func (r *Recognizer) SetProfile(p ListeningProfile) error {
	switch p {
	case ProfileOff, ProfileWait, ProfileStop, ProfileFull, ProfilePTT:
	default:
		return ErrUnknownProfile
	}

	r.mu.Lock()
	r.profile = p
	switch p {
	case ProfilePTT:
		r.minSpeechChunks = 1
		r.silenceTimeoutChunks = maxInt(8, roundDiv(700, r.chunkDurationMs))
	case ProfileFull:
		r.minSpeechChunks = maxInt(3, roundDiv(180, r.chunkDurationMs))
		r.silenceTimeoutChunks = maxInt(12, roundDiv(900, r.chunkDurationMs))
	default:
		r.minSpeechChunks = r.defaultMinSpeechChunks
		r.silenceTimeoutChunks = r.defaultSilenceTimeoutChunks
	}
	minC, silC := r.minSpeechChunks, r.silenceTimeoutChunks
	r.mu.Unlock()

	r.log.Debug("recognizer: profile set to %s (min_speech_chunks=%d, silence_timeout_chunks=%d)", p, minC, silC)
	return nil
}

// Profile returns the currently applied listening profile.
func (r *Recognizer) Profile() ListeningProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profile
}

// SetLanguage sets the default transcription language. "" means
// auto-detect.
func (r *Recognizer) SetLanguage(code string) {
	r.mu.Lock()
	r.language = code
	r.mu.Unlock()
}

func (r *Recognizer) currentLanguage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.language
}

// EnableAEC toggles acoustic echo cancellation. Passing enabled=false
// clears any processor and discards buffered far-end audio. Passing
// enabled=true with a nil proc installs a NullAEC, which exercises the
// buffering/pairing machinery without cancelling anything.
func (r *Recognizer) EnableAEC(enabled bool, proc AECProcessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !enabled {
		r.aecEnabled = false
		r.aec = nil
		r.farEnd.reset()
		return
	}
	if proc == nil {
		proc = NewNullAEC()
	}
	r.aec = proc
	r.aecEnabled = true
}

// AECEnabled reports whether AEC is currently active.
func (r *Recognizer) AECEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aecEnabled
}

// SetAECStreamDelay forwards an updated loopback delay estimate to the
// active AEC processor, if any.
func (r *Recognizer) SetAECStreamDelay(ms int) {
	r.mu.Lock()
	proc := r.aec
	r.mu.Unlock()
	if proc != nil {
		proc.SetStreamDelay(ms)
	}
}

// FeedFarEndAudio provides rendered (speaker) audio as an AEC/echo-gate
// reference. Unlike the original implementation, this always buffers
// the frame regardless of whether AEC is enabled: the echo gate in
// processChunk needs recent far-end audio specifically in the case AEC
// is off, so early-returning here (as recognition.py's
// feed_far_end_audio does) would make the echo gate blind exactly when
// it is needed.
func (r *Recognizer) FeedFarEndAudio(frame []float32, sampleRate int) {
	if len(frame) == 0 {
		return
	}
	mono := frame
	if sampleRate > 0 && sampleRate != r.sampleRate {
		mono = ResampleLinear(frame, sampleRate, r.sampleRate)
	}
	r.farEnd.feed(float32ToPCM16(mono))
}

// PauseListening stops the capture loop from processing audio entirely,
// while keeping the worker goroutine alive.
func (r *Recognizer) PauseListening() {
	r.mu.Lock()
	r.listeningPaused = true
	r.mu.Unlock()
	r.log.Debug("recognizer: listening paused")
}

// ResumeListening undoes PauseListening.
func (r *Recognizer) ResumeListening() {
	r.mu.Lock()
	r.listeningPaused = false
	r.mu.Unlock()
	r.log.Debug("recognizer: listening resumed")
}

func (r *Recognizer) isListeningPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listeningPaused
}

// PauseTranscriptions suppresses the normal transcription callback
// while leaving the rolling stop-phrase detector armed.
func (r *Recognizer) PauseTranscriptions() {
	r.mu.Lock()
	r.transcriptionsPaused = true
	r.mu.Unlock()
	r.log.Debug("recognizer: transcriptions paused")
}

// ResumeTranscriptions re-enables the normal transcription callback.
func (r *Recognizer) ResumeTranscriptions() {
	r.mu.Lock()
	r.transcriptionsPaused = false
	r.mu.Unlock()
	r.log.Debug("recognizer: transcriptions resumed")
}

func (r *Recognizer) isTranscriptionsPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcriptionsPaused
}

// PauseTTSInterrupt disables the barge-in callback, typically while the
// system is speaking and interruption should be ignored.
func (r *Recognizer) PauseTTSInterrupt() {
	r.mu.Lock()
	r.ttsInterruptEnabled = false
	r.mu.Unlock()
	r.log.Debug("recognizer: tts interrupt paused")
}

// ResumeTTSInterrupt re-enables the barge-in callback.
func (r *Recognizer) ResumeTTSInterrupt() {
	r.mu.Lock()
	r.ttsInterruptEnabled = true
	r.mu.Unlock()
	r.log.Debug("recognizer: tts interrupt resumed")
}

// Start begins capturing audio on a dedicated goroutine. Returns
// ErrAlreadyListening if already running.
func (r *Recognizer) Start(transcriptionCallback func(string), stopCallback func(), ttsInterruptCallback func()) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyListening
	}
	r.transcriptionCallback = transcriptionCallback
	r.stopCallback = stopCallback
	r.ttsInterruptCallback = ttsInterruptCallback
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	r.speechBuffer = nil
	r.speechCount = 0
	r.silenceCount = 0
	r.recording = false
	r.stopRing = nil
	r.stopHitCount = 0

	r.wg.Add(1)
	go r.captureLoop()
	r.log.Info("recognizer: started")
	return nil
}

// Stop halts the capture goroutine and waits for it to exit. Returns
// ErrNotListening if not running.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotListening
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info("recognizer: stopped")
	return nil
}

// IsRunning reports whether the capture goroutine is active.
func (r *Recognizer) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Recognizer) captureLoop() {
	defer r.wg.Done()

	if err := portaudio.Initialize(); err != nil {
		r.log.Error("recognizer: portaudio init failed: %v", err)
		return
	}
	defer portaudio.Terminate()

	buf := make([]int16, r.chunkSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.sampleRate), len(buf), &buf)
	if err != nil {
		r.log.Error("recognizer: opening capture stream failed: %v", err)
		return
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		r.log.Error("recognizer: starting capture stream failed: %v", err)
		return
	}
	defer stream.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		if r.isListeningPaused() {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if err := stream.Read(); err != nil {
			r.log.Debug("recognizer: capture read error: %v", err)
			continue
		}

		r.processChunk(int16SliceToPCM16(buf))
	}
}

// processChunk runs the per-chunk procedure: AEC, rolling stop-phrase
// detection, then VAD-driven utterance accumulation. Exported to
// package tests only (lowercase, same-package access) so the pipeline
// can be exercised without real hardware or an ONNX session.
func (r *Recognizer) processChunk(pcm16 []byte) {
	pcm16 = r.applyAEC(pcm16)

	if r.isTranscriptionsPaused() && r.stopCallback != nil {
		if r.maybeDetectStopPhraseRolling(pcm16) {
			return
		}
	}

	isSpeech, err := r.vad.IsSpeech(pcm16)
	if err != nil {
		r.log.Debug("recognizer: vad error: %v", err)
		return
	}

	r.mu.Lock()
	minSpeechChunks := r.minSpeechChunks
	silenceTimeoutChunks := r.silenceTimeoutChunks
	ttsInterruptEnabled := r.ttsInterruptEnabled
	aecEnabled := r.aecEnabled
	r.mu.Unlock()

	if isSpeech {
		r.speechBuffer = append(r.speechBuffer, pcm16)
		r.speechCount++
		r.silenceCount = 0

		if r.ttsInterruptCallback != nil && ttsInterruptEnabled &&
			r.speechCount >= minSpeechChunks && !r.recording {
			if aecEnabled || !r.echoGated(pcm16) {
				r.ttsInterruptCallback()
				r.log.Debug("recognizer: tts interrupted by user speech")
			}
		}

		if r.speechCount >= minSpeechChunks {
			r.recording = true
		}
		return
	}

	if r.recording {
		r.speechBuffer = append(r.speechBuffer, pcm16)
		r.silenceCount++
		if r.silenceCount >= silenceTimeoutChunks {
			r.flushUtterance()
		}
		return
	}

	r.speechCount--
	if r.speechCount < 0 {
		r.speechCount = 0
	}
	if r.speechCount == 0 {
		r.speechBuffer = nil
	}
}

// flushUtterance transcribes the accumulated speech buffer, dispatches
// it as a stop command or a normal transcription, and resets the
// recording state.
func (r *Recognizer) flushUtterance() {
	chunks := r.speechBuffer
	r.speechBuffer = nil
	r.speechCount = 0
	r.silenceCount = 0
	r.recording = false

	var total int
	for _, c := range chunks {
		total += len(c)
	}
	if total == 0 {
		return
	}
	audio := make([]byte, 0, total)
	for _, c := range chunks {
		audio = append(audio, c...)
	}

	text, err := r.stt.TranscribeFromArray(pcm16ToFloat32(audio), r.sampleRate, r.currentLanguage(), nil, true)
	if err != nil {
		r.log.Debug("recognizer: transcription failed: %v", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	r.log.Debug("recognizer: transcribed %q", text)

	if _, ok := r.stopMatcher.Match(text); ok {
		sttStopDetections.Inc()
		if r.stopCallback != nil {
			r.stopCallback()
		} else if r.transcriptionCallback != nil {
			r.transcriptionCallback(text)
		}
		return
	}

	vadSpeechSegments.Inc()
	if !r.isTranscriptionsPaused() && r.transcriptionCallback != nil {
		r.transcriptionCallback(text)
	}
}

// maybeDetectStopPhraseRolling appends pcm16 to the rolling stop ring,
// clips it to the configured window, and — rate-limited — transcribes
// it purely to look for a stop phrase. Returns true if stop_callback
// fired, in which case the caller must not also feed pcm16 to the VAD
// pipeline.
func (r *Recognizer) maybeDetectStopPhraseRolling(pcm16 []byte) bool {
	now := time.Now()
	r.stopRing = append(r.stopRing, pcm16...)
	maxBytes := int(float64(r.sampleRate) * r.stopWindowSeconds * 2)
	if maxBytes > 0 && len(r.stopRing) > maxBytes {
		r.stopRing = r.stopRing[len(r.stopRing)-maxBytes:]
	}

	if now.Sub(r.stopLastCheck) < r.stopCheckInterval {
		return false
	}
	r.stopLastCheck = now

	text, err := r.stt.TranscribeFromArray(pcm16ToFloat32(r.stopRing), r.sampleRate, r.currentLanguage(),
		[]string{"stop", "ok stop", "okay stop"}, false)
	if err != nil {
		return false
	}
	text = strings.TrimSpace(text)

	if words := strings.Fields(text); len(words) > 4 {
		r.stopHitCount = 0
		return false
	}

	matched, ok := r.stopMatcher.Match(text)
	if !ok {
		return false
	}

	now2 := time.Now()
	if matched == "stop" {
		if now2.After(r.stopHitDeadline) {
			r.stopHitCount = 0
		}
		r.stopHitDeadline = now2.Add(r.stopConfirmWindow)
		r.stopHitCount++
		if r.stopHitCount < 2 {
			return false
		}
	} else {
		r.stopHitCount = 0
	}

	sttStopDetections.Inc()
	if r.stopCallback != nil {
		r.stopCallback()
	}
	r.stopRing = nil
	r.stopLastCheck = time.Now()
	return true
}

// applyAEC runs near-end PCM16 through the active AEC processor in 10ms
// sub-frames, pairing each with the next buffered far-end sub-frame. A
// nil/disabled processor is a pass-through.
func (r *Recognizer) applyAEC(pcm16 []byte) []byte {
	r.mu.Lock()
	enabled := r.aecEnabled
	proc := r.aec
	r.mu.Unlock()
	if !enabled || proc == nil {
		return pcm16
	}

	frameBytes := int(float64(r.sampleRate)*0.01) * 2
	if frameBytes <= 0 {
		return pcm16
	}

	padded := pcm16
	if rem := len(padded) % frameBytes; rem != 0 {
		padded = append(append([]byte{}, padded...), make([]byte, frameBytes-rem)...)
	}

	out := make([]byte, 0, len(padded))
	for i := 0; i < len(padded); i += frameBytes {
		near := padded[i : i+frameBytes]
		far := r.farEnd.pop(frameBytes)
		cleaned, err := proc.Process(near, far)
		if err != nil {
			r.log.Debug("recognizer: aec process error: %v", err)
			cleaned = near
		}
		out = append(out, cleaned...)
	}
	return out
}

// echoGated reports whether near should be suppressed from triggering a
// barge-in interrupt because it closely matches recently rendered
// far-end audio. Only consulted when AEC is disabled.
func (r *Recognizer) echoGated(near []byte) bool {
	far := r.farEnd.peekRecent(len(near))
	if len(far) == 0 {
		return false
	}
	return echoCorrelated(near, far)
}

// echoCorrelated reports whether two equal-length PCM16 buffers are
// near-identical (byte equality) or strongly correlated (normalized
// dot product >= 0.95), either of which indicates near is an echo of
// far rather than independent speech.
func echoCorrelated(near, far []byte) bool {
	if len(near) == 0 || len(near) != len(far) {
		return false
	}
	if bytes.Equal(near, far) {
		return true
	}

	n := len(near) / 2
	if n == 0 {
		return false
	}
	var dot, nearSq, farSq float64
	for i := 0; i < n; i++ {
		a := float64(int16(binary.LittleEndian.Uint16(near[i*2 : i*2+2])))
		b := float64(int16(binary.LittleEndian.Uint16(far[i*2 : i*2+2])))
		dot += a * b
		nearSq += a * a
		farSq += b * b
	}
	if nearSq == 0 || farSq == 0 {
		return false
	}
	corr := dot / (math.Sqrt(nearSq) * math.Sqrt(farSq))
	return corr >= 0.95
}

// ── PCM16 <-> float32 conversions shared across the capture path ──

func int16SliceToPCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func pcm16ToFloat32(pcm16 []byte) []float32 {
	n := len(pcm16) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm16[i*2 : i*2+2]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

func float32ToPCM16(frame []float32) []byte {
	out := make([]byte, len(frame)*2)
	for i, s := range frame {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	return out
}
