package voice

import (
	"os"
	"sync"

	"github.com/lpalbou/voicerun/internal/logger"
)

// Manager is the single entry point a host application talks to. It
// wires a PlaybackFacade, Recognizer, CloneOrchestrator, and
// TurnStateMachine together and exposes the public operations a caller
// needs, closing over turn-taking coordination so none of it leaks into
// the caller's own state. Grounded on vm/manager.py + vm/core.py for the
// wiring/cleanup shape.
type Manager struct {
	log       *logger.Logger
	facade    *PlaybackFacade
	recognizer *Recognizer
	clone     *CloneOrchestrator
	turnState *TurnStateMachine
	metrics   *MetricsSink
	sttAdapter STTAdapter
	ttsAdapter TTSAdapter
	cloneEngine CloneEngine
	cloneResolver VoiceResolver

	mu             sync.Mutex
	speed          float64
	cloneStreaming bool
}

// ManagerOption configures a Manager at construction time, alongside the
// already-built components NewManager is handed.
type ManagerOption func(*Manager)

// WithInitialSpeed sets the default playback speed new Speak calls use
// when the caller passes 0.
func WithInitialSpeed(speed float64) ManagerOption {
	return func(m *Manager) { m.speed = speed }
}

// WithCloneStreaming controls whether voice=... Speak calls use the
// streaming or whole-utterance clone synthesis path. Defaults to true.
func WithCloneStreaming(enabled bool) ManagerOption {
	return func(m *Manager) { m.cloneStreaming = enabled }
}

// NewManager assembles a Manager from its already-constructed parts.
// ttsAdapter/sttAdapter/cloneEngine/cloneResolver may all be nil — the
// corresponding operations then fail with ErrAdapterUnavailable rather
// than panicking, mirroring the original's lazy-engine checks.
func NewManager(
	facade *PlaybackFacade,
	recognizer *Recognizer,
	clone *CloneOrchestrator,
	turnState *TurnStateMachine,
	metrics *MetricsSink,
	ttsAdapter TTSAdapter,
	sttAdapter STTAdapter,
	cloneEngine CloneEngine,
	cloneResolver VoiceResolver,
	log *logger.Logger,
	opts ...ManagerOption,
) *Manager {
	m := &Manager{
		log:           log,
		facade:        facade,
		recognizer:    recognizer,
		clone:         clone,
		turnState:     turnState,
		metrics:       metrics,
		ttsAdapter:    ttsAdapter,
		sttAdapter:    sttAdapter,
		cloneEngine:   cloneEngine,
		cloneResolver: cloneResolver,
		speed:         1.0,
		cloneStreaming: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Speak synthesizes and plays text. voice=="" uses the configured
// TTSAdapter; a non-empty voice routes to the clone engine instead. speed
// of 0 uses the manager's current default (see SetSpeed).
func (m *Manager) Speak(text string, speed float64, voice string, sanitize bool, callback func()) (bool, error) {
	if sanitize {
		text = SanitizeMarkdownForSpeech(text)
	}
	if speed <= 0 {
		speed = m.GetSpeed()
	}

	m.turnState.OnPlaybackStart()
	wrapped := func() {
		m.turnState.OnPlaybackEnd()
		if callback != nil {
			callback()
		}
	}

	if voice != "" {
		ok, err := m.clone.Speak(text, voice, speed, m.cloneStreaming, wrapped)
		if err != nil {
			m.turnState.OnPlaybackEnd()
		}
		return ok, err
	}

	ok, err := m.facade.Speak(text, speed, wrapped)
	if err != nil || !ok {
		m.turnState.OnPlaybackEnd()
	}
	return ok, err
}

// Prefetch warms the synthesis cache for texts likely to be spoken
// soon, without playing anything back.
func (m *Manager) Prefetch(texts ...string) {
	m.facade.Prefetch(texts...)
}

// SpeakToBytes renders text to an encoded audio buffer without playing
// it: voice=="" routes to the TTSAdapter, a non-empty voice routes to
// the clone engine. format defaults to "wav" when empty.
func (m *Manager) SpeakToBytes(text, voice, format string) ([]byte, error) {
	if format == "" {
		format = "wav"
	}
	if voice != "" {
		if m.cloneEngine == nil || m.cloneResolver == nil {
			return nil, ErrAdapterUnavailable
		}
		refs, refText, err := m.cloneResolver.ResolveVoice(voice)
		if err != nil {
			return nil, err
		}
		return m.cloneEngine.InferToWAVBytes(text, refs, refText, m.GetSpeed())
	}
	if m.ttsAdapter == nil || !m.ttsAdapter.IsAvailable() {
		return nil, ErrAdapterUnavailable
	}
	return m.ttsAdapter.SynthesizeToBytes(text, format)
}

// SpeakToFile renders text to path via the same routing as
// SpeakToBytes, returning the path actually written.
func (m *Manager) SpeakToFile(text, voice, path, format string) (string, error) {
	if voice == "" {
		if m.ttsAdapter == nil || !m.ttsAdapter.IsAvailable() {
			return "", ErrAdapterUnavailable
		}
		return m.ttsAdapter.SynthesizeToFile(text, path, format)
	}
	data, err := m.SpeakToBytes(text, voice, format)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// StopSpeaking halts playback abruptly (no device teardown) and cancels
// any in-flight clone job. Because an abrupt stop can skip the natural
// drain event, it explicitly replays the end-of-playback routing so the
// recognizer never gets stuck paused.
func (m *Manager) StopSpeaking() error {
	if !m.facade.IsActive() && !m.clone.IsActive() {
		return ErrNotSpeaking
	}
	m.clone.Cancel()
	m.facade.Stop(false)
	m.turnState.OnAbruptStop()
	return nil
}

// PauseSpeaking pauses in-place playback.
func (m *Manager) PauseSpeaking() error {
	if !m.facade.IsActive() {
		return ErrNotSpeaking
	}
	m.facade.Pause()
	return nil
}

// ResumeSpeaking resumes paused playback.
func (m *Manager) ResumeSpeaking() error {
	if !m.facade.IsPaused() {
		return ErrNotSpeaking
	}
	m.facade.Resume()
	return nil
}

// IsSpeaking reports whether audio is queued or playing.
func (m *Manager) IsSpeaking() bool { return m.facade.IsActive() || m.clone.IsActive() }

// IsPaused reports whether playback is paused.
func (m *Manager) IsPaused() bool { return m.facade.IsPaused() }

// SetSpeed sets the default playback speed used when Speak is called
// with speed==0. Rejects values outside [0.5, 2.0].
func (m *Manager) SetSpeed(speed float64) error {
	if speed < 0.5 || speed > 2.0 {
		return ErrInvalidSpeed
	}
	m.mu.Lock()
	m.speed = speed
	m.mu.Unlock()
	return nil
}

// GetSpeed returns the current default playback speed.
func (m *Manager) GetSpeed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// SetLanguage sets both the TTS and STT adapters' active language. If
// either adapter rejects code, it returns ErrUnsupportedLanguage and the
// recognizer's default language is left unchanged; an adapter that
// accepted code before the other rejected it keeps the new language.
func (m *Manager) SetLanguage(code string) error {
	ok := true
	if m.ttsAdapter != nil {
		ok = m.ttsAdapter.SetLanguage(code) && ok
	}
	if m.sttAdapter != nil {
		ok = m.sttAdapter.SetLanguage(code) && ok
	}
	if !ok {
		return ErrUnsupportedLanguage
	}
	m.recognizer.SetLanguage(code)
	return nil
}

// GetLanguage returns the recognizer's current default transcription
// language.
func (m *Manager) GetLanguage() string { return m.recognizer.currentLanguage() }

// GetSupportedLanguages returns the union of languages the configured
// TTS and STT adapters support.
func (m *Manager) GetSupportedLanguages() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(codes []string) {
		for _, c := range codes {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	if m.ttsAdapter != nil {
		add(m.ttsAdapter.SupportedLanguages())
	}
	if m.sttAdapter != nil {
		add(m.sttAdapter.SupportedLanguages())
	}
	return out
}

// Listen starts the capture/recognition worker. onTranscription fires
// for ordinary speech, onStop for a detected stop phrase.
func (m *Manager) Listen(onTranscription func(string), onStop func()) error {
	ttsInterrupt := func() {
		if m.facade.IsActive() {
			m.StopSpeaking()
		}
	}
	return m.recognizer.Start(onTranscription, onStop, ttsInterrupt)
}

// StopListening halts the capture/recognition worker.
func (m *Manager) StopListening() error { return m.recognizer.Stop() }

// SetVoiceMode applies a listening profile to the recognizer.
func (m *Manager) SetVoiceMode(profile ListeningProfile) error { return m.recognizer.SetProfile(profile) }

// EnableAEC toggles acoustic echo cancellation and its loopback delay
// estimate. proc may be nil to use the shipped no-op NullAEC.
func (m *Manager) EnableAEC(enabled bool, proc AECProcessor, streamDelayMs int) {
	m.recognizer.EnableAEC(enabled, proc)
	if enabled {
		m.recognizer.SetAECStreamDelay(streamDelayMs)
	}
}

// FeedFarEndAudio provides rendered (speaker) audio as an AEC/echo-gate
// reference.
func (m *Manager) FeedFarEndAudio(frame []float32, sampleRate int) {
	m.recognizer.FeedFarEndAudio(frame, sampleRate)
}

// TranscribeFile transcribes an audio file on disk.
func (m *Manager) TranscribeFile(path, language string) (string, error) {
	if m.sttAdapter == nil || !m.sttAdapter.IsAvailable() {
		return "", ErrAdapterUnavailable
	}
	return m.sttAdapter.Transcribe(path, language)
}

// TranscribeFromBytes transcribes an in-memory encoded audio file.
func (m *Manager) TranscribeFromBytes(data []byte, language string) (string, error) {
	if m.sttAdapter == nil || !m.sttAdapter.IsAvailable() {
		return "", ErrAdapterUnavailable
	}
	return m.sttAdapter.TranscribeFromBytes(data, language)
}

// PopLastTTSMetrics returns and clears the most recently recorded
// synthesis metrics, covering both the plain and clone-voice paths.
func (m *Manager) PopLastTTSMetrics() (VoiceMetrics, bool) { return m.metrics.PopLastTTSMetrics() }

// Cleanup stops the recognizer and any in-flight clone job, and halts
// playback. Safe to call multiple times.
func (m *Manager) Cleanup() {
	if m.recognizer.IsRunning() {
		m.recognizer.Stop()
	}
	m.clone.Cancel()
	m.facade.Stop(true)
}
