package voice

import (
	"testing"

	"github.com/lpalbou/voicerun/internal/logger"
)

type fakeTTSAdapter struct {
	name       string
	available  bool
	languages  []string
	lang       string
	sampleRate int
	bytesOut   []byte
}

func (f *fakeTTSAdapter) Name() string { return f.name }
func (f *fakeTTSAdapter) Synthesize(text string) ([]float32, error) {
	return make([]float32, 100), nil
}
func (f *fakeTTSAdapter) SynthesizeToBytes(text, format string) ([]byte, error) { return f.bytesOut, nil }
func (f *fakeTTSAdapter) SynthesizeToFile(text, path, format string) (string, error) {
	return path, nil
}
func (f *fakeTTSAdapter) SetLanguage(code string) bool {
	for _, l := range f.languages {
		if l == code {
			f.lang = code
			return true
		}
	}
	return false
}
func (f *fakeTTSAdapter) SupportedLanguages() []string { return f.languages }
func (f *fakeTTSAdapter) SampleRate() int               { return f.sampleRate }
func (f *fakeTTSAdapter) IsAvailable() bool             { return f.available }
func (f *fakeTTSAdapter) Info() map[string]string       { return map[string]string{"engine": f.name} }

func newTestManager(t *testing.T, adapter TTSAdapter, engine CloneEngine, resolver VoiceResolver) (*Manager, *MetricsSink) {
	t.Helper()
	cfg := defaultConfig()
	cfg.CaptureSampleRate = 16000
	cfg.ChunkDurationMs = 30
	log := logger.New(logger.LevelOff, nil)

	player := NewAudioPlayer(log)
	metrics := NewMetricsSink()
	facade := NewPlaybackFacade(player, adapter, metrics, log, cfg)

	vad := &fakeDetector{results: []bool{false}}
	stt := &fakeSTT{}
	recognizer := NewRecognizer(vad, stt, cfg, log)

	clone := NewCloneOrchestrator(facade, engine, resolver, metrics, log, cfg)
	turnState := NewTurnStateMachine(recognizer, log)

	m := NewManager(facade, recognizer, clone, turnState, metrics, adapter, stt, engine, resolver, log)
	return m, metrics
}

func TestManagerSpeakFailsWithoutAdapter(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, nil)
	if ok, err := m.Speak("hello", 1.0, "", true, nil); ok || err != ErrAdapterUnavailable {
		t.Fatalf("Speak without adapter = (%v, %v), want (false, ErrAdapterUnavailable)", ok, err)
	}
}

func TestManagerSetSpeedValidatesRange(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, nil)
	if err := m.SetSpeed(3.0); err != ErrInvalidSpeed {
		t.Fatalf("SetSpeed(3.0) = %v, want ErrInvalidSpeed", err)
	}
	if err := m.SetSpeed(1.5); err != nil {
		t.Fatalf("SetSpeed(1.5): %v", err)
	}
	if got := m.GetSpeed(); got != 1.5 {
		t.Fatalf("GetSpeed() = %v, want 1.5", got)
	}
}

func TestManagerSetLanguageDelegatesAndRejectsUnsupported(t *testing.T) {
	adapter := &fakeTTSAdapter{name: "fake", available: true, languages: []string{"en", "fr"}}
	m, _ := newTestManager(t, adapter, nil, nil)

	if err := m.SetLanguage("es"); err != ErrUnsupportedLanguage {
		t.Fatalf("SetLanguage(unsupported) = %v, want ErrUnsupportedLanguage", err)
	}
	if err := m.SetLanguage("fr"); err != nil {
		t.Fatalf("SetLanguage(fr): %v", err)
	}
	if got := m.GetLanguage(); got != "fr" {
		t.Fatalf("GetLanguage() = %q, want fr", got)
	}
}

func TestManagerGetSupportedLanguagesDedupsAcrossAdapters(t *testing.T) {
	adapter := &fakeTTSAdapter{name: "fake", available: true, languages: []string{"en", "fr"}}
	m, _ := newTestManager(t, adapter, nil, nil)
	m.sttAdapter = &fakeSTT{}

	got := m.GetSupportedLanguages()
	seen := map[string]int{}
	for _, c := range got {
		seen[c]++
	}
	for code, n := range seen {
		if n > 1 {
			t.Fatalf("language %q listed %d times, want at most once", code, n)
		}
	}
	if seen["en"] == 0 || seen["fr"] == 0 {
		t.Fatalf("expected en/fr from the TTS adapter in %v", got)
	}
}

func TestManagerSpeakToBytesRoutesPlainAdapter(t *testing.T) {
	adapter := &fakeTTSAdapter{name: "fake", available: true, bytesOut: []byte("wav-bytes")}
	m, _ := newTestManager(t, adapter, nil, nil)

	got, err := m.SpeakToBytes("hello", "", "wav")
	if err != nil {
		t.Fatalf("SpeakToBytes: %v", err)
	}
	if string(got) != "wav-bytes" {
		t.Fatalf("SpeakToBytes = %q, want wav-bytes", got)
	}
}

func TestManagerSpeakToBytesRoutesCloneVoice(t *testing.T) {
	engine := &fakeCloneEngine{wav: []byte("clone-bytes")}
	resolver := &fakeResolver{refs: []string{"ref.wav"}, refText: "hi"}
	m, _ := newTestManager(t, nil, engine, resolver)

	got, err := m.SpeakToBytes("hello", "voice1", "wav")
	if err != nil {
		t.Fatalf("SpeakToBytes(voice): %v", err)
	}
	if string(got) != "clone-bytes" {
		t.Fatalf("SpeakToBytes(voice) = %q, want clone-bytes", got)
	}
	if engine.wavCalls != 1 {
		t.Fatalf("expected exactly one clone engine call, got %d", engine.wavCalls)
	}
}

func TestManagerStopSpeakingWhenIdleIsAnError(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, nil)
	if err := m.StopSpeaking(); err != ErrNotSpeaking {
		t.Fatalf("StopSpeaking on idle manager = %v, want ErrNotSpeaking", err)
	}
}

func TestManagerListenStartStopLifecycle(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, nil)
	if err := m.Listen(nil, nil); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := m.Listen(nil, nil); err != ErrAlreadyListening {
		t.Fatalf("second Listen = %v, want ErrAlreadyListening", err)
	}
	if err := m.StopListening(); err != nil {
		t.Fatalf("StopListening: %v", err)
	}
}

func TestManagerCleanupIsSafeWithNothingRunning(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, nil)
	m.Cleanup()
	m.Cleanup()
}

func TestManagerPopLastTTSMetricsDelegatesToSink(t *testing.T) {
	m, metrics := newTestManager(t, nil, nil, nil)
	metrics.Record(VoiceMetrics{Engine: "fake", SynthSeconds: 0.1, AudioSeconds: 0.2})
	got, ok := m.PopLastTTSMetrics()
	if !ok || got.Engine != "fake" {
		t.Fatalf("PopLastTTSMetrics = (%+v, %v), want engine=fake", got, ok)
	}
}
