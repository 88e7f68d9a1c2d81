package voice

import (
	"errors"
	"testing"
	"time"

	"github.com/lpalbou/voicerun/internal/logger"
)

func TestCancelTokenCancelIsIdempotentAndObservable(t *testing.T) {
	tok := NewCancelToken()
	if tok.Cancelled() {
		t.Fatalf("fresh token must not start cancelled")
	}
	tok.Cancel()
	tok.Cancel() // must not panic or block on a second close
	if !tok.Cancelled() {
		t.Fatalf("expected token to report cancelled after Cancel")
	}
}

// fakeCloneEngine is a scripted CloneEngine: either returns fixed
// results or an error, and tracks call counts for both entry points.
type fakeCloneEngine struct {
	wav        []byte
	wavErr     error
	chunks     []CloneChunk
	chunksErr  error
	wavCalls   int
	chunkCalls int
}

func (f *fakeCloneEngine) InferToWAVBytes(text string, refs []string, refText string, speed float64) ([]byte, error) {
	f.wavCalls++
	if f.wavErr != nil {
		return nil, f.wavErr
	}
	return f.wav, nil
}

type fakeChunkIterator struct {
	chunks []CloneChunk
	i      int
	err    error
}

func (it *fakeChunkIterator) Next() (CloneChunk, bool, error) {
	if it.err != nil {
		return CloneChunk{}, false, it.err
	}
	if it.i >= len(it.chunks) {
		return CloneChunk{}, false, nil
	}
	c := it.chunks[it.i]
	it.i++
	return c, true, nil
}

func (f *fakeCloneEngine) InferToAudioChunks(text string, refs []string, refText string, speed float64, maxChars int) (CloneChunkIterator, error) {
	f.chunkCalls++
	if f.chunksErr != nil {
		return nil, f.chunksErr
	}
	return &fakeChunkIterator{chunks: f.chunks}, nil
}

type fakeResolver struct {
	refs    []string
	refText string
	err     error
}

func (f *fakeResolver) ResolveVoice(voiceID string) ([]string, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.refs, f.refText, nil
}

func newTestOrchestrator(t *testing.T, engine CloneEngine, resolver VoiceResolver) (*CloneOrchestrator, *MetricsSink) {
	t.Helper()
	cfg := defaultConfig()
	log := logger.New(logger.LevelOff, nil)
	player := NewAudioPlayer(log)
	metrics := NewMetricsSink()
	facade := NewPlaybackFacade(player, nil, metrics, log, cfg)
	return NewCloneOrchestrator(facade, engine, resolver, metrics, log, cfg), metrics
}

func waitUntilIdle(t *testing.T, o *CloneOrchestrator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for o.IsActive() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for clone worker to finish")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestCloneSpeakRejectsEmptyText(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeCloneEngine{}, &fakeResolver{})
	if _, err := o.Speak("", "voice1", 1.0, false, nil); err != ErrEmptyText {
		t.Fatalf("Speak(\"\") = %v, want ErrEmptyText", err)
	}
}

func TestCloneSpeakRejectsInvalidSpeed(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeCloneEngine{}, &fakeResolver{})
	if _, err := o.Speak("hello", "voice1", 9.0, false, nil); err != ErrInvalidSpeed {
		t.Fatalf("Speak(speed=9.0) = %v, want ErrInvalidSpeed", err)
	}
}

func TestCloneSpeakFailsWithoutEngineOrResolver(t *testing.T) {
	o := NewCloneOrchestrator(nil, nil, nil, NewMetricsSink(), logger.New(logger.LevelOff, nil), defaultConfig())
	if _, err := o.Speak("hello", "voice1", 1.0, false, nil); err != ErrAdapterUnavailable {
		t.Fatalf("Speak without engine = %v, want ErrAdapterUnavailable", err)
	}
}

func TestCloneSpeakPropagatesResolverError(t *testing.T) {
	resolverErr := ErrUnknownVoice
	o, _ := newTestOrchestrator(t, &fakeCloneEngine{}, &fakeResolver{err: resolverErr})
	if _, err := o.Speak("hello", "ghost", 1.0, false, nil); err != resolverErr {
		t.Fatalf("Speak with unresolvable voice = %v, want %v", err, resolverErr)
	}
}

func TestCloneOrchestratorRecordsErrorMetricsWhenEngineFails(t *testing.T) {
	engine := &fakeCloneEngine{wavErr: errors.New("inference backend unreachable")}
	o, metrics := newTestOrchestrator(t, engine, &fakeResolver{refs: []string{"ref.wav"}, refText: "hello there"})

	ok, err := o.Speak("hello", "voice1", 1.0, false, nil)
	if err != nil || !ok {
		t.Fatalf("Speak launch = (%v, %v), want (true, nil)", ok, err)
	}
	waitUntilIdle(t, o)

	got, popped := metrics.PopLastTTSMetrics()
	if !popped {
		t.Fatalf("expected an error metric to be recorded")
	}
	if got.Engine != "clone" || got.Error == "" {
		t.Fatalf("unexpected metrics: %+v", got)
	}
	if engine.wavCalls != 1 {
		t.Fatalf("expected exactly one InferToWAVBytes call, got %d", engine.wavCalls)
	}
}

func TestCloneOrchestratorCancelSignalsInFlightWorker(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeCloneEngine{wavErr: errors.New("slow")}, &fakeResolver{refs: []string{"r.wav"}})
	if _, err := o.Speak("hello", "voice1", 1.0, false, nil); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	o.mu.Lock()
	tok := o.cancel
	o.mu.Unlock()
	if tok == nil {
		t.Fatalf("expected a cancel token to be installed")
	}

	o.Cancel()
	if !tok.Cancelled() {
		t.Fatalf("expected Cancel to signal the active job's token")
	}
	waitUntilIdle(t, o)
}
