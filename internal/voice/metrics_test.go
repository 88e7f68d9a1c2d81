package voice

import "testing"

func TestMetricsSinkPopIsDestructive(t *testing.T) {
	s := NewMetricsSink()
	if _, ok := s.PopLastTTSMetrics(); ok {
		t.Fatalf("expected no metrics before any Record")
	}

	s.Record(VoiceMetrics{Engine: "azure", SynthSeconds: 0.5, AudioSeconds: 2.0, RTF: 0.25, SampleRate: 24000, AudioSamples: 48000})

	got, ok := s.PopLastTTSMetrics()
	if !ok {
		t.Fatalf("expected metrics after Record")
	}
	if got.Engine != "azure" || got.SampleRate != 24000 {
		t.Fatalf("unexpected metrics: %+v", got)
	}

	if _, ok := s.PopLastTTSMetrics(); ok {
		t.Fatalf("second pop should be empty, read was destructive")
	}
}

func TestMetricsSinkErrorRecord(t *testing.T) {
	s := NewMetricsSink()
	s.Record(VoiceMetrics{Engine: "clone", Error: "inference failed"})
	got, ok := s.PopLastTTSMetrics()
	if !ok {
		t.Fatalf("expected metrics after error Record")
	}
	if got.Error == "" {
		t.Fatalf("expected error field to be retained")
	}
}

func TestMetricsSinkStreamingFields(t *testing.T) {
	s := NewMetricsSink()
	s.Record(VoiceMetrics{Engine: "clone", Streaming: true, TTFBSeconds: 0.3, Chunks: 4, Cancelled: true, SampleRate: 24000})
	got, ok := s.PopLastTTSMetrics()
	if !ok {
		t.Fatalf("expected metrics")
	}
	if !got.Streaming || got.Chunks != 4 || !got.Cancelled {
		t.Fatalf("unexpected streaming metrics: %+v", got)
	}
}
