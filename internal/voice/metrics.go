package voice

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// VoiceMetrics describes one completed (or failed) synthesis, covering
// both the plain TTSAdapter path and the clone-voice path. Fields not
// relevant to a given engine/mode are left zero — Engine and, for clone
// streaming, Streaming/TTFBSeconds/Chunks/Cancelled distinguish which
// fields were populated, the same loosely-typed metrics dict shape the
// original passes around.
type VoiceMetrics struct {
	Engine       string
	Streaming    bool
	SynthSeconds float64
	AudioSeconds float64
	RTF          float64
	SampleRate   int
	AudioSamples int
	TTFBSeconds  float64
	Chunks       int
	Cancelled    bool
	Error        string
	Timestamp    time.Time
}

// Prometheus mirrors of the metrics recorded through MetricsSink. Pushed
// alongside the destructive single-read struct so a scrape-based
// dashboard and a poll-based caller ("what did the last utterance cost")
// can coexist without either one starving the other.
var (
	synthDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicerun_tts_synth_seconds",
		Help:    "Time spent synthesizing one utterance, by engine",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"engine"})

	audioDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicerun_tts_audio_seconds",
		Help:    "Duration of the rendered audio, by engine",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"engine"})

	synthRTF = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voicerun_tts_rtf",
		Help: "Most recent real-time factor (synth_seconds / audio_seconds), by engine",
	}, []string{"engine"})

	synthTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicerun_tts_synth_total",
		Help: "Completed synthesis calls, by engine",
	}, []string{"engine"})

	synthErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicerun_tts_errors_total",
		Help: "Failed synthesis calls, by engine",
	}, []string{"engine"})

	cloneTTFB = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicerun_clone_ttfb_seconds",
		Help:    "Time to first streamed clone-voice chunk",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
	})

	cloneChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicerun_clone_chunks_total",
		Help: "Streamed clone-voice chunks rendered",
	})

	cloneCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicerun_clone_cancelled_total",
		Help: "Clone-voice synthesis jobs cancelled before completion",
	})

	vadSpeechSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicerun_vad_speech_segments_total",
		Help: "Utterances handed off to STT by the recognizer",
	})

	sttStopDetections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicerun_stop_phrase_detections_total",
		Help: "Confirmed stop-phrase detections, rolling or full-utterance",
	})
)

// MetricsSink is the single-producer, single-consumer destructive-read
// metrics channel: Record overwrites the one retained value, and
// PopLastTTSMetrics both returns and clears it. Exactly one caller is
// expected to poll it (an inference loop reporting "how long did that
// take"); anyone else wanting durable metrics scrapes the Prometheus
// vars above instead.
type MetricsSink struct {
	mu   sync.Mutex
	last *VoiceMetrics
}

// NewMetricsSink creates an empty metrics sink.
func NewMetricsSink() *MetricsSink {
	return &MetricsSink{}
}

// Record stores m as the most recent metrics snapshot and mirrors it
// into the package's Prometheus vars.
func (s *MetricsSink) Record(m VoiceMetrics) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	s.mu.Lock()
	cp := m
	s.last = &cp
	s.mu.Unlock()

	engine := m.Engine
	if engine == "" {
		engine = "unknown"
	}
	if m.Error != "" {
		synthErrors.WithLabelValues(engine).Inc()
		return
	}

	synthTotal.WithLabelValues(engine).Inc()
	if m.SynthSeconds > 0 {
		synthDuration.WithLabelValues(engine).Observe(m.SynthSeconds)
	}
	if m.AudioSeconds > 0 {
		audioDuration.WithLabelValues(engine).Observe(m.AudioSeconds)
	}
	if m.RTF > 0 {
		synthRTF.WithLabelValues(engine).Set(m.RTF)
	}
	if m.Streaming {
		if m.TTFBSeconds > 0 {
			cloneTTFB.Observe(m.TTFBSeconds)
		}
		if m.Chunks > 0 {
			cloneChunksTotal.Add(float64(m.Chunks))
		}
		if m.Cancelled {
			cloneCancelledTotal.Inc()
		}
	}
}

// PopLastTTSMetrics returns the most recently recorded metrics and
// clears them, reporting false if nothing has been recorded since the
// last pop.
func (s *MetricsSink) PopLastTTSMetrics() (VoiceMetrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return VoiceMetrics{}, false
	}
	m := *s.last
	s.last = nil
	return m, true
}
