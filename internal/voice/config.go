package voice

import "time"

// ListeningProfile selects how aggressively the recognizer listens for
// speech relative to what the facade is currently speaking.
type ListeningProfile int

const (
	// ProfileOff disables listening entirely. Turn-state transitions are
	// no-ops in this profile.
	ProfileOff ListeningProfile = iota
	// ProfileWait pauses listening completely while speech is playing —
	// suited to a single shared microphone/speaker with no AEC.
	ProfileWait
	// ProfileStop keeps the rolling stop-phrase detector armed while
	// speech plays, but mutes the normal transcription path.
	ProfileStop
	// ProfileFull allows full barge-in: the recognizer keeps listening
	// for new utterances while speech plays (interrupt gated on AEC).
	ProfileFull
	// ProfilePTT behaves like ProfileStop during playback but is intended
	// to be paired with an external push-to-talk gate; the recognizer
	// applies low-latency thresholds (one speech chunk starts recording,
	// about 700ms of silence ends it).
	ProfilePTT
)

// String renders the profile the way it's logged, matching the original
// implementation's lowercase profile names.
func (p ListeningProfile) String() string {
	switch p {
	case ProfileOff:
		return "off"
	case ProfileWait:
		return "wait"
	case ProfileStop:
		return "stop"
	case ProfileFull:
		return "full"
	case ProfilePTT:
		return "ptt"
	default:
		return "unknown"
	}
}

// Config holds every tunable of the voice runtime, assembled once at
// construction time. There is no package-level mutable state — every
// value that the original implementation read from ABSTRACTVOICE_*
// environment variables lives here instead, set via functional options.
type Config struct {
	// SampleRate is a default output sample rate carried for callers. No
	// constructor in this package reads it: AudioPlayer opens the device
	// at the rate of the first audio it is handed.
	SampleRate int
	// CaptureSampleRate is the sample rate the microphone is opened at.
	CaptureSampleRate int
	// ChunkDurationMs is the fixed frame duration fed to the VAD and
	// consumed by the recognizer's capture loop.
	ChunkDurationMs int
	// VADAggressiveness is a speech/non-speech classifier setting, 0..3,
	// carried for callers. NewVAD does not read it; the aggressiveness
	// is passed to NewVAD directly.
	VADAggressiveness int
	// ListeningProfile is the turn-taking profile applied at startup.
	ListeningProfile ListeningProfile
	// ListenTimeout is an utterance length limit carried for callers. The
	// recognizer does not read it: an utterance is flushed only by
	// trailing silence, never by elapsed time.
	ListenTimeout time.Duration
	// StopWindowSeconds bounds the rolling stop-phrase ring buffer.
	StopWindowSeconds float64
	// StopIntervalMs rate-limits rolling stop-phrase transcription
	// attempts.
	StopIntervalMs int
	// StopConfirmWindowSeconds bounds how long two "stop" hits may be
	// apart and still count as a confirmed stop.
	StopConfirmWindowSeconds float64
	// CacheDir is the on-disk synthesis cache directory. Empty disables
	// the disk tier (memory-only caching still applies).
	CacheDir string
	// CacheDiskWrite controls whether new cache entries are persisted.
	CacheDiskWrite bool
	// SanitizeMarkdown strips Markdown emphasis/heading syntax from text
	// before synthesis unless a call opts out.
	SanitizeMarkdown bool
	// CloneTargetSampleRate is the sample rate streamed clone audio is
	// resampled to before enqueueing.
	CloneTargetSampleRate int
	// CloneMaxChars bounds how much text a single clone streaming chunk
	// carries before the engine starts a new sentence batch.
	CloneMaxChars int
	// MinSpeechDurationMs is the default (conservative/off/wait/stop)
	// amount of continuous speech required before recording starts.
	MinSpeechDurationMs int
	// SilenceTimeoutMs is the default amount of trailing silence that
	// closes an utterance and hands it to the STT adapter.
	SilenceTimeoutMs int
	// AECStreamDelayMs estimates the render-to-capture loopback delay. It
	// is carried for callers; Manager.EnableAEC takes its own delay
	// argument and does not read this field.
	AECStreamDelayMs int
}

func defaultConfig() Config {
	return Config{
		SampleRate:               24000,
		CaptureSampleRate:        16000,
		ChunkDurationMs:          30,
		VADAggressiveness:        1,
		ListeningProfile:         ProfileStop,
		ListenTimeout:            0,
		StopWindowSeconds:        2.0,
		StopIntervalMs:           600,
		StopConfirmWindowSeconds: 2.5,
		CacheDiskWrite:           true,
		SanitizeMarkdown:         true,
		CloneTargetSampleRate:    24000,
		CloneMaxChars:            240,
		MinSpeechDurationMs:      600,
		SilenceTimeoutMs:         1500,
		AECStreamDelayMs:         0,
	}
}

// NewConfig builds a Config from the package defaults plus opts, in
// order. This is the entry point callers outside the package use to
// assemble the Config every other constructor in this package takes.
func NewConfig(opts ...Option) Config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option sets one field of the Config that NewConfig builds.
type Option func(*Config)

// WithSampleRate sets Config.SampleRate.
func WithSampleRate(sr int) Option {
	return func(c *Config) { c.SampleRate = sr }
}

// WithCaptureSampleRate sets the microphone capture sample rate.
func WithCaptureSampleRate(sr int) Option {
	return func(c *Config) { c.CaptureSampleRate = sr }
}

// WithChunkDuration sets the fixed VAD/recognizer frame duration.
func WithChunkDuration(ms int) Option {
	return func(c *Config) { c.ChunkDurationMs = ms }
}

// WithVADAggressiveness sets Config.VADAggressiveness, 0..3.
func WithVADAggressiveness(n int) Option {
	return func(c *Config) { c.VADAggressiveness = n }
}

// WithListeningProfile sets the initial turn-taking profile.
func WithListeningProfile(p ListeningProfile) Option {
	return func(c *Config) { c.ListeningProfile = p }
}

// WithListenTimeout sets Config.ListenTimeout.
func WithListenTimeout(d time.Duration) Option {
	return func(c *Config) { c.ListenTimeout = d }
}

// WithStopWindow sets the rolling stop-phrase ring buffer window.
func WithStopWindow(seconds float64) Option {
	return func(c *Config) { c.StopWindowSeconds = seconds }
}

// WithCacheDir sets the on-disk synthesis cache directory.
func WithCacheDir(dir string) Option {
	return func(c *Config) { c.CacheDir = dir }
}

// WithCacheDiskWrite controls whether new cache entries are persisted.
func WithCacheDiskWrite(enabled bool) Option {
	return func(c *Config) { c.CacheDiskWrite = enabled }
}

// WithSanitizeMarkdown controls the default sanitize_syntax behavior.
func WithSanitizeMarkdown(enabled bool) Option {
	return func(c *Config) { c.SanitizeMarkdown = enabled }
}

// WithCloneTargetSampleRate sets the sample rate streamed clone audio is
// resampled to before enqueueing.
func WithCloneTargetSampleRate(sr int) Option {
	return func(c *Config) { c.CloneTargetSampleRate = sr }
}

// WithSpeechThresholds sets the default (non-PTT/FULL) minimum speech
// duration and trailing silence timeout, in milliseconds.
func WithSpeechThresholds(minSpeechMs, silenceTimeoutMs int) Option {
	return func(c *Config) {
		c.MinSpeechDurationMs = minSpeechMs
		c.SilenceTimeoutMs = silenceTimeoutMs
	}
}

// WithAECStreamDelay sets Config.AECStreamDelayMs.
func WithAECStreamDelay(ms int) Option {
	return func(c *Config) { c.AECStreamDelayMs = ms }
}
