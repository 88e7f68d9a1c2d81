package voice

// TTSAdapter is the contract a concrete text-to-speech engine must
// satisfy to be driven by PlaybackFacade. The core never constructs a
// concrete engine itself — adapters are supplied by the caller, keeping
// Piper/Chroma/F5-style engines as an external concern.
type TTSAdapter interface {
	// Name identifies the engine for metrics and cache keys, e.g. "azure".
	Name() string

	// Synthesize renders text to a mono float32 frame at SampleRate().
	Synthesize(text string) ([]float32, error)

	// SynthesizeToBytes renders text to an encoded audio file's bytes.
	// format is one of "wav", "mp3", "ogg" — "wav" must always be
	// supported; others may return ErrUnsupportedFormat.
	SynthesizeToBytes(text, format string) ([]byte, error)

	// SynthesizeToFile renders text and writes it to path, returning the
	// path actually written (format defaults to "wav" when empty).
	SynthesizeToFile(text, path, format string) (string, error)

	// SetLanguage switches the synthesis language. Returns false and
	// leaves the prior language in place if code is unsupported.
	SetLanguage(code string) bool

	// SupportedLanguages lists the ISO 639-1 codes this adapter accepts.
	SupportedLanguages() []string

	// SampleRate is the fixed output sample rate Synthesize renders at.
	SampleRate() int

	// IsAvailable reports whether the engine is ready to synthesize.
	IsAvailable() bool

	// Info returns adapter metadata for diagnostics (engine, voice, ...).
	Info() map[string]string
}
