package voice

import "errors"

// Sentinel errors returned by the voice package. Callers should compare
// with errors.Is rather than matching on message text.
var (
	// ErrAdapterUnavailable is returned when a TTS/STT/clone adapter has
	// not been configured or reports itself unavailable.
	ErrAdapterUnavailable = errors.New("voice: adapter unavailable")

	// ErrInvalidSpeed is returned when a requested playback speed falls
	// outside [0.5, 2.0].
	ErrInvalidSpeed = errors.New("voice: speed out of range [0.5, 2.0]")

	// ErrUnsupportedLanguage is returned when a language code is not in
	// the active adapter's supported list.
	ErrUnsupportedLanguage = errors.New("voice: unsupported language")

	// ErrEmptyText is returned when speak-style calls are given empty text.
	ErrEmptyText = errors.New("voice: empty text")

	// ErrNotSpeaking is returned by stop/pause calls made while nothing
	// is playing, and by resume calls made while playback is not paused.
	ErrNotSpeaking = errors.New("voice: not speaking")

	// ErrAlreadyListening is returned by Listen when the recognizer is
	// already running.
	ErrAlreadyListening = errors.New("voice: already listening")

	// ErrNotListening is returned by StopListening when the recognizer
	// isn't running.
	ErrNotListening = errors.New("voice: not listening")

	// ErrUnknownProfile is returned by SetVoiceMode for an unrecognized
	// listening profile.
	ErrUnknownProfile = errors.New("voice: unknown listening profile")

	// ErrUnknownVoice is returned when a clone voice id can't be resolved.
	ErrUnknownVoice = errors.New("voice: unknown voice id")

	// ErrCancelled names a clone synthesis job superseded by a newer
	// speak() call. No function in this package returns it: a cancelled
	// worker exits quietly, and the streaming path records the
	// cancellation as VoiceMetrics.Cancelled.
	ErrCancelled = errors.New("voice: cancelled")

	// ErrDeviceUnavailable is returned when no candidate output sample
	// rate could be opened.
	ErrDeviceUnavailable = errors.New("voice: audio device unavailable")

	// ErrUnsupportedFormat is returned by synthesize-to-bytes/file calls
	// for an encoding the adapter doesn't produce.
	ErrUnsupportedFormat = errors.New("voice: unsupported audio format")

	// ErrVADNotInitialized is returned by VAD methods called before Init.
	ErrVADNotInitialized = errors.New("voice: vad not initialized")

	// ErrInvalidAudioFrame is returned when a caller hands the VAD a
	// frame whose length doesn't match the configured chunk size.
	ErrInvalidAudioFrame = errors.New("voice: invalid audio frame size")
)
