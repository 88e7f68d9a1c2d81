package voice

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lpalbou/voicerun/internal/logger"
)

// whisperSupportedLanguages mirrors the common whisper.cpp language set.
// "" (auto-detect) is always accepted in addition to this list.
var whisperSupportedLanguages = []string{"en", "fr", "de", "es", "it", "pt", "ja", "zh", "ko", "ru"}

// WhisperOption configures a WhisperSTTAdapter.
type WhisperOption func(*WhisperSTTAdapter)

// WithWhisperTempDir sets the directory used for transient WAV artifacts
// written ahead of each whisper-cli invocation.
func WithWhisperTempDir(dir string) WhisperOption {
	return func(w *WhisperSTTAdapter) { w.tempDir = dir }
}

// WithWhisperLanguage sets the default recognition language.
func WithWhisperLanguage(code string) WhisperOption {
	return func(w *WhisperSTTAdapter) { w.language = code }
}

// WhisperSTTAdapter transcribes audio by shelling out to the whisper-cli
// binary against a local GGML model, the same local-first engine the
// teacher wraps in ear.go. That wrapper owns its own microphone capture,
// which doesn't fit this module's recognizer (capture lives in
// Recognizer so the VAD/stop-phrase pipeline can see every frame before
// transcription happens); this adapter instead writes whatever audio it
// is given to a temp WAV file and invokes whisper-cli directly, the same
// binary/model/tempDir idiom without the coupled capture loop.
type WhisperSTTAdapter struct {
	whisperBin string
	modelPath  string
	tempDir    string
	language   string
	log        *logger.Logger

	mu sync.Mutex
}

// NewWhisperSTTAdapter creates a local Whisper STT adapter.
func NewWhisperSTTAdapter(whisperBin, modelPath string, log *logger.Logger, opts ...WhisperOption) *WhisperSTTAdapter {
	w := &WhisperSTTAdapter{
		whisperBin: whisperBin,
		modelPath:  modelPath,
		tempDir:    ".voicerun-stt",
		log:        log,
	}
	for _, opt := range opts {
		opt(w)
	}
	if _, err := exec.LookPath(w.whisperBin); err != nil {
		log.Warn("whisper stt: binary %q not found in PATH: %v", w.whisperBin, err)
	}
	return w
}

// Name identifies this adapter for diagnostics.
func (w *WhisperSTTAdapter) Name() string { return "whisper" }

// IsAvailable reports whether the whisper-cli binary is reachable.
func (w *WhisperSTTAdapter) IsAvailable() bool {
	_, err := exec.LookPath(w.whisperBin)
	return err == nil
}

// SupportedLanguages lists the ISO 639-1 codes SetLanguage accepts.
func (w *WhisperSTTAdapter) SupportedLanguages() []string {
	out := make([]string, len(whisperSupportedLanguages))
	copy(out, whisperSupportedLanguages)
	return out
}

// SetLanguage switches the default recognition language. "" (auto) is
// always accepted; anything else must be in SupportedLanguages.
func (w *WhisperSTTAdapter) SetLanguage(code string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if code == "" || code == "auto" {
		w.language = ""
		return true
	}
	for _, l := range whisperSupportedLanguages {
		if l == code {
			w.language = code
			return true
		}
	}
	w.log.Warn("whisper stt: unsupported language %q, keeping %q", code, w.language)
	return false
}

// Info returns adapter metadata for diagnostics.
func (w *WhisperSTTAdapter) Info() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]string{
		"engine":   "whisper",
		"model":    w.modelPath,
		"bin":      w.whisperBin,
		"language": w.language,
	}
}

// Transcribe runs whisper-cli against an existing audio file.
func (w *WhisperSTTAdapter) Transcribe(path, language string) (string, error) {
	return w.runCLI(path, language, nil, true)
}

// TranscribeFromBytes writes data to a temp file and transcribes it.
func (w *WhisperSTTAdapter) TranscribeFromBytes(data []byte, language string) (string, error) {
	path, cleanup, err := w.writeTemp(data)
	if err != nil {
		return "", err
	}
	defer cleanup()
	return w.runCLI(path, language, nil, true)
}

// TranscribeFromArray encodes frame as a WAV file and transcribes it.
// The rolling stop-phrase detector is the one caller that passes
// hotwords and conditionOnPreviousText=false; the normal utterance path
// passes no hotwords and leaves context conditioning on.
func (w *WhisperSTTAdapter) TranscribeFromArray(frame []float32, sampleRate int, language string, hotwords []string, conditionOnPreviousText bool) (string, error) {
	wav := encodeWAVPCM16(frame, sampleRate)
	path, cleanup, err := w.writeTemp(wav)
	if err != nil {
		return "", err
	}
	defer cleanup()
	return w.runCLI(path, language, hotwords, conditionOnPreviousText)
}

func (w *WhisperSTTAdapter) writeTemp(data []byte) (string, func(), error) {
	if err := os.MkdirAll(w.tempDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("whisper stt: temp dir: %w", err)
	}
	path := filepath.Join(w.tempDir, fmt.Sprintf("utt-%d.wav", time.Now().UnixNano()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", nil, fmt.Errorf("whisper stt: writing temp wav: %w", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func (w *WhisperSTTAdapter) runCLI(path, language string, hotwords []string, conditionOnPreviousText bool) (string, error) {
	if !w.IsAvailable() {
		return "", ErrAdapterUnavailable
	}

	w.mu.Lock()
	lang := language
	if lang == "" {
		lang = w.language
	}
	w.mu.Unlock()

	args := []string{"-m", w.modelPath, "-f", path, "-nt"}
	if lang != "" && lang != "auto" {
		args = append(args, "-l", lang)
	}
	if len(hotwords) > 0 {
		args = append(args, "--prompt", strings.Join(hotwords, ", "))
	}
	if !conditionOnPreviousText {
		args = append(args, "--no-context")
	}
	if w.log.GetLevel() < logger.LevelVerbose {
		args = append(args, "-np")
	}

	cmd := exec.Command(w.whisperBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper-cli: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := cleanWhisperText(stdout.String())
	w.log.Debug("whisper stt: transcribed %q", text)
	return text, nil
}

// cleanWhisperText strips whisper.cpp artifacts from raw CLI stdout —
// timestamp prefixes, environmental annotations, and known
// hallucinations. Adapted from the teacher's cleanTranscription, with
// the wake-word-specific stripping dropped since this module has no
// wake-word stage.
func cleanWhisperText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)

	junk := []string{
		"[BLANK_AUDIO]", "[BLANK AUDIO]", "(silence)", "[silence]",
		"(no speech)", "[no speech]", "[Music]", "(music)",
		"(inaudible)", "(unintelligible)",
	}
	for _, j := range junk {
		s = strings.ReplaceAll(s, j, "")
		s = strings.ReplaceAll(s, strings.ToLower(j), "")
	}
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	s = strings.TrimSpace(s)

	hallucinations := []string{"...", "you", "thank you.", "thanks for watching!"}
	lower := strings.ToLower(s)
	for _, h := range hallucinations {
		if lower == h {
			return ""
		}
	}

	if strings.HasPrefix(s, "[") {
		if idx := strings.Index(s, "]"); idx != -1 && idx < 40 {
			rest := strings.TrimSpace(s[idx+1:])
			if rest != "" {
				return rest
			}
		}
	}
	return s
}

// ── WAV PCM16 encode (inverse of decodeWAVPCM16 in tts_azure.go) ──

func encodeWAVPCM16(frame []float32, sampleRate int) []byte {
	dataSize := len(frame) * 2
	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range frame {
		v := s
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		sample := int16(math.Round(float64(v) * 32767))
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(sample))
	}
	return buf
}
