package voice

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lpalbou/voicerun/internal/logger"
)

// azureSupportedLanguages lists the locales this adapter accepts for
// SetLanguage. Kept small and explicit rather than querying Azure's full
// catalog at runtime.
var azureSupportedLanguages = []string{"en", "fr", "de", "es", "it", "pt", "ja", "zh"}

var azureLocales = map[string]string{
	"en": "en-US",
	"fr": "fr-FR",
	"de": "de-DE",
	"es": "es-ES",
	"it": "it-IT",
	"pt": "pt-PT",
	"ja": "ja-JP",
	"zh": "zh-CN",
}

// AzureOption configures the AzureTTSAdapter.
type AzureOption func(*AzureTTSAdapter)

// WithAzureVoice sets the TTS voice.
func WithAzureVoice(voice string) AzureOption {
	return func(c *AzureTTSAdapter) { c.voice = voice }
}

// WithAzureHTTPTimeout sets the HTTP client timeout for TTS requests.
func WithAzureHTTPTimeout(d time.Duration) AzureOption {
	return func(c *AzureTTSAdapter) { c.httpClient.Timeout = d }
}

// AzureTTSAdapter synthesizes speech via Azure Cognitive Services. It is
// the one concrete, network TTSAdapter this module ships — Piper,
// Chroma, and F5-style local engines have no Go binding in the retrieved
// example set, so they stay interface-only per spec.
type AzureTTSAdapter struct {
	subscriptionKey string
	region          string
	voice           string
	language        string
	httpClient      *http.Client
	log             *logger.Logger
}

const azureOutputFormat = "riff-24khz-16bit-mono-pcm"
const azureSampleRate = 24000

// NewAzureTTSAdapter creates an Azure TTS adapter. key/region empty means
// the adapter reports itself unavailable.
func NewAzureTTSAdapter(key, region string, log *logger.Logger, opts ...AzureOption) *AzureTTSAdapter {
	c := &AzureTTSAdapter{
		subscriptionKey: key,
		region:          region,
		voice:           "en-US-AvaNeural",
		language:        "en",
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		log:             log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies this adapter for metrics and cache keys.
func (c *AzureTTSAdapter) Name() string { return "azure" }

// IsAvailable reports whether credentials were supplied.
func (c *AzureTTSAdapter) IsAvailable() bool {
	return c.subscriptionKey != "" && c.region != ""
}

// SampleRate is fixed by the requested Azure output format.
func (c *AzureTTSAdapter) SampleRate() int { return azureSampleRate }

// SupportedLanguages lists the locales SetLanguage accepts.
func (c *AzureTTSAdapter) SupportedLanguages() []string {
	out := make([]string, len(azureSupportedLanguages))
	copy(out, azureSupportedLanguages)
	return out
}

// SetLanguage switches the synthesis locale. Rejects unknown codes,
// leaving the current language untouched.
func (c *AzureTTSAdapter) SetLanguage(code string) bool {
	if _, ok := azureLocales[code]; !ok {
		c.log.Warn("azure tts: unsupported language %q, keeping %q", code, c.language)
		return false
	}
	c.language = code
	return true
}

// Info returns adapter metadata for diagnostics.
func (c *AzureTTSAdapter) Info() map[string]string {
	return map[string]string{
		"engine":   "azure",
		"voice":    c.voice,
		"language": c.language,
		"region":   c.region,
	}
}

// Synthesize renders text to a mono float32 frame at SampleRate().
func (c *AzureTTSAdapter) Synthesize(text string) ([]float32, error) {
	wav, err := c.synthesizeWAV(context.Background(), text)
	if err != nil {
		return nil, err
	}
	frame, _, err := decodeWAVPCM16(wav)
	return frame, err
}

// SynthesizeToBytes returns the encoded audio file's bytes. Only "wav"
// (Azure's native riff output) is supported; anything else is rejected.
func (c *AzureTTSAdapter) SynthesizeToBytes(text, format string) ([]byte, error) {
	if format == "" {
		format = "wav"
	}
	if format != "wav" {
		return nil, ErrUnsupportedFormat
	}
	return c.synthesizeWAV(context.Background(), text)
}

// SynthesizeToFile renders text and writes the result to path.
func (c *AzureTTSAdapter) SynthesizeToFile(text, path, format string) (string, error) {
	data, err := c.SynthesizeToBytes(text, format)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing audio file: %w", err)
	}
	return path, nil
}

func (c *AzureTTSAdapter) synthesizeWAV(ctx context.Context, text string) ([]byte, error) {
	if !c.IsAvailable() {
		return nil, ErrAdapterUnavailable
	}

	url := fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", c.region)
	ssml := c.buildSSML(text)
	c.log.Debug("azure tts: synthesizing %d chars with voice %s", len(text), c.voice)

	req, err := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat)
	req.Header.Set("User-Agent", "voicerun/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure tts error %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}
	c.log.Debug("azure tts: got %d bytes of audio", len(audioData))
	return audioData, nil
}

func (c *AzureTTSAdapter) buildSSML(text string) string {
	locale := azureLocales[c.language]
	if locale == "" {
		locale = "en-US"
	}
	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='%s'><voice xml:lang='%s' name='%s'>%s</voice></speak>`,
		locale, locale, c.voice, text,
	)
}

// ── WAV PCM16 decode ─────────────────────────────────────────────

// decodeWAVPCM16 walks a RIFF/WAVE container, reads the "fmt " chunk for
// the sample rate, and converts the "data" chunk's signed 16-bit PCM
// samples to mono float32 in [-1, 1].
func decodeWAVPCM16(wav []byte) ([]float32, int, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, errors.New("voice: not a valid WAV file")
	}

	var sampleRate int
	var pcm []byte

	pos := 12
	for pos+8 <= len(wav) {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(wav) {
				return nil, 0, errors.New("voice: truncated fmt chunk")
			}
			sampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
		case "data":
			end := body + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			pcm = wav[body:end]
		}

		pos = body + chunkSize
		if chunkSize%2 != 0 {
			pos++
		}
	}

	if pcm == nil {
		return nil, 0, errors.New("voice: data chunk not found in WAV")
	}
	if sampleRate == 0 {
		sampleRate = azureSampleRate
	}

	n := len(pcm) / 2
	frame := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		frame[i] = float32(s) / 32768.0
	}
	return frame, sampleRate, nil
}
