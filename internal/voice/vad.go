package voice

import (
	"encoding/binary"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/lpalbou/voicerun/internal/logger"
)

// onnxRuntime is shared process-wide — ONNX Runtime's environment is a
// singleton, same constraint the teacher's wakeword detector works
// around by owning the only ONNX session in that binary. Here the VAD is
// the only ONNX consumer (there's no wake-word stage in this module), so
// one lazily-initialized environment is enough.
var (
	onnxInitOnce sync.Once
	onnxInitErr  error
)

func ensureONNXRuntime(libPath string) error {
	onnxInitOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		onnxInitErr = ort.InitializeEnvironment()
	})
	return onnxInitErr
}

// aggressivenessThresholds maps VAD aggressiveness (0..3) to the
// speech-probability threshold a frame's score must clear. Lower
// aggressiveness accepts more borderline frames as speech.
var aggressivenessThresholds = [4]float32{0.20, 0.35, 0.50, 0.65}

// VAD is a frame-level speech/non-speech classifier over fixed-duration
// PCM16 mono frames. It is modeled as a single-tensor Silero-style ONNX
// session — the same onnxruntime_go session lifecycle the teacher's
// wakeword detector uses for its three-model pipeline, collapsed here to
// the one tensor a VAD model needs. It keeps no state beyond the
// session's own per-frame computation; changing the frame size requires
// a fresh VAD (the input tensor shape is fixed at construction).
type VAD struct {
	modelPath string
	onnxLib   string
	log       *logger.Logger

	chunkSamples int

	mu             sync.Mutex
	aggressiveness int
	session        *ort.AdvancedSession
	inTensor       *ort.Tensor[float32]
	outTensor      *ort.Tensor[float32]
	initialized    bool
}

// NewVAD creates a VAD for frames of chunkSamples length. Call Init
// before the first IsSpeech call.
func NewVAD(modelPath, onnxLib string, chunkSamples, aggressiveness int, log *logger.Logger) *VAD {
	if aggressiveness < 0 {
		aggressiveness = 0
	}
	if aggressiveness > 3 {
		aggressiveness = 3
	}
	return &VAD{
		modelPath:      modelPath,
		onnxLib:        onnxLib,
		chunkSamples:   chunkSamples,
		aggressiveness: aggressiveness,
		log:            log,
	}
}

// Init loads the ONNX model and allocates the input/output tensors.
func (v *VAD) Init() error {
	if err := ensureONNXRuntime(v.onnxLib); err != nil {
		return err
	}

	inTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(v.chunkSamples)))
	if err != nil {
		return err
	}
	outTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inTensor.Destroy()
		return err
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(v.modelPath)
	if err != nil {
		inTensor.Destroy()
		outTensor.Destroy()
		return err
	}

	session, err := ort.NewAdvancedSession(
		v.modelPath,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{inTensor}, []ort.Value{outTensor},
		nil,
	)
	if err != nil {
		inTensor.Destroy()
		outTensor.Destroy()
		return err
	}

	v.mu.Lock()
	v.session = session
	v.inTensor = inTensor
	v.outTensor = outTensor
	v.initialized = true
	v.mu.Unlock()

	v.log.Debug("vad: initialized (chunk_samples=%d, aggressiveness=%d)", v.chunkSamples, v.aggressiveness)
	return nil
}

// Close releases the ONNX session and tensors.
func (v *VAD) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return
	}
	v.session.Destroy()
	v.inTensor.Destroy()
	v.outTensor.Destroy()
	v.initialized = false
}

// SetAggressiveness adjusts the speech-probability threshold without
// reconstructing the ONNX session — only the chunk size requires that.
func (v *VAD) SetAggressiveness(level int) {
	if level < 0 {
		level = 0
	}
	if level > 3 {
		level = 3
	}
	v.mu.Lock()
	v.aggressiveness = level
	v.mu.Unlock()
}

// IsSpeech classifies one fixed-duration PCM16 mono frame.
func (v *VAD) IsSpeech(pcm16 []byte) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return false, ErrVADNotInitialized
	}
	n := len(pcm16) / 2
	if n != v.chunkSamples {
		return false, ErrInvalidAudioFrame
	}

	data := v.inTensor.GetData()
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm16[i*2 : i*2+2]))
		data[i] = float32(s) / 32768.0
	}

	if err := v.session.Run(); err != nil {
		return false, err
	}

	score := v.outTensor.GetData()[0]
	threshold := aggressivenessThresholds[v.aggressiveness]
	return score >= threshold, nil
}
