// voicedemo — a tiny REPL exercising the voice runtime's speak/listen
// surface end to end.
//
// Usage:
//
//	voicedemo [-verbose] [-no-listen]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/lpalbou/voicerun/internal/logger"
	"github.com/lpalbou/voicerun/internal/voice"
)

func main() {
	_ = godotenv.Load()

	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", ".voicedemo-logs/voicedemo.log", "file to write logs to (use \"stderr\" to log to console)")
	noListen := flag.Bool("no-listen", false, "disable microphone capture, speak-only demo")
	cacheDir := flag.String("cache-dir", ".voicedemo-cache", "directory for the persistent TTS audio cache")
	diskCache := flag.Bool("disk-cache", true, "persist TTS audio to the on-disk cache")
	whisperBin := flag.String("whisper-bin", "whisper-cli", "path to the whisper-cpp CLI binary")
	whisperModel := flag.String("whisper-model", "bin/ggml-small.bin", "path to the Whisper GGML model file")
	vadModel := flag.String("vad-model", "bin/silero_vad.onnx", "path to the VAD ONNX model file")
	onnxLib := flag.String("onnx-lib", "", "path to the ONNX Runtime shared library (empty uses the system default)")
	flag.Parse()

	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}

	var logOut io.Writer = os.Stderr
	if *logFile != "" && *logFile != "stderr" {
		dir := filepath.Dir(*logFile)
		if dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", *logFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}
	log := logger.New(logLevel, logOut)

	cfg := []voice.Option{
		voice.WithCacheDir(*cacheDir),
		voice.WithCacheDiskWrite(*diskCache),
	}

	var ttsAdapter voice.TTSAdapter
	azureKey := os.Getenv("AZURE_SPEECH_KEY")
	azureRegion := os.Getenv("AZURE_SPEECH_REGION")
	if azureKey != "" && azureRegion != "" {
		ttsAdapter = voice.NewAzureTTSAdapter(azureKey, azureRegion, log)
		log.Info("tts enabled via azure (region=%s)", azureRegion)
	} else {
		log.Info("tts disabled: set AZURE_SPEECH_KEY and AZURE_SPEECH_REGION to enable")
	}

	var sttAdapter voice.STTAdapter
	var vad *voice.VAD
	if !*noListen {
		sttAdapter = voice.NewWhisperSTTAdapter(*whisperBin, *whisperModel, log)
		vad = voice.NewVAD(*vadModel, *onnxLib, 16000*30/1000, 1, log)
		if err := vad.Init(); err != nil {
			log.Error("vad init failed, listening disabled: %v", err)
			vad = nil
		}
	}

	player := voice.NewAudioPlayer(log)
	metrics := voice.NewMetricsSink()

	buildCfg := voice.NewConfig(cfg...)

	facade := voice.NewPlaybackFacade(player, ttsAdapter, metrics, log, buildCfg)

	var recognizer *voice.Recognizer
	var turnState *voice.TurnStateMachine
	var mgr *voice.Manager

	if vad != nil && sttAdapter != nil {
		recognizer = voice.NewRecognizer(vad, sttAdapter, buildCfg, log)
		turnState = voice.NewTurnStateMachine(recognizer, log)
	} else {
		// Listening disabled entirely: still need a Recognizer/TurnStateMachine
		// instance to satisfy Manager's wiring, just never Start it.
		recognizer = voice.NewRecognizer(nil, nil, buildCfg, log, voice.WithRecognizerLanguage("en"))
		turnState = voice.NewTurnStateMachine(recognizer, log)
	}

	clone := voice.NewCloneOrchestrator(facade, nil, nil, metrics, log, buildCfg)
	mgr = voice.NewManager(facade, recognizer, clone, turnState, metrics, ttsAdapter, sttAdapter, nil, nil, log)
	defer mgr.Cleanup()

	fmt.Println("voicedemo ready. Type text to speak it, \"listen\" to toggle the microphone, \"quit\" to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	listening := false
	for scanner.Scan() {
		line := scanner.Text()
		switch line {
		case "quit", "exit":
			return
		case "listen":
			if vad == nil || sttAdapter == nil {
				fmt.Println("listening is disabled (no VAD/STT configured)")
				continue
			}
			if !listening {
				err := mgr.Listen(
					func(text string) { fmt.Printf("heard: %s\n", text) },
					func() { fmt.Println("heard: stop") },
				)
				if err != nil {
					fmt.Printf("listen failed: %v\n", err)
					continue
				}
				listening = true
				fmt.Println("listening...")
			} else {
				mgr.StopListening()
				listening = false
				fmt.Println("stopped listening")
			}
		default:
			ok, err := mgr.Speak(line, 0, "", true, func() { fmt.Println("(done speaking)") })
			if err != nil {
				fmt.Printf("speak failed: %v\n", err)
			} else if !ok {
				fmt.Println("speak rejected")
			}
		}
	}
}
