package voice

import "github.com/lpalbou/voicerun/internal/logger"

// TurnStateMachine observes playback lifecycle events and routes the
// matching recognizer pause/resume calls for the active listening
// profile. Generalized from the original's 3-branch
// _on_tts_start/_on_tts_end (full / wait-stop-ptt / else) into the
// 5-branch table below; WAIT now pauses listening entirely rather than
// just muting interrupt and transcriptions, a deliberate deviation from
// the original recorded as an accepted Open Question resolution.
type TurnStateMachine struct {
	log        *logger.Logger
	recognizer *Recognizer
}

// NewTurnStateMachine wires a state machine to the recognizer whose
// pause/resume calls it will route.
func NewTurnStateMachine(recognizer *Recognizer, log *logger.Logger) *TurnStateMachine {
	return &TurnStateMachine{log: log, recognizer: recognizer}
}

// OnPlaybackStart routes pause calls for the recognizer's current
// profile. Call once per playback session, before any audio is
// enqueued.
func (t *TurnStateMachine) OnPlaybackStart() {
	switch t.recognizer.Profile() {
	case ProfileFull:
		// Barge-in stays live unless AEC can't tell near-end speech
		// from the system's own rendered audio.
		if !t.recognizer.AECEnabled() {
			t.recognizer.PauseTTSInterrupt()
		}
	case ProfileWait:
		t.recognizer.PauseListening()
	case ProfileStop, ProfilePTT:
		t.recognizer.PauseTTSInterrupt()
		t.recognizer.PauseTranscriptions()
	case ProfileOff:
		// no-op
	}
}

// OnPlaybackEnd undoes whatever OnPlaybackStart paused for the current
// profile. Call once per playback session, after the last chunk drains
// (or after an abrupt stop — see OnAbruptStop).
func (t *TurnStateMachine) OnPlaybackEnd() {
	switch t.recognizer.Profile() {
	case ProfileFull:
		t.recognizer.ResumeTTSInterrupt()
	case ProfileWait:
		t.recognizer.ResumeListening()
	case ProfileStop, ProfilePTT:
		t.recognizer.ResumeTTSInterrupt()
		t.recognizer.ResumeTranscriptions()
	case ProfileOff:
		// no-op
	}
}

// OnAbruptStop routes the same recovery as OnPlaybackEnd. StopSpeaking
// flushes the playback queue and drops pending drain callbacks, so the
// drain event that would otherwise call OnPlaybackEnd never fires;
// callers MUST invoke this explicitly after an abrupt stop to avoid
// leaving the recognizer paused indefinitely.
func (t *TurnStateMachine) OnAbruptStop() {
	t.OnPlaybackEnd()
}
