package orchestrator

// CommandType tags a pipeline command. Commands are fire-and-forget and
// carry no large payloads — audio and decoded backend results are referenced
// through the orchestrator's own state, never embedded in a command.
type CommandType int

const (
	// CmdWakeDetected reports a wake-phrase detection. Debounced: ignored
	// while a session is already pending.
	CmdWakeDetected CommandType = iota

	// CmdOfflineCmd executes a pre-classified local action (IntData is an
	// OfflineAction) and resumes wake-word mode without a network call.
	CmdOfflineCmd

	// CmdResumeWWD resumes wake-word capture. Idempotent.
	CmdResumeWWD

	// CmdStopWWD stops wake-word capture. Idempotent.
	CmdStopWWD

	// CmdRestartWWD stops and restarts wake-word capture.
	CmdRestartWWD

	// CmdStartFollowupVAD opens a follow-up listening turn without a wake
	// phrase.
	CmdStartFollowupVAD

	// CmdSpeechEnd reports that the boundary detector closed the utterance.
	CmdSpeechEnd

	// CmdSpeak marks the start of response playback.
	CmdSpeak

	// CmdTTSComplete reports that the player finished rendering the
	// response.
	CmdTTSComplete

	// CmdRunEnd reports that the backend closed the run.
	CmdRunEnd

	// CmdTimerBeep, CmdAlarmBeep, CmdConfirmBeep and CmdErrorBeep play the
	// corresponding audible cue. Every beep is followed by a
	// resume-listening command.
	CmdTimerBeep
	CmdAlarmBeep
	CmdConfirmBeep
	CmdErrorBeep

	// CmdErrorResume returns to wake-word listening after the error
	// back-off delay.
	CmdErrorResume
)

// String returns the human-readable command name.
func (t CommandType) String() string {
	switch t {
	case CmdWakeDetected:
		return "wake-detected"
	case CmdOfflineCmd:
		return "offline-cmd"
	case CmdResumeWWD:
		return "resume-wwd"
	case CmdStopWWD:
		return "stop-wwd"
	case CmdRestartWWD:
		return "restart-wwd"
	case CmdStartFollowupVAD:
		return "start-followup-vad"
	case CmdSpeechEnd:
		return "speech-end"
	case CmdSpeak:
		return "speak"
	case CmdTTSComplete:
		return "tts-complete"
	case CmdRunEnd:
		return "run-end"
	case CmdTimerBeep:
		return "timer-beep"
	case CmdAlarmBeep:
		return "alarm-beep"
	case CmdConfirmBeep:
		return "confirm-beep"
	case CmdErrorBeep:
		return "error-beep"
	case CmdErrorResume:
		return "error-resume"
	default:
		return "unknown"
	}
}

// Command is one entry on the orchestrator's bounded queue.
type Command struct {
	Type CommandType

	// IntData carries a small integer argument; its meaning depends on
	// Type (an OfflineAction for CmdOfflineCmd, a timer id for beeps).
	IntData int
}

// OfflineAction enumerates the local actions CmdOfflineCmd can execute
// without a backend round trip.
type OfflineAction int

const (
	// OfflineStopTimers cancels all running countdowns.
	OfflineStopTimers OfflineAction = iota

	// OfflineMediaPause, OfflineMediaResume and OfflineMediaStop control
	// local media playback.
	OfflineMediaPause
	OfflineMediaResume
	OfflineMediaStop

	// OfflineVolumeUp and OfflineVolumeDown adjust the persisted output
	// volume.
	OfflineVolumeUp
	OfflineVolumeDown
)

// Mode is the orchestrator's externally visible state.
type Mode int

const (
	// ModeWakeIdle means wake-word capture is active.
	ModeWakeIdle Mode = iota

	// ModeListening means gated capture and the boundary detector are
	// active and a backend run is open (or opening).
	ModeListening

	// ModeProcessing means capture has stopped and the backend result is
	// pending.
	ModeProcessing

	// ModeSpeaking means the response (TTS or local confirmation) is
	// playing.
	ModeSpeaking
)

// String returns the human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeWakeIdle:
		return "wake-idle"
	case ModeListening:
		return "listening"
	case ModeProcessing:
		return "processing"
	case ModeSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}
