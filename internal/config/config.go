// Package config provides the configuration schema, loader, and file watcher
// for the sonara voice session daemon.
package config

// LogLevel controls log verbosity for the daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for sonara.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Audio    AudioConfig    `yaml:"audio"`
	VAD      VADConfig      `yaml:"vad"`
	Intent   IntentConfig   `yaml:"intent"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig holds the local HTTP endpoint (health probes and Prometheus
// metrics) and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the health/metrics server listens on
	// (e.g., ":8090").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// BackendConfig describes the conversation backend connection.
type BackendConfig struct {
	// URL is the websocket endpoint of the conversation backend
	// (e.g., "wss://assistant.example.com/ws").
	URL string `yaml:"url"`

	// Token is the device's bearer token presented during the auth
	// handshake.
	Token string `yaml:"token"`

	// SendTimeoutMs bounds each websocket write. Default: 5000.
	SendTimeoutMs int `yaml:"send_timeout_ms"`

	// Reconnect tunes the redial loop after a transport drop.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Breaker tunes the circuit breaker gating new runs.
	Breaker BreakerConfig `yaml:"breaker"`
}

// ReconnectConfig tunes the exponential backoff redial loop.
type ReconnectConfig struct {
	// InitialDelayMs is the first retry delay. Default: 1000.
	InitialDelayMs int `yaml:"initial_delay_ms"`

	// MaxDelayMs caps the backoff. Default: 30000.
	MaxDelayMs int `yaml:"max_delay_ms"`

	// MaxRetries limits redial attempts; 0 means retry forever.
	MaxRetries int `yaml:"max_retries"`
}

// BreakerConfig tunes the run-start circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeoutMs is how long the breaker stays open before probing.
	ResetTimeoutMs int `yaml:"reset_timeout_ms"`

	// HalfOpenMax is the probe budget in the half-open state.
	HalfOpenMax int `yaml:"half_open_max"`
}

// AudioConfig holds audio path settings.
type AudioConfig struct {
	// SampleRate is the capture PCM sample rate in Hz (e.g., 16000).
	SampleRate int `yaml:"sample_rate"`

	// StopTimeoutMs bounds every stop-and-wait handoff on the audio path.
	// Default: 1000.
	StopTimeoutMs int `yaml:"stop_timeout_ms"`

	// VolumeStep is the percentage applied per volume command. Default: 10.
	VolumeStep int `yaml:"volume_step"`

	// StateTopic is the discovery topic mode changes are published on.
	// Default: "sonara/state".
	StateTopic string `yaml:"state_topic"`
}

// VADConfig holds the utterance boundary detector thresholds.
type VADConfig struct {
	// SpeechThreshold is the RMS energy above which a frame counts as
	// speech.
	SpeechThreshold uint32 `yaml:"speech_threshold"`

	// MinSpeechMs is the accumulated speech needed before an utterance is
	// considered started.
	MinSpeechMs uint32 `yaml:"min_speech_ms"`

	// SilenceMs is the trailing silence window that ends an utterance.
	SilenceMs uint32 `yaml:"silence_ms"`

	// MaxRecordingMs is the hard ceiling on a single utterance.
	MaxRecordingMs uint32 `yaml:"max_recording_ms"`
}

// IntentConfig holds the local shortcut resolver settings.
type IntentConfig struct {
	// Keywords are the timer trigger words matched against transcripts.
	// Empty means the built-in set.
	Keywords []string `yaml:"keywords"`

	// MaxDistance is the edit distance tolerated when matching keywords
	// against transcription output.
	MaxDistance int `yaml:"max_distance"`
}

// PipelineConfig holds the session pipeline tuning knobs.
type PipelineConfig struct {
	// QueueSize bounds the command queue. Default: 16.
	QueueSize int `yaml:"queue_size"`

	// PollIntervalMs is the consumer's idle wake-up period. Default: 100.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// ErrorResumeDelayMs is the back-off before resuming wake-word
	// listening after an error cue. Default: 2000.
	ErrorResumeDelayMs int `yaml:"error_resume_delay_ms"`
}
