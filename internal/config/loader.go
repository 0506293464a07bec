package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// commonSampleRates lists capture rates the audio drivers are known to
// support. Other values are accepted but warned about.
var commonSampleRates = []int{8000, 16000, 22050, 44100, 48000}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Backend
	if cfg.Backend.URL == "" {
		errs = append(errs, errors.New("backend.url is required"))
	}
	if cfg.Backend.Token == "" {
		errs = append(errs, errors.New("backend.token is required"))
	}
	if cfg.Backend.SendTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("backend.send_timeout_ms %d must not be negative", cfg.Backend.SendTimeoutMs))
	}
	if rc := cfg.Backend.Reconnect; rc.InitialDelayMs > 0 && rc.MaxDelayMs > 0 && rc.InitialDelayMs > rc.MaxDelayMs {
		errs = append(errs, fmt.Errorf("backend.reconnect.initial_delay_ms %d exceeds max_delay_ms %d", rc.InitialDelayMs, rc.MaxDelayMs))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	} else if !slices.Contains(commonSampleRates, cfg.Audio.SampleRate) {
		slog.Warn("unusual sample rate — the capture driver may not support it",
			"sample_rate", cfg.Audio.SampleRate,
			"common", commonSampleRates,
		)
	}
	if cfg.Audio.VolumeStep < 0 || cfg.Audio.VolumeStep > 100 {
		errs = append(errs, fmt.Errorf("audio.volume_step %d is out of range [0, 100]", cfg.Audio.VolumeStep))
	}

	// VAD
	if cfg.VAD.SpeechThreshold == 0 {
		errs = append(errs, errors.New("vad.speech_threshold is required"))
	}
	if cfg.VAD.MinSpeechMs == 0 {
		errs = append(errs, errors.New("vad.min_speech_ms is required"))
	}
	if cfg.VAD.SilenceMs == 0 {
		errs = append(errs, errors.New("vad.silence_ms is required"))
	}
	if cfg.VAD.MaxRecordingMs == 0 {
		errs = append(errs, errors.New("vad.max_recording_ms is required"))
	} else {
		if cfg.VAD.MinSpeechMs >= cfg.VAD.MaxRecordingMs {
			errs = append(errs, fmt.Errorf("vad.min_speech_ms %d must be below max_recording_ms %d", cfg.VAD.MinSpeechMs, cfg.VAD.MaxRecordingMs))
		}
		if cfg.VAD.SilenceMs >= cfg.VAD.MaxRecordingMs {
			errs = append(errs, fmt.Errorf("vad.silence_ms %d must be below max_recording_ms %d", cfg.VAD.SilenceMs, cfg.VAD.MaxRecordingMs))
		}
	}

	// Intent
	if cfg.Intent.MaxDistance < 0 {
		errs = append(errs, fmt.Errorf("intent.max_distance %d must not be negative", cfg.Intent.MaxDistance))
	}
	if cfg.Intent.MaxDistance > 3 {
		slog.Warn("large intent.max_distance will match unrelated words",
			"max_distance", cfg.Intent.MaxDistance,
		)
	}
	for i, kw := range cfg.Intent.Keywords {
		if kw == "" {
			errs = append(errs, fmt.Errorf("intent.keywords[%d] must not be empty", i))
		}
	}

	// Pipeline
	if cfg.Pipeline.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("pipeline.queue_size %d must not be negative", cfg.Pipeline.QueueSize))
	}
	if cfg.Pipeline.PollIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.poll_interval_ms %d must not be negative", cfg.Pipeline.PollIntervalMs))
	}

	return errors.Join(errs...)
}
