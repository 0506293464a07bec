package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is true when any boundary detector threshold changed. The
	// new values take effect on the next listening turn.
	VADChanged bool
	NewVAD     VADConfig

	// IntentChanged is true when the shortcut keywords or edit distance
	// changed.
	IntentChanged bool
	NewIntent     IntentConfig
}

// Any reports whether the diff contains any change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.VADChanged || d.IntentChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; everything
// else (backend endpoint, audio path, pipeline sizing) needs one.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.VAD != new.VAD {
		d.VADChanged = true
		d.NewVAD = new.VAD
	}

	if old.Intent.MaxDistance != new.Intent.MaxDistance ||
		!slices.Equal(old.Intent.Keywords, new.Intent.Keywords) {
		d.IntentChanged = true
		d.NewIntent = new.Intent
	}

	return d
}
