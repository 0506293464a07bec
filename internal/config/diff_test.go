package config

import "testing"

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8090", LogLevel: LogInfo},
		VAD: VADConfig{
			SpeechThreshold: 500,
			MinSpeechMs:     200,
			SilenceMs:       800,
			MaxRecordingMs:  10000,
		},
		Intent: IntentConfig{Keywords: []string{"timer", "tajmer"}, MaxDistance: 1},
	}
}

func TestDiffNoChanges(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	d := Diff(old, new)
	if d.Any() {
		t.Fatalf("Diff of identical configs reported changes: %+v", d)
	}
}

func TestDiffLogLevel(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = LogDebug

	d := Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if d.VADChanged || d.IntentChanged {
		t.Errorf("unrelated sections reported changed: %+v", d)
	}
}

func TestDiffVADThresholds(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.VAD.SilenceMs = 1200

	d := Diff(old, new)
	if !d.VADChanged {
		t.Fatal("VADChanged = false, want true")
	}
	if d.NewVAD.SilenceMs != 1200 {
		t.Errorf("NewVAD.SilenceMs = %d, want 1200", d.NewVAD.SilenceMs)
	}
}

func TestDiffIntentKeywords(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Intent.Keywords = []string{"timer", "tajmer", "odbrojavanje"}

	d := Diff(old, new)
	if !d.IntentChanged {
		t.Fatal("IntentChanged = false, want true")
	}
	if len(d.NewIntent.Keywords) != 3 {
		t.Errorf("NewIntent.Keywords = %v", d.NewIntent.Keywords)
	}
}

func TestDiffIntentDistance(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Intent.MaxDistance = 2

	d := Diff(old, new)
	if !d.IntentChanged {
		t.Fatal("IntentChanged = false, want true")
	}
}
