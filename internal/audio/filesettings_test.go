package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := NewFileSettings(path)
	if err != nil {
		t.Fatalf("NewFileSettings() error = %v", err)
	}

	if _, err := s.Load("volume"); err == nil {
		t.Fatal("Load() on missing key should error")
	}
	if err := s.Save("volume", "60"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if v, err := s.Load("volume"); err != nil || v != "60" {
		t.Fatalf("Load() = %q, %v, want \"60\", nil", v, err)
	}

	// Reopen from disk.
	s2, err := NewFileSettings(path)
	if err != nil {
		t.Fatalf("NewFileSettings() reopen error = %v", err)
	}
	if v, err := s2.Load("volume"); err != nil || v != "60" {
		t.Fatalf("Load() after reopen = %q, %v, want \"60\", nil", v, err)
	}
}

func TestFileSettingsRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileSettings(path); err == nil {
		t.Fatal("NewFileSettings() should reject a corrupt file")
	}
}

func TestFileSettingsCreatesParentDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s, err := NewFileSettings(path)
	if err != nil {
		t.Fatalf("NewFileSettings() error = %v", err)
	}
	if err := s.Save("alarm", "07:30"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("settings file not written: %v", err)
	}
}
