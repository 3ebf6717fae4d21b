package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_UsesXDGDirectories(t *testing.T) {
	dataHome := t.TempDir()
	configHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)
	t.Setenv("XDG_CONFIG_HOME", configHome)

	v, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"RootPath", v.RootPath, filepath.Join(dataHome, "cardforge")},
		{"RecordsPath", v.RecordsPath, filepath.Join(dataHome, "cardforge", "records")},
		{"OutputPath", v.OutputPath, filepath.Join(dataHome, "cardforge", "output")},
		{"CachePath", v.CachePath, filepath.Join(dataHome, "cardforge", "cache")},
		{"ConfigPath", v.ConfigPath, filepath.Join(configHome, "cardforge", "config.yaml")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestWithRoot_KeepsConfigPath(t *testing.T) {
	v := &Vault{RootPath: "/a", ConfigPath: "/etc/cardforge/config.yaml"}
	moved := v.WithRoot("/srv/cards")

	if moved.ConfigPath != v.ConfigPath {
		t.Errorf("ConfigPath = %q, want %q", moved.ConfigPath, v.ConfigPath)
	}
	if moved.RecordsPath != filepath.Join("/srv/cards", "records") {
		t.Errorf("RecordsPath = %q", moved.RecordsPath)
	}
}

func TestInitializeAndExists(t *testing.T) {
	v := At(filepath.Join(t.TempDir(), "data"))

	if v.Exists() {
		t.Fatal("vault should not exist before Initialize")
	}
	if err := v.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if !v.Exists() {
		t.Fatal("vault should exist after Initialize")
	}

	for _, dir := range []string{v.RecordsPath, v.OutputPath, v.ThumbsPath()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}
}

func TestPathConsistency(t *testing.T) {
	v := At("/vault")

	paths := map[string]string{
		"RecordsPath": v.RecordsPath,
		"OutputPath":  v.OutputPath,
		"CachePath":   v.CachePath,
		"ThumbsPath":  v.ThumbsPath(),
	}

	for name, path := range paths {
		if !strings.HasPrefix(path, v.RootPath) {
			t.Errorf("%s = %q should start with RootPath %q", name, path, v.RootPath)
		}
	}
}

func TestCleanCache(t *testing.T) {
	v := At(t.TempDir())
	if err := v.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(v.ThumbsPath(), "x.png"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := v.CleanCache(); err != nil {
		t.Fatalf("CleanCache() error: %v", err)
	}

	entries, err := os.ReadDir(v.CachePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty cache, found %d entries", len(entries))
	}
}
