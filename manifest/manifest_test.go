package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "calc"

[runtime]
workers = 4
max-frames = 64

[cache]
memory = false
path = ".waterscript/units.db"

[log]
verbosity = 1
file = "run.log"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "calc" {
		t.Errorf("project name = %q, want calc", m.Project.Name)
	}
	if m.Runtime.Workers != 4 {
		t.Errorf("workers = %d, want 4", m.Runtime.Workers)
	}
	if m.Runtime.MaxFrames != 64 {
		t.Errorf("max-frames = %d, want 64", m.Runtime.MaxFrames)
	}
	if m.Cache.Memory {
		t.Error("cache memory = true, want false")
	}
	if m.Log.Verbosity != 1 {
		t.Errorf("verbosity = %d, want 1", m.Log.Verbosity)
	}

	abs, _ := filepath.Abs(dir)
	if m.Dir != abs {
		t.Errorf("dir = %q, want %q", m.Dir, abs)
	}
	if got, want := m.CachePath(), filepath.Join(abs, ".waterscript", "units.db"); got != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}
	if got, want := m.LogPath(), filepath.Join(abs, "run.log"); got != want {
		t.Errorf("log path = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	d := Default()
	if m.Runtime != d.Runtime {
		t.Errorf("runtime = %+v, want defaults %+v", m.Runtime, d.Runtime)
	}
	if !m.Cache.Memory || m.CachePath() != "" {
		t.Errorf("cache = %+v, want memory only", m.Cache)
	}
	if m.LogPath() != "" {
		t.Errorf("log path = %q, want stderr", m.LogPath())
	}
}

func TestLoadManifestRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero workers", "[runtime]\nworkers = 0\n"},
		{"string workers", "[runtime]\nworkers = \"two\"\n"},
		{"verbosity too high", "[log]\nverbosity = 9\n"},
		{"unknown section", "[image]\noutput = \"x\"\n"},
		{"unknown key", "[cache]\nsize = 10\n"},
		{"empty name", "[project]\nname = \"\"\n"},
		{"syntax", "[runtime\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			if _, err := Load(dir); err == nil {
				t.Error("Load succeeded, want an error")
			} else if !strings.Contains(err.Error(), FileName) {
				t.Errorf("error %q should name the file", err)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected an error for a directory without a manifest")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no waterscript.toml exists")
	}
}

func TestAbsolutePathsKept(t *testing.T) {
	m := Default()
	m.Dir = "/app"
	m.Cache.Path = "/var/cache/units.db"
	if m.CachePath() != "/var/cache/units.db" {
		t.Errorf("cache path = %q", m.CachePath())
	}
	m.Log.File = "logs/ws.log"
	if m.LogPath() != "/app/logs/ws.log" {
		t.Errorf("log path = %q", m.LogPath())
	}
}

func TestConfigureLogging(t *testing.T) {
	dir := t.TempDir()
	m := Default()
	m.Dir = dir
	m.Log.File = "ws.log"
	m.ConfigureLogging()
	t.Cleanup(func() { Default().ConfigureLogging() })
}
