package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/inbox/internal/config"
)

func TestDir(t *testing.T) {
	t.Setenv("INBOX_HOME", "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".inbox", "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestPathsUnderHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("INBOX_HOME", tmpDir)

	if got := LockPath("test"); !strings.HasSuffix(got, filepath.Join("profiles", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix profiles/test/LOCK", got)
	}
	if got := LogPath("test", "inboxd"); got != filepath.Join(tmpDir, "profiles", "test", "logs", "inboxd.log") {
		t.Errorf("LogPath(test) = %q", got)
	}
	if got := DBPath("test"); !strings.HasPrefix(got, tmpDir) {
		t.Errorf("DBPath(test) = %q, want under %q", got, tmpDir)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv("INBOX_HOME", t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(LogDir("test"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
}

func TestResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if got := Resolve("", path); got != DefaultName {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultName)
	}

	cfg := config.Default()
	cfg.DefaultProfile = "work"
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	if got := Resolve("", path); got != "work" {
		t.Errorf("Resolve() = %q, want work", got)
	}
	if got := Resolve("night", path); got != "night" {
		t.Errorf("Resolve(flag) = %q, want night", got)
	}
}
