package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// setHome points os.UserHomeDir at dir for the duration of the test.
func setHome(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("HOME", dir)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", dir)
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	setHome(t, home)

	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if p, err := ExpandHome("~"); err != nil || p != home {
		t.Fatalf("expected %q, got %q err=%v", home, p, err)
	}
	exp, err := ExpandHome("~/genrelay.yaml")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if exp != filepath.Join(home, "genrelay.yaml") {
		t.Fatalf("unexpected expanded path: %q", exp)
	}
}

func TestFirstExisting(t *testing.T) {
	home := t.TempDir()
	setHome(t, home)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "b.yaml"), []byte("addr: :1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := FirstExisting(filepath.Join(dir, "missing.yaml"), dir, "~/b.yaml")
	if got != filepath.Join(home, "b.yaml") {
		t.Fatalf("got %q", got)
	}
	if got := FirstExisting(filepath.Join(dir, "nope.toml"), ""); got != "" {
		t.Fatalf("expected no match, got %q", got)
	}
}
