package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSessionIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/home/u/.claude/projects/-home-u-app/abc-123.jsonl", "abc-123"},
		{"session.jsonl", "session"},
		{"/a/b/noext", "noext"},
	}

	for _, tt := range tests {
		if got := SessionIDFromPath(tt.path); got != tt.want {
			t.Errorf("SessionIDFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestDiscoverSessions(t *testing.T) {
	root := t.TempDir()
	projDir := filepath.Join(root, "-tmp-myproject")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}

	fresh := filepath.Join(projDir, "fresh.jsonl")
	if err := os.WriteFile(fresh, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stale := filepath.Join(projDir, "stale.jsonl")
	if err := os.WriteFile(stale, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	// Non-jsonl files and loose files in root are ignored.
	if err := os.WriteFile(filepath.Join(projDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "loose.jsonl"), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sessions, err := DiscoverSessions(root, time.Hour)
	if err != nil {
		t.Fatalf("DiscoverSessions() error: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1 (stale and non-jsonl excluded): %+v", len(sessions), sessions)
	}
	if sessions[0].SessionID != "fresh" {
		t.Errorf("SessionID = %q, want %q", sessions[0].SessionID, "fresh")
	}
	if sessions[0].Size != 3 {
		t.Errorf("Size = %d, want 3", sessions[0].Size)
	}
}

func TestDiscoverSessionsNoWindow(t *testing.T) {
	root := t.TempDir()
	projDir := filepath.Join(root, "-tmp-p")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(projDir, "s.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-240 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	sessions, err := DiscoverSessions(root, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Errorf("window 0 should disable the age filter, got %d sessions", len(sessions))
	}
}

func TestDiscoverSessionsMissingRoot(t *testing.T) {
	if _, err := DiscoverSessions("/nonexistent/projects", time.Hour); err == nil {
		t.Error("missing root should return an error")
	}
}

func TestDecodeProjectPath(t *testing.T) {
	// Build a real directory so the filesystem check resolves the
	// dash-ambiguity in its favor.
	base := t.TempDir()
	real := filepath.Join(base, "my-app")
	if err := os.MkdirAll(real, 0o755); err != nil {
		t.Fatal(err)
	}

	encoded := strings.ReplaceAll(real, "/", "-")
	if got := DecodeProjectPath(encoded); got != real {
		t.Errorf("DecodeProjectPath(%q) = %q, want %q", encoded, got, real)
	}

	// Without a leading dash the name is returned untouched.
	if got := DecodeProjectPath("plain"); got != "plain" {
		t.Errorf("DecodeProjectPath(plain) = %q", got)
	}
}
