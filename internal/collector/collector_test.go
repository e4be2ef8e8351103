package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentlens/backend/internal/aggregator"
	"github.com/agentlens/backend/internal/config"
	"github.com/agentlens/backend/internal/snapshot"
	"github.com/agentlens/backend/internal/watcher"
)

func testConfig(root, stateDir string) *config.Config {
	cfg := config.Default()
	cfg.Watcher.SessionRoot = root
	cfg.Watcher.StateDir = stateDir
	cfg.Watcher.PollInterval = 20 * time.Millisecond
	cfg.Watcher.DiscoverWindow = time.Hour
	return cfg
}

func writeSessionLog(t *testing.T, root, project, sessionID string, lines string) string {
	t.Helper()
	dir := filepath.Join(root, project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRegisterAndMetrics(t *testing.T) {
	dir := t.TempDir()
	c := New(testConfig(dir, dir), snapshot.NewStore(dir), watcher.NewClaudeProvider(), nil)

	agg := c.Register("mock-1", "claude")
	if agg == nil {
		t.Fatal("Register returned nil aggregator")
	}

	ids := c.Sessions()
	if len(ids) != 1 || ids[0] != "mock-1" {
		t.Fatalf("Sessions() = %v, want [mock-1]", ids)
	}

	m, ok := c.Metrics("mock-1")
	if !ok || m.SessionID != "mock-1" || m.Provider != "claude" {
		t.Errorf("Metrics() = (%+v, %v)", m, ok)
	}

	if _, ok := c.Metrics("unknown"); ok {
		t.Error("Metrics() of unknown session should report not found")
	}
}

func TestDiscoverTracksSessions(t *testing.T) {
	root := t.TempDir()
	state := t.TempDir()

	line := `{"type": "assistant", "timestamp": "2026-03-14T09:00:00Z", "message": {"model": "claude-opus-4-5", "usage": {"input_tokens": 10, "output_tokens": 50}, "content": [{"type": "text", "text": "hi"}]}}` + "\n"
	writeSessionLog(t, root, "-tmp-proj", "sess-abc", line)

	var updates []string
	onUpdate := func(id string) { updates = append(updates, id) }
	c := New(testConfig(root, state), snapshot.NewStore(state), watcher.NewClaudeProvider(), onUpdate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.discover(ctx)

	ids := c.Sessions()
	if len(ids) != 1 || ids[0] != "sess-abc" {
		t.Fatalf("Sessions() = %v, want [sess-abc]", ids)
	}

	deadline := time.After(3 * time.Second)
	for {
		if m, ok := c.Metrics("sess-abc"); ok && m.EventCount > 0 {
			if m.Totals.OutputTokens != 50 {
				t.Errorf("OutputTokens = %d, want 50", m.Totals.OutputTokens)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for events to be processed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// The provider fans a nested tool_use block out into its own event; folding
// both through the pipeline must attribute the payload once, not twice.
func TestFannedToolPayloadAttributedOnce(t *testing.T) {
	p := watcher.NewClaudeProvider()
	agg := aggregator.New()

	line := `{"type": "assistant", "timestamp": "2026-03-14T09:00:00Z", "message": {"model": "claude-opus-4-5", "content": [{"type": "tool_use", "id": "toolu_01", "name": "Read", "input":{"file_path":"/src/main.go"}}]}}`
	events := p.Normalize([]byte(line))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, ev := range events {
		agg.ProcessEvent(ev)
	}

	// The input payload is 28 bytes: ceil(28/4) = 7 tokens, counted once.
	attr := agg.Metrics().Attribution
	if attr.ToolInputs != 7 {
		t.Errorf("ToolInputs = %d, want 7 (payload attributed once)", attr.ToolInputs)
	}
}

// Run's return is the shutdown barrier: once it comes back after cancel,
// the final checkpoint of every session must already be on disk.
func TestRunCheckpointsBeforeReturn(t *testing.T) {
	root := t.TempDir()
	state := t.TempDir()
	store := snapshot.NewStore(state)

	line := `{"type": "assistant", "timestamp": "2026-03-14T09:00:00Z", "message": {"model": "claude-opus-4-5", "usage": {"input_tokens": 10, "output_tokens": 50}}}` + "\n"
	writeSessionLog(t, root, "-tmp-proj", "sess-abc", line)

	ctx, cancel := context.WithCancel(context.Background())
	c := New(testConfig(root, state), store, watcher.NewClaudeProvider(), nil)

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(3 * time.Second)
	for {
		if m, ok := c.Metrics("sess-abc"); ok && m.EventCount > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for initial processing")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	snap, err := store.Load("sess-abc")
	if err != nil || snap == nil {
		t.Fatalf("final checkpoint missing after Run returned: snap=%v err=%v", snap, err)
	}
	if snap.ReaderPosition != int64(len(line)) {
		t.Errorf("ReaderPosition = %d, want %d", snap.ReaderPosition, len(line))
	}
}

func TestCheckpointAndResume(t *testing.T) {
	root := t.TempDir()
	state := t.TempDir()
	store := snapshot.NewStore(state)

	line := `{"type": "assistant", "timestamp": "2026-03-14T09:00:00Z", "message": {"model": "claude-opus-4-5", "usage": {"input_tokens": 10, "output_tokens": 50}}}` + "\n"
	writeSessionLog(t, root, "-tmp-proj", "sess-abc", line)

	ctx, cancel := context.WithCancel(context.Background())
	c := New(testConfig(root, state), store, watcher.NewClaudeProvider(), nil)
	c.discover(ctx)

	deadline := time.After(3 * time.Second)
	for {
		if m, ok := c.Metrics("sess-abc"); ok && m.EventCount > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for initial processing")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	c.shutdown()

	snap, err := store.Load("sess-abc")
	if err != nil || snap == nil {
		t.Fatalf("checkpoint not written: snap=%v err=%v", snap, err)
	}
	if snap.ReaderPosition != int64(len(line)) {
		t.Errorf("ReaderPosition = %d, want %d", snap.ReaderPosition, len(line))
	}

	// A second collector resumes from the checkpoint and seeks past the
	// already-processed bytes.
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	c2 := New(testConfig(root, state), store, watcher.NewClaudeProvider(), nil)
	c2.discover(ctx2)

	m, ok := c2.Metrics("sess-abc")
	if !ok {
		t.Fatal("resumed session not tracked")
	}
	if m.EventCount == 0 || m.Totals.OutputTokens != 50 {
		t.Errorf("restored metrics = %+v, want checkpointed state", m.Totals)
	}
}
