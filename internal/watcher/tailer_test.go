package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentlens/backend/internal/event"
)

// lineProvider turns each line into a single event carrying the line text.
// It keeps tailer tests independent of any real log format.
type lineProvider struct{}

func (lineProvider) Name() string { return "test" }

func (lineProvider) Normalize(line []byte) []*event.Event {
	return []*event.Event{{Provider: "test", Type: event.User, Text: string(line)}}
}

func newTestTailer(t *testing.T, initial string) (*Tailer, *[]string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatal(err)
	}

	var seen []string
	tailer := NewTailer(path, lineProvider{}, time.Second, func(ev *event.Event) {
		seen = append(seen, ev.Text)
	})
	return tailer, &seen, path
}

func TestTailerReadsCompleteLines(t *testing.T) {
	tailer, seen, _ := newTestTailer(t, "one\ntwo\n")

	tailer.readNew()

	if len(*seen) != 2 || (*seen)[0] != "one" || (*seen)[1] != "two" {
		t.Fatalf("seen = %v, want [one two]", *seen)
	}
	if tailer.Position() != 8 {
		t.Errorf("Position() = %d, want 8", tailer.Position())
	}
}

func TestTailerLeavesPartialLine(t *testing.T) {
	tailer, seen, path := newTestTailer(t, "complete\npart")

	tailer.readNew()
	if len(*seen) != 1 || (*seen)[0] != "complete" {
		t.Fatalf("seen = %v, want [complete]", *seen)
	}
	if tailer.Position() != 9 {
		t.Errorf("Position() = %d, want 9 (offset stops before the partial line)", tailer.Position())
	}

	// The rest of the line arrives: it is re-read whole.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("ial\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tailer.readNew()
	if len(*seen) != 2 || (*seen)[1] != "partial" {
		t.Fatalf("seen = %v, want [complete partial]", *seen)
	}
}

func TestTailerIncrementalAppend(t *testing.T) {
	tailer, seen, path := newTestTailer(t, "first\n")

	tailer.readNew()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("second\nthird\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()
	tailer.readNew()

	want := []string{"first", "second", "third"}
	if len(*seen) != len(want) {
		t.Fatalf("seen = %v, want %v", *seen, want)
	}
	for i := range want {
		if (*seen)[i] != want[i] {
			t.Errorf("seen[%d] = %q, want %q", i, (*seen)[i], want[i])
		}
	}
}

func TestTailerSeekSkipsProcessedBytes(t *testing.T) {
	tailer, seen, _ := newTestTailer(t, "old\nnew\n")

	tailer.SeekTo(4) // past "old\n"
	tailer.readNew()

	if len(*seen) != 1 || (*seen)[0] != "new" {
		t.Fatalf("seen = %v, want [new]", *seen)
	}
}

func TestTailerTruncationRewinds(t *testing.T) {
	tailer, seen, path := newTestTailer(t, "aaaa\nbbbb\ncccc\n")

	tailer.readNew()
	if len(*seen) != 3 {
		t.Fatalf("seen %d lines, want 3", len(*seen))
	}

	// File replaced with shorter content: rewind and replay it.
	if err := os.WriteFile(path, []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tailer.readNew()

	if last := (*seen)[len(*seen)-1]; last != "x" {
		t.Errorf("last seen = %q, want %q after truncation", last, "x")
	}
	if tailer.Position() != 2 {
		t.Errorf("Position() = %d, want 2", tailer.Position())
	}
}

func TestTailerStopDiscardsEvents(t *testing.T) {
	tailer, seen, _ := newTestTailer(t, "line\n")

	tailer.Stop()
	tailer.readNew()

	if len(*seen) != 0 {
		t.Errorf("seen = %v, want none after Stop", *seen)
	}
}

func TestTailerSourceSize(t *testing.T) {
	tailer, _, _ := newTestTailer(t, "12345\n")
	if got := tailer.SourceSize(); got != 6 {
		t.Errorf("SourceSize() = %d, want 6", got)
	}

	missing := NewTailer("/nonexistent/file.jsonl", lineProvider{}, time.Second, nil)
	if got := missing.SourceSize(); got != 0 {
		t.Errorf("SourceSize() of missing file = %d, want 0", got)
	}
}

func TestTailerLiveLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ch := make(chan string, 16)
	tailer := NewTailer(path, lineProvider{}, 20*time.Millisecond, func(ev *event.Event) {
		ch <- ev.Text
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tailer.Start(ctx, true)
	defer tailer.Stop()

	line, _ := json.Marshal("payload")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		t.Fatal(err)
	}
	f.Close()

	select {
	case got := <-ch:
		if got != string(line) {
			t.Errorf("got %q, want %q", got, line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tailed line")
	}
}
