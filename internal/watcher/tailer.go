package watcher

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentlens/backend/internal/event"
)

// Handler receives normalized events in log order.
type Handler func(*event.Event)

// Tailer incrementally reads one session log file, normalizes new lines
// through a Provider, and delivers the resulting events via callback.
// Byte-offset bookkeeping only advances past complete lines, so a write
// that lands mid-line is picked up whole on the next read.
//
// File-change notifications wake the read loop early; a poll ticker is the
// fallback for filesystems where notifications are unreliable.
type Tailer struct {
	path         string
	provider     Provider
	handler      Handler
	pollInterval time.Duration

	mu      sync.Mutex
	pos     int64
	stopped bool
	cancel  context.CancelFunc
}

func NewTailer(path string, provider Provider, pollInterval time.Duration, handler Handler) *Tailer {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Tailer{
		path:         path,
		provider:     provider,
		handler:      handler,
		pollInterval: pollInterval,
	}
}

// Position returns the byte offset of the next unread line.
func (t *Tailer) Position() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

// SeekTo positions the tailer at a byte offset, typically one recovered
// from a snapshot. Must be called before Start.
func (t *Tailer) SeekTo(pos int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pos >= 0 {
		t.pos = pos
	}
}

// SourceSize returns the current size of the log file, or 0 if it cannot
// be statted.
func (t *Tailer) SourceSize() int64 {
	info, err := os.Stat(t.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Start begins tailing. With replay true the tailer rewinds to the start
// of the file and re-delivers everything; otherwise it continues from the
// current position (zero unless SeekTo moved it). Start returns once the
// loop is running; Stop or ctx cancellation ends it.
func (t *Tailer) Start(ctx context.Context, replay bool) {
	t.mu.Lock()
	t.stopped = false
	if replay {
		t.pos = 0
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	go t.loop(loopCtx)
}

// Stop ends the read loop. Events observed after Stop are discarded even
// if a read was already in flight.
func (t *Tailer) Stop() {
	t.mu.Lock()
	t.stopped = true
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *Tailer) loop(ctx context.Context) {
	wake := make(chan struct{}, 1)

	fw, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the directory: editors and agents replace files, and
		// watching the parent survives that.
		if werr := fw.Add(filepath.Dir(t.path)); werr != nil {
			log.Printf("[watcher] fsnotify add failed for %s: %v", t.path, werr)
		}
		defer fw.Close()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-fw.Events:
					if !ok {
						return
					}
					if ev.Name == t.path && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						select {
						case wake <- struct{}{}:
						default:
						}
					}
				case _, ok := <-fw.Errors:
					if !ok {
						return
					}
				}
			}
		}()
	} else {
		log.Printf("[watcher] fsnotify unavailable, polling only: %v", err)
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	t.readNew()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			t.readNew()
		case <-ticker.C:
			t.readNew()
		}
	}
}

// readNew reads complete lines from the current offset to EOF and delivers
// their events. The offset only advances past lines that ended in a
// newline; a trailing partial line is left for the next read.
func (t *Tailer) readNew() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	pos := t.pos
	t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		return
	}
	defer f.Close()

	if pos > 0 {
		if info, serr := f.Stat(); serr == nil && info.Size() < pos {
			// File shrank underneath us: rewind and replay.
			log.Printf("[watcher] %s truncated (size %d < offset %d), rewinding", t.path, info.Size(), pos)
			pos = 0
		}
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return
		}
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			log.Printf("[watcher] read error on %s: %v", t.path, err)
			break
		}
		if len(line) == 0 {
			break
		}
		if line[len(line)-1] != '\n' {
			// Incomplete line: do not parse or advance.
			break
		}

		events := t.provider.Normalize(line[:len(line)-1])
		pos += int64(len(line))

		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			return
		}
		t.pos = pos
		t.mu.Unlock()

		for _, ev := range events {
			t.handler(ev)
		}

		if err == io.EOF {
			break
		}
	}
}
