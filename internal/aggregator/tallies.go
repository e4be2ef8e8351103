package aggregator

import (
	"encoding/json"
	"strings"

	"github.com/agentlens/backend/internal/event"
)

// tally is an insertion-order-preserving counter keyed by name.
type tally struct {
	counts map[string]int
	order  []string
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(name string) {
	if name == "" {
		return
	}
	if _, ok := t.counts[name]; !ok {
		t.order = append(t.order, name)
	}
	t.counts[name]++
}

func (t *tally) entries() []TallyEntry {
	out := make([]TallyEntry, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, TallyEntry{Name: name, Count: t.counts[name]})
	}
	return out
}

func (t *tally) restore(entries []TallyEntry) {
	t.counts = make(map[string]int, len(entries))
	t.order = t.order[:0]
	for _, e := range entries {
		if _, ok := t.counts[e.Name]; !ok {
			t.order = append(t.order, e.Name)
		}
		t.counts[e.Name] += e.Count
	}
}

// workTracker tallies the files, urls, directories, and commands touched by
// tool calls. These are the consumer-local incremental structures carried in
// snapshots alongside the aggregator's own state.
type workTracker struct {
	files       *tally
	urls        *tally
	directories *tally
	commands    *tally
}

func newWorkTracker() *workTracker {
	return &workTracker{
		files:       newTally(),
		urls:        newTally(),
		directories: newTally(),
		commands:    newTally(),
	}
}

// toolCallInput is the common shape of tool-call inputs the work tracker
// cares about. Absent fields simply contribute nothing.
type toolCallInput struct {
	FilePath string `json:"file_path"`
	Path     string `json:"path"`
	URL      string `json:"url"`
	Command  string `json:"command"`
}

func (w *workTracker) observe(ev *event.Event) {
	if ev.Type != event.ToolUse || len(ev.Raw) == 0 {
		return
	}

	var in toolCallInput
	if err := json.Unmarshal(ev.Raw, &in); err != nil {
		return
	}

	switch ev.Tool {
	case "Read", "Write", "Edit", "NotebookEdit":
		w.files.add(in.FilePath)
	case "WebFetch", "WebSearch":
		w.urls.add(in.URL)
	case "Bash":
		w.commands.add(firstCommandWord(in.Command))
	case "Glob", "Grep", "LS":
		dir := in.Path
		if dir == "" {
			dir = "."
		}
		w.directories.add(dir)
	}
}

// firstCommandWord reduces a shell command line to its leading word so the
// tally groups invocations of the same program.
func firstCommandWord(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return ""
	}
	if i := strings.IndexAny(cmd, " \t"); i >= 0 {
		return cmd[:i]
	}
	return cmd
}

func (w *workTracker) reset() {
	w.files = newTally()
	w.urls = newTally()
	w.directories = newTally()
	w.commands = newTally()
}
