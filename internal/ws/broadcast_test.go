package ws

import (
	"testing"
	"time"

	"github.com/agentlens/backend/internal/aggregator"
)

// fakeSource is a MetricsSource backed by a plain map.
type fakeSource struct {
	order   []string
	metrics map[string]*aggregator.MetricsSnapshot
}

func (f *fakeSource) Sessions() []string { return f.order }

func (f *fakeSource) Metrics(id string) (*aggregator.MetricsSnapshot, bool) {
	m, ok := f.metrics[id]
	return m, ok
}

func newTestBroadcaster(source MetricsSource) *Broadcaster {
	return &Broadcaster{
		clients:    make(map[*client]bool),
		source:     source,
		throttle:   time.Hour, // tests flush by hand
		pendingIDs: make(map[string]bool),
	}
}

func twoSessionSource() *fakeSource {
	return &fakeSource{
		order: []string{"s1", "s2"},
		metrics: map[string]*aggregator.MetricsSnapshot{
			"s1": {SessionID: "s1", EventCount: 10},
			"s2": {SessionID: "s2", EventCount: 20},
		},
	}
}

func TestSnapshotMessage(t *testing.T) {
	b := newTestBroadcaster(twoSessionSource())

	msg := b.snapshotMessage()
	if msg.Type != MsgSnapshot {
		t.Errorf("Type = %q, want %q", msg.Type, MsgSnapshot)
	}
	payload, ok := msg.Payload.(SnapshotPayload)
	if !ok {
		t.Fatalf("Payload is %T, want SnapshotPayload", msg.Payload)
	}
	if len(payload.Sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(payload.Sessions))
	}
	if payload.Sessions[0].SessionID != "s1" || payload.Sessions[1].SessionID != "s2" {
		t.Errorf("session order = %s, %s", payload.Sessions[0].SessionID, payload.Sessions[1].SessionID)
	}
}

func TestQueueUpdateCoalesces(t *testing.T) {
	b := newTestBroadcaster(twoSessionSource())

	b.QueueUpdate("s1")
	b.QueueUpdate("s1")
	b.QueueUpdate("s2")

	b.flushMu.Lock()
	pending := len(b.pendingIDs)
	b.flushMu.Unlock()
	if pending != 2 {
		t.Errorf("pending ids = %d, want 2 (duplicates coalesced)", pending)
	}

	b.flush()

	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	if len(b.pendingIDs) != 0 {
		t.Error("flush should clear pending ids")
	}
}

func TestFlushSkipsUnknownSessions(t *testing.T) {
	b := newTestBroadcaster(twoSessionSource())

	// Session retired between queue and flush: no panic, no message for it.
	b.QueueUpdate("gone")
	b.flush()
}

func TestQueueRemoval(t *testing.T) {
	b := newTestBroadcaster(twoSessionSource())

	b.QueueRemoval([]string{"s1"})
	b.flushMu.Lock()
	got := len(b.pendingRem)
	b.flushMu.Unlock()
	if got != 1 {
		t.Errorf("pending removals = %d, want 1", got)
	}

	b.flush()
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	if b.pendingRem != nil {
		t.Error("flush should clear pending removals")
	}
}

func TestClientCount(t *testing.T) {
	b := newTestBroadcaster(twoSessionSource())
	if b.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", b.ClientCount())
	}
}
