package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentlens/backend/internal/aggregator"
)

// MetricsSource is the read surface the broadcaster pulls session metrics
// from. The collector implements it.
type MetricsSource interface {
	Sessions() []string
	Metrics(sessionID string) (*aggregator.MetricsSnapshot, bool)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans metrics updates out to WebSocket clients. Per-session
// update notifications are coalesced under a throttle; a periodic full
// snapshot covers clients that missed deltas.
type Broadcaster struct {
	mu             sync.RWMutex
	clients        map[*client]bool
	source         MetricsSource
	throttle       time.Duration
	snapshotTicker *time.Ticker

	flushMu    sync.Mutex
	pendingIDs map[string]bool
	pendingRem []string
	flushTimer *time.Timer
}

func NewBroadcaster(source MetricsSource, throttle, snapshotInterval time.Duration) *Broadcaster {
	b := &Broadcaster{
		clients:    make(map[*client]bool),
		source:     source,
		throttle:   throttle,
		pendingIDs: make(map[string]bool),
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	data, err := json.Marshal(b.snapshotMessage())
	if err == nil {
		select {
		case c.send <- data:
		default:
			// Client too slow, drop the snapshot.
		}
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// QueueUpdate marks a session as changed. Deltas are flushed after the
// throttle interval so event bursts coalesce into one message.
func (b *Broadcaster) QueueUpdate(sessionID string) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingIDs[sessionID] = true

	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

// QueueRemoval announces retired sessions on the next flush.
func (b *Broadcaster) QueueRemoval(ids []string) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingRem = append(b.pendingRem, ids...)

	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

// BroadcastMessage sends an out-of-band message to all clients.
func (b *Broadcaster) BroadcastMessage(msg WSMessage) {
	b.broadcast(msg)
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	ids := b.pendingIDs
	removed := b.pendingRem
	b.pendingIDs = make(map[string]bool)
	b.pendingRem = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(ids) == 0 && len(removed) == 0 {
		return
	}

	updates := make([]SessionMetrics, 0, len(ids))
	for id := range ids {
		if m, ok := b.source.Metrics(id); ok {
			updates = append(updates, SessionMetrics{SessionID: id, Metrics: m})
		}
	}

	b.broadcast(WSMessage{
		Type: MsgDelta,
		Payload: DeltaPayload{
			Updates: updates,
			Removed: removed,
		},
	})
}

func (b *Broadcaster) snapshotMessage() WSMessage {
	ids := b.source.Sessions()
	sessions := make([]SessionMetrics, 0, len(ids))
	for _, id := range ids {
		if m, ok := b.source.Metrics(id); ok {
			sessions = append(sessions, SessionMetrics{SessionID: id, Metrics: m})
		}
	}
	return WSMessage{
		Type:    MsgSnapshot,
		Payload: SnapshotPayload{Sessions: sessions},
	}
}

func (b *Broadcaster) snapshotLoop() {
	for range b.snapshotTicker.C {
		b.broadcast(b.snapshotMessage())
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it.
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
