// Package collector owns the per-session pipelines: one tailer plus one
// aggregator per discovered session log, a registry for readers, and the
// periodic checkpoint loop.
package collector

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/agentlens/backend/internal/aggregator"
	"github.com/agentlens/backend/internal/config"
	"github.com/agentlens/backend/internal/event"
	"github.com/agentlens/backend/internal/snapshot"
	"github.com/agentlens/backend/internal/watcher"
)

// UpdateFunc is notified after a session's aggregator absorbed new events.
type UpdateFunc func(sessionID string)

// tracked is one live session pipeline.
type tracked struct {
	id       string
	provider string
	agg      *aggregator.Aggregator
	tailer   *watcher.Tailer
	snaps    *snapshot.Manager
	lastSeen time.Time
}

// Collector discovers session logs, restores checkpoints, tails each log
// into its own aggregator, and checkpoints periodically and on shutdown.
type Collector struct {
	cfg      *config.Config
	store    *snapshot.Store
	provider watcher.Provider
	onUpdate UpdateFunc
	onRetire func(ids []string)

	mu       sync.RWMutex
	sessions map[string]*tracked
	order    []string
}

func New(cfg *config.Config, store *snapshot.Store, provider watcher.Provider, onUpdate UpdateFunc) *Collector {
	return &Collector{
		cfg:      cfg,
		store:    store,
		provider: provider,
		onUpdate: onUpdate,
		sessions: make(map[string]*tracked),
	}
}

// SetRetireFunc registers a callback invoked with the ids of sessions
// retired by discovery. Must be called before Run.
func (c *Collector) SetRetireFunc(fn func(ids []string)) {
	c.onRetire = fn
}

// Sessions returns the tracked session ids in discovery order.
func (c *Collector) Sessions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Metrics returns the current metrics snapshot for a session.
func (c *Collector) Metrics(sessionID string) (*aggregator.MetricsSnapshot, bool) {
	c.mu.RLock()
	t, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return t.agg.Metrics(), true
}

// Register adds a pre-built aggregator under a session id without a
// backing file. Used by the mock generator.
func (c *Collector) Register(sessionID, provider string) *aggregator.Aggregator {
	agg := aggregator.New()
	agg.SetSession(sessionID, provider)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = &tracked{
		id:       sessionID,
		provider: provider,
		agg:      agg,
		lastSeen: time.Now(),
	}
	c.order = append(c.order, sessionID)
	return agg
}

// Run discovers sessions on an interval, starts pipelines for new ones,
// retires stale ones, and checkpoints on the snapshot interval. Blocks
// until ctx is cancelled, then stops every tailer and takes a final
// checkpoint of each session.
func (c *Collector) Run(ctx context.Context) {
	discoverTicker := time.NewTicker(c.cfg.Watcher.PollInterval * 5)
	defer discoverTicker.Stop()
	snapshotTicker := time.NewTicker(c.cfg.Watcher.SnapshotInterval)
	defer snapshotTicker.Stop()

	c.discover(ctx)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-discoverTicker.C:
			c.discover(ctx)
		case <-snapshotTicker.C:
			c.checkpointAll()
		}
	}
}

func (c *Collector) discover(ctx context.Context) {
	root := c.cfg.Watcher.SessionRoot
	if root == "" {
		root = watcher.DefaultSessionRoot()
	}
	files, err := watcher.DiscoverSessions(root, c.cfg.Watcher.DiscoverWindow)
	if err != nil {
		log.Printf("[collector] discovery error: %v", err)
		return
	}

	live := watcher.LiveWorkingDirs()
	seen := make(map[string]bool, len(files))

	for _, sf := range files {
		seen[sf.SessionID] = true

		c.mu.Lock()
		t, exists := c.sessions[sf.SessionID]
		if exists {
			t.lastSeen = time.Now()
			c.mu.Unlock()
			continue
		}
		c.mu.Unlock()

		c.track(ctx, sf, live[sf.WorkingDir])
	}

	c.retireStale(seen)
}

// track builds the pipeline for a newly discovered session: try the
// checkpoint first, seek past restored bytes on success, replay from the
// start otherwise.
func (c *Collector) track(ctx context.Context, sf watcher.SessionFile, isLive bool) {
	agg := aggregator.New()
	mgr := snapshot.NewManager(c.store, agg)

	t := &tracked{
		id:       sf.SessionID,
		provider: c.provider.Name(),
		agg:      agg,
		snaps:    mgr,
		lastSeen: time.Now(),
	}

	handler := func(ev *event.Event) {
		agg.ProcessEvent(ev)
		if c.onUpdate != nil {
			c.onUpdate(sf.SessionID)
		}
	}
	t.tailer = watcher.NewTailer(sf.Path, c.provider, c.cfg.Watcher.PollInterval, handler)

	replay := true
	if pos, ok := mgr.Restore(sf.SessionID, c.provider.Name(), t.tailer.SourceSize()); ok {
		t.tailer.SeekTo(pos)
		replay = false
	} else {
		agg.SetSession(sf.SessionID, c.provider.Name())
	}

	c.mu.Lock()
	c.sessions[sf.SessionID] = t
	c.order = append(c.order, sf.SessionID)
	c.mu.Unlock()

	mode := "replay"
	if !replay {
		mode = "resume"
	}
	if isLive {
		mode += "+live"
	}
	log.Printf("[collector] tracking %s (%s, offset=%d)", sf.SessionID, mode, t.tailer.Position())
	t.tailer.Start(ctx, replay && t.tailer.Position() == 0)
}

// retireStale tears down sessions whose files fell out of the discover
// window. The order is a hard barrier: stop the tailer so no further
// events land, persist the final state, then reset the aggregator.
func (c *Collector) retireStale(seen map[string]bool) {
	c.mu.Lock()
	var stale []*tracked
	for id, t := range c.sessions {
		if t.tailer == nil || seen[id] {
			continue
		}
		stale = append(stale, t)
		delete(c.sessions, id)
		for i, existing := range c.order {
			if existing == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()

	if len(stale) == 0 {
		return
	}

	retired := make([]string, 0, len(stale))
	for _, t := range stale {
		t.tailer.Stop()
		t.snaps.Persist(t.tailer.Position(), t.tailer.SourceSize())
		t.agg.Reset()
		retired = append(retired, t.id)
		log.Printf("[collector] retired %s", t.id)
	}
	if c.onRetire != nil {
		c.onRetire(retired)
	}
}

func (c *Collector) checkpointAll() {
	c.mu.RLock()
	tracked := make([]*tracked, 0, len(c.sessions))
	for _, t := range c.sessions {
		if t.tailer != nil {
			tracked = append(tracked, t)
		}
	}
	c.mu.RUnlock()

	for _, t := range tracked {
		t.snaps.Persist(t.tailer.Position(), t.tailer.SourceSize())
	}
}

func (c *Collector) shutdown() {
	c.mu.Lock()
	all := make([]*tracked, 0, len(c.sessions))
	for _, t := range c.sessions {
		all = append(all, t)
	}
	c.mu.Unlock()

	for _, t := range all {
		if t.tailer == nil {
			continue
		}
		t.tailer.Stop()
		t.snaps.Persist(t.tailer.Position(), t.tailer.SourceSize())
	}
	log.Printf("[collector] stopped (%d sessions checkpointed)", len(all))
}
