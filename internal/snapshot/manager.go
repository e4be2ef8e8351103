package snapshot

import (
	"log"
	"time"

	"github.com/agentlens/backend/internal/aggregator"
)

// Manager binds an aggregator to the snapshot store and implements the
// persist/restore contract. Persistence failures are logged for operator
// visibility and otherwise ignored: they must never interrupt live
// processing or abort a session switch.
type Manager struct {
	store *Store
	agg   *aggregator.Aggregator
}

func NewManager(store *Store, agg *aggregator.Aggregator) *Manager {
	return &Manager{store: store, agg: agg}
}

// Persist checkpoints the aggregator's current state at the given reader
// position. No-op when the aggregator has no session bound.
func (m *Manager) Persist(position, sourceSize int64) {
	sessionID := m.agg.SessionID()
	if sessionID == "" {
		return
	}

	snap := &Snapshot{
		Version:        Version,
		SessionID:      sessionID,
		ProviderID:     m.agg.Provider(),
		ReaderPosition: position,
		SourceSize:     sourceSize,
		CreatedAt:      time.Now().UTC(),
		State:          m.agg.ExportState(),
	}
	if err := m.store.Save(snap); err != nil {
		log.Printf("[snapshot] save failed for %s: %v", sessionID, err)
	}
}

// Restore attempts to resume from a prior checkpoint. On success it
// restores the aggregator state, binds the session, and returns the stored
// reader position so the caller can seek the tailer past already-processed
// bytes. A missing, foreign-provider, or invalid snapshot is rejected:
// current state is left untouched, the stale snapshot is deleted so the
// next attempt does not re-fail, and ok is false (full replay).
func (m *Manager) Restore(sessionID, providerID string, sourceSize int64) (position int64, ok bool) {
	snap, err := m.store.Load(sessionID)
	if err != nil {
		log.Printf("[snapshot] load failed for %s: %v", sessionID, err)
		m.discard(sessionID)
		return 0, false
	}
	if snap == nil {
		return 0, false
	}
	if snap.ProviderID != providerID {
		log.Printf("[snapshot] provider mismatch for %s: have %s, want %s", sessionID, snap.ProviderID, providerID)
		m.discard(sessionID)
		return 0, false
	}
	if !snap.Valid(sourceSize) {
		log.Printf("[snapshot] stale checkpoint for %s (stored size %d, current %d)", sessionID, snap.SourceSize, sourceSize)
		m.discard(sessionID)
		return 0, false
	}

	m.agg.RestoreState(snap.State)
	m.agg.SetSession(sessionID, providerID)
	log.Printf("[snapshot] restored %s at position %d (%d events)", sessionID, snap.ReaderPosition, snap.State.EventCount)
	return snap.ReaderPosition, true
}

func (m *Manager) discard(sessionID string) {
	if err := m.store.Delete(sessionID); err != nil {
		log.Printf("[snapshot] delete failed for %s: %v", sessionID, err)
	}
}
