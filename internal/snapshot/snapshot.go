// Package snapshot checkpoints aggregator state to a sidecar store keyed by
// session id, so a restart can resume tailing from a byte offset instead of
// replaying the whole session log.
package snapshot

import (
	"time"

	"github.com/agentlens/backend/internal/aggregator"
)

const (
	// Version is bumped when the schema changes. Older supported versions
	// are migrated on load; anything else is treated as no usable
	// checkpoint.
	Version = 2

	// oldestSupported is the earliest schema version Load can migrate.
	oldestSupported = 1
)

// Snapshot is one point-in-time checkpoint of a session's derived state.
type Snapshot struct {
	Version        int       `json:"version"`
	SessionID      string    `json:"sessionId"`
	ProviderID     string    `json:"providerId"`
	ReaderPosition int64     `json:"readerPosition"`
	SourceSize     int64     `json:"sourceSize"`
	CreatedAt      time.Time `json:"createdAt"`

	State *aggregator.State `json:"state"`
}

// Valid reports whether the snapshot can be restored against a source of
// the given current size. The underlying file may only grow between
// checkpoint and resume; a shrink means the log was rewritten and the
// checkpoint no longer describes it.
func (s *Snapshot) Valid(currentSize int64) bool {
	if s.Version < oldestSupported || s.Version > Version {
		return false
	}
	return s.SourceSize <= currentSize
}

// migrate upgrades an older-version snapshot in place to the current
// schema. Returns false when the version gap cannot be bridged.
func (s *Snapshot) migrate() bool {
	switch s.Version {
	case Version:
		return true
	case 1:
		migrateTimelineV1(s.State)
		s.Version = Version
		return true
	default:
		return false
	}
}

// v1 timeline entries used different kind names and omitted summaries.
var v1KindRenames = map[string]string{
	"message": "user",
	"reply":   "assistant",
	"tool":    "tool_use",
	"result":  "tool_result",
	"compact": "compaction",
}

// migrateTimelineV1 re-normalizes timeline entries written by schema
// version 1: kind names are renamed and missing summaries are backfilled
// from the tool name or the entry kind.
func migrateTimelineV1(st *aggregator.State) {
	if st == nil {
		return
	}
	for i := range st.Timeline {
		e := &st.Timeline[i]
		if renamed, ok := v1KindRenames[e.Kind]; ok {
			e.Kind = renamed
		}
		if e.Summary == "" {
			if e.Tool != "" {
				e.Summary = e.Tool
			} else {
				e.Summary = e.Kind
			}
		}
	}
}
