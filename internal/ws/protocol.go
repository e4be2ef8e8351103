package ws

import (
	"time"

	"github.com/agentlens/backend/internal/aggregator"
)

type MessageType string

const (
	MsgSnapshot   MessageType = "snapshot"
	MsgDelta      MessageType = "delta"
	MsgCompaction MessageType = "compaction"
	MsgError      MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SessionMetrics pairs a session id with its full metrics snapshot.
type SessionMetrics struct {
	SessionID string                      `json:"sessionId"`
	Metrics   *aggregator.MetricsSnapshot `json:"metrics"`
}

// SnapshotPayload carries the metrics of every tracked session.
type SnapshotPayload struct {
	Sessions []SessionMetrics `json:"sessions"`
}

// DeltaPayload carries the sessions whose metrics changed since the last
// flush.
type DeltaPayload struct {
	Updates []SessionMetrics `json:"updates"`
	Removed []string         `json:"removed,omitempty"`
}

// CompactionPayload announces a newly detected context compaction.
type CompactionPayload struct {
	SessionID       string    `json:"sessionId"`
	Timestamp       time.Time `json:"timestamp"`
	ContextBefore   int       `json:"contextBefore"`
	ContextAfter    int       `json:"contextAfter"`
	TokensReclaimed int       `json:"tokensReclaimed"`
}
