package aggregator

import (
	"time"

	"github.com/agentlens/backend/internal/event"
)

// Totals holds the monotonically accumulating token and cost counters.
// They never decrease except on a full Reset.
type Totals struct {
	InputTokens      int     `json:"inputTokens"`
	OutputTokens     int     `json:"outputTokens"`
	CacheReadTokens  int     `json:"cacheReadTokens"`
	CacheWriteTokens int     `json:"cacheWriteTokens"`
	Cost             float64 `json:"cost"`
}

// ToolUsage is the per-tool call record. Pending counts calls still waiting
// for a matching result and never goes negative.
type ToolUsage struct {
	Calls    int       `json:"calls"`
	Pending  int       `json:"pending"`
	LastCall time.Time `json:"lastCall"`
}

// ModelUsage is the per-model usage record.
type ModelUsage struct {
	Calls  int     `json:"calls"`
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// TaskStatus is the stored lifecycle state of a task. "deleted" is a
// transition, not a stored state: it removes the task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	taskDeleted    TaskStatus = "deleted"
)

// Task is one node of the task dependency graph, keyed by the
// provider-assigned task id.
type Task struct {
	ID           string     `json:"id"`
	Subject      string     `json:"subject"`
	ActiveForm   string     `json:"activeForm,omitempty"`
	Status       TaskStatus `json:"status"`
	BlockedBy    []string   `json:"blockedBy,omitempty"`
	Blocks       []string   `json:"blocks,omitempty"`
	SubagentType string     `json:"subagentType,omitempty"`
	GoalGate     bool       `json:"goalGate,omitempty"`
	ToolCalls    int        `json:"toolCalls"` // incremented only while in_progress
}

// SubagentStatus is the lifecycle state of a spawned subagent.
type SubagentStatus string

const (
	SubagentRunning   SubagentStatus = "running"
	SubagentCompleted SubagentStatus = "completed"
)

// Subagent tracks one subagent spawn, keyed by the spawning tool call's
// correlation id. Never deleted within a session.
type Subagent struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	AgentType   string         `json:"agentType,omitempty"`
	SpawnedAt   time.Time      `json:"spawnedAt"`
	Status      SubagentStatus `json:"status"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	// Duration is completion − spawn, set only when completion ≥ spawn.
	Duration time.Duration `json:"duration,omitempty"`
	// Elapsed is recomputed at Metrics() time for running subagents.
	Elapsed time.Duration `json:"elapsed,omitempty"`
	// Parallel is true when this subagent's active interval overlaps any
	// other subagent's. Recomputed at Metrics() time.
	Parallel bool `json:"parallel,omitempty"`
}

func (s Subagent) clone() Subagent {
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

// Compaction is one logical context-compaction event.
type Compaction struct {
	Timestamp       time.Time `json:"timestamp"`
	ContextBefore   int       `json:"contextBefore"`
	ContextAfter    int       `json:"contextAfter"`
	TokensReclaimed int       `json:"tokensReclaimed"`
}

// Attribution buckets estimated token mass by content category.
type Attribution struct {
	SystemPrompt       int `json:"systemPrompt"`
	UserMessages       int `json:"userMessages"`
	AssistantResponses int `json:"assistantResponses"`
	ToolInputs         int `json:"toolInputs"`
	ToolOutputs        int `json:"toolOutputs"`
	Thinking           int `json:"thinking"`
	Other              int `json:"other"`
}

// BurnSample is one point of the sliding-window token-rate series.
type BurnSample struct {
	Timestamp       time.Time `json:"timestamp"`
	TokensPerMinute float64   `json:"tokensPerMinute"`
}

// PlanStep is one structured step of an extracted execution plan.
type PlanStep struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	Phase       string        `json:"phase,omitempty"`
	Complexity  string        `json:"complexity,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Tokens      int           `json:"tokens,omitempty"`
	ToolCalls   int           `json:"toolCalls,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Plan is the latest structured execution plan produced by the extractor.
// The aggregator stores it verbatim and shallow-copies it into snapshots.
type Plan struct {
	Title          string     `json:"title"`
	Steps          []PlanStep `json:"steps"`
	CompletionRate float64    `json:"completionRate,omitempty"`
	Source         string     `json:"source,omitempty"`
}

func (p *Plan) clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Steps = make([]PlanStep, len(p.Steps))
	copy(c.Steps, p.Steps)
	return &c
}

// TimelineEntry is one display-ready row of the bounded event timeline.
type TimelineEntry struct {
	Kind      string    `json:"kind"` // matches event.Type names, plus "compaction"
	Timestamp time.Time `json:"timestamp"`
	Tool      string    `json:"tool,omitempty"`
	Model     string    `json:"model,omitempty"`
	Summary   string    `json:"summary,omitempty"`
}

// TallyEntry is one row of an insertion-ordered tally (files, urls,
// directories, commands).
type TallyEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// QuotaState mirrors the most recent quota poll.
type QuotaState struct {
	Used     int       `json:"used"`
	Limit    int       `json:"limit"`
	ResetsAt time.Time `json:"resetsAt"`
	Window   string    `json:"window,omitempty"`
}

// UpdateInfo mirrors the most recent update-check result.
type UpdateInfo struct {
	Current   string `json:"current"`
	Latest    string `json:"latest"`
	Available bool   `json:"available"`
}

// MetricsSnapshot is the immutable projection returned by Metrics(). All
// fields are fully computed; consumers need no further derivation.
type MetricsSnapshot struct {
	SessionID  string `json:"sessionId,omitempty"`
	Provider   string `json:"provider,omitempty"`
	EventCount int    `json:"eventCount"`

	Totals Totals `json:"totals"`

	Tools      []string              `json:"tools"` // insertion order
	ToolUsage  map[string]ToolUsage  `json:"toolUsage"`
	Models     []string              `json:"models"`
	ModelUsage map[string]ModelUsage `json:"modelUsage"`

	Tasks     []Task     `json:"tasks"` // creation order
	Subagents []Subagent `json:"subagents"`

	Compactions []Compaction    `json:"compactions"`
	ContextSize int             `json:"contextSize"` // last observed total context
	Attribution Attribution     `json:"attribution"`
	BurnRate    float64         `json:"burnRate"` // current tokens/minute
	BurnHistory []BurnSample    `json:"burnHistory"`
	Plan        *Plan           `json:"plan,omitempty"`
	Timeline    []TimelineEntry `json:"timeline"`

	Files       []TallyEntry `json:"files"`
	URLs        []TallyEntry `json:"urls"`
	Directories []TallyEntry `json:"directories"`
	Commands    []TallyEntry `json:"commands"`

	Quota      *QuotaState            `json:"quota,omitempty"`
	RateLimit  *event.RateLimitReport `json:"rateLimit,omitempty"`
	UpdateInfo *UpdateInfo            `json:"updateInfo,omitempty"`
}
