package aggregator

import (
	"encoding/json"
	"time"

	"github.com/agentlens/backend/internal/event"
)

// subagentSpawnTool is the tool that launches a subagent. Its correlation id
// keys the subagent record; the matching result completes it.
const subagentSpawnTool = "Task"

// subagentTracker pairs subagent spawns with their completions and derives
// parallelism from interval overlap.
type subagentTracker struct {
	agents map[string]*Subagent
	order  []string
}

func newSubagentTracker() *subagentTracker {
	return &subagentTracker{agents: make(map[string]*Subagent)}
}

// subagentSpawnInput is the payload of a Task tool call.
type subagentSpawnInput struct {
	Description  string `json:"description"`
	SubagentType string `json:"subagent_type"`
}

func (s *subagentTracker) observe(ev *event.Event) {
	switch ev.Type {
	case event.ToolUse:
		if ev.Tool == subagentSpawnTool {
			s.spawn(ev)
		}
	case event.ToolResult:
		s.complete(ev)
	}
}

func (s *subagentTracker) spawn(ev *event.Event) {
	if ev.ToolUseID == "" {
		return
	}
	if _, exists := s.agents[ev.ToolUseID]; exists {
		return
	}

	var in subagentSpawnInput
	if len(ev.Raw) > 0 {
		_ = json.Unmarshal(ev.Raw, &in) // absent fields contribute nothing
	}

	s.agents[ev.ToolUseID] = &Subagent{
		ID:          ev.ToolUseID,
		Description: in.Description,
		AgentType:   in.SubagentType,
		SpawnedAt:   ev.Timestamp,
		Status:      SubagentRunning,
	}
	s.order = append(s.order, ev.ToolUseID)
}

func (s *subagentTracker) complete(ev *event.Event) {
	agent, ok := s.agents[ev.ToolUseID]
	if !ok || agent.Status == SubagentCompleted {
		return
	}
	agent.Status = SubagentCompleted
	completedAt := ev.Timestamp
	agent.CompletedAt = &completedAt
	// Clock skew guard: duration only when completion ≥ spawn.
	if !completedAt.Before(agent.SpawnedAt) {
		agent.Duration = completedAt.Sub(agent.SpawnedAt)
	}
}

// snapshot returns deep copies with Parallel and Elapsed recomputed against
// now. Intervals are half-open [spawn, completion-or-now).
func (s *subagentTracker) snapshot(now time.Time) []Subagent {
	out := make([]Subagent, 0, len(s.order))
	for _, id := range s.order {
		a := s.agents[id].clone()
		if a.Status == SubagentRunning && !a.SpawnedAt.IsZero() && now.After(a.SpawnedAt) {
			a.Elapsed = now.Sub(a.SpawnedAt)
		}
		out = append(out, a)
	}

	// Pairwise overlap scan. n is dozens at most per session.
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if intervalsOverlap(&out[i], &out[j], now) {
				out[i].Parallel = true
				out[j].Parallel = true
			}
		}
	}
	return out
}

func intervalsOverlap(a, b *Subagent, now time.Time) bool {
	aStart, aEnd, ok := activeInterval(a, now)
	if !ok {
		return false
	}
	bStart, bEnd, ok := activeInterval(b, now)
	if !ok {
		return false
	}
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// activeInterval returns the subagent's [start, end) interval, using now as
// the end for still-running agents. Invalid timestamps disqualify the agent
// from overlap detection rather than crashing it.
func activeInterval(a *Subagent, now time.Time) (time.Time, time.Time, bool) {
	if a.SpawnedAt.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	end := now
	if a.CompletedAt != nil {
		end = *a.CompletedAt
	}
	if end.Before(a.SpawnedAt) {
		return time.Time{}, time.Time{}, false
	}
	return a.SpawnedAt, end, true
}

func (s *subagentTracker) reset() {
	s.agents = make(map[string]*Subagent)
	s.order = nil
}
