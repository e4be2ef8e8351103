package aggregator

import (
	"time"

	"github.com/agentlens/backend/internal/event"
)

// usageTracker maintains per-tool and per-model usage records. Both keyed
// collections preserve insertion order for display.
type usageTracker struct {
	tools     map[string]*ToolUsage
	toolOrder []string

	models     map[string]*ModelUsage
	modelOrder []string

	// openCalls maps a tool call's correlation id to its tool name so a
	// later result can decrement the right pending counter.
	openCalls map[string]string
}

func newUsageTracker() *usageTracker {
	return &usageTracker{
		tools:     make(map[string]*ToolUsage),
		models:    make(map[string]*ModelUsage),
		openCalls: make(map[string]string),
	}
}

func (u *usageTracker) observe(ev *event.Event) {
	switch ev.Type {
	case event.ToolUse:
		if ev.Tool != "" {
			u.recordCall(ev.Tool, ev.Timestamp)
			if ev.ToolUseID != "" {
				u.openCalls[ev.ToolUseID] = ev.Tool
			}
		}
	case event.ToolResult:
		u.resolveCall(ev.ToolUseID)
	}

	if ev.Model != "" {
		u.recordModel(ev)
	}
}

func (u *usageTracker) recordCall(tool string, at time.Time) {
	tu, ok := u.tools[tool]
	if !ok {
		tu = &ToolUsage{}
		u.tools[tool] = tu
		u.toolOrder = append(u.toolOrder, tool)
	}
	tu.Calls++
	tu.Pending++
	if at.After(tu.LastCall) {
		tu.LastCall = at
	}
}

// resolveCall decrements the pending counter for the tool that opened the
// given correlation id. Unknown ids are ignored; pending never goes negative.
func (u *usageTracker) resolveCall(toolUseID string) {
	if toolUseID == "" {
		return
	}
	tool, ok := u.openCalls[toolUseID]
	if !ok {
		return
	}
	delete(u.openCalls, toolUseID)
	if tu, ok := u.tools[tool]; ok && tu.Pending > 0 {
		tu.Pending--
	}
}

func (u *usageTracker) recordModel(ev *event.Event) {
	mu, ok := u.models[ev.Model]
	if !ok {
		mu = &ModelUsage{}
		u.models[ev.Model] = mu
		u.modelOrder = append(u.modelOrder, ev.Model)
	}
	mu.Calls++
	if ev.Usage != nil {
		mu.Tokens += ev.Usage.InputTokens + ev.Usage.OutputTokens
	}
	mu.Cost += ev.Cost
}

func (u *usageTracker) reset() {
	u.tools = make(map[string]*ToolUsage)
	u.toolOrder = nil
	u.models = make(map[string]*ModelUsage)
	u.modelOrder = nil
	u.openCalls = make(map[string]string)
}
