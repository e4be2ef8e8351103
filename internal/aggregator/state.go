package aggregator

import (
	"time"

	"github.com/agentlens/backend/internal/event"
)

// State is the serializable form of the full aggregator plus the
// consumer-local work tallies. The snapshot codec embeds it verbatim.
type State struct {
	EventCount int    `json:"eventCount"`
	Totals     Totals `json:"totals"`

	ToolOrder  []string              `json:"toolOrder,omitempty"`
	Tools      map[string]ToolUsage  `json:"tools,omitempty"`
	ModelOrder []string              `json:"modelOrder,omitempty"`
	Models     map[string]ModelUsage `json:"models,omitempty"`
	OpenCalls  map[string]string     `json:"openCalls,omitempty"`

	Tasks       []Task                   `json:"tasks,omitempty"`
	StagedTasks map[string]pendingCreate `json:"stagedTasks,omitempty"`

	Subagents []Subagent `json:"subagents,omitempty"`

	Compactions    []Compaction `json:"compactions,omitempty"`
	ContextSize    int          `json:"contextSize,omitempty"`
	PendingSummary bool         `json:"pendingSummary,omitempty"`

	Attribution Attribution `json:"attribution"`

	BurnPoints  []burnPoint  `json:"burnPoints,omitempty"`
	BurnHistory []BurnSample `json:"burnHistory,omitempty"`
	BurnTotal   int          `json:"burnTotal,omitempty"`
	LastSample  time.Time    `json:"lastSample,omitempty"`

	Plan     *Plan           `json:"plan,omitempty"`
	Timeline []TimelineEntry `json:"timeline,omitempty"`

	Quota      *QuotaState            `json:"quota,omitempty"`
	RateLimit  *event.RateLimitReport `json:"rateLimit,omitempty"`
	UpdateInfo *UpdateInfo            `json:"updateInfo,omitempty"`

	Files       []TallyEntry `json:"files,omitempty"`
	URLs        []TallyEntry `json:"urls,omitempty"`
	Directories []TallyEntry `json:"directories,omitempty"`
	Commands    []TallyEntry `json:"commands,omitempty"`
}

// ExportState captures the aggregator's complete state for checkpointing.
func (a *Aggregator) ExportState() *State {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := &State{
		EventCount:     a.eventCount,
		Totals:         a.totals,
		ToolOrder:      append([]string(nil), a.usage.toolOrder...),
		Tools:          make(map[string]ToolUsage, len(a.usage.tools)),
		ModelOrder:     append([]string(nil), a.usage.modelOrder...),
		Models:         make(map[string]ModelUsage, len(a.usage.models)),
		OpenCalls:      make(map[string]string, len(a.usage.openCalls)),
		Tasks:          a.tasks.snapshot(),
		StagedTasks:    make(map[string]pendingCreate, len(a.tasks.staged)),
		Compactions:    a.compactions.snapshot(),
		ContextSize:    a.compactions.prevContext,
		PendingSummary: a.compactions.pending,
		Attribution:    a.attribution.attr,
		BurnPoints:     append([]burnPoint(nil), a.burn.points...),
		BurnHistory:    append([]BurnSample(nil), a.burn.history...),
		BurnTotal:      a.burn.total,
		LastSample:     a.burn.lastSample,
		Plan:           a.plan.clone(),
		Timeline:       a.timeline.entries(),
		Files:          a.work.files.entries(),
		URLs:           a.work.urls.entries(),
		Directories:    a.work.directories.entries(),
		Commands:       a.work.commands.entries(),
	}
	for name, tu := range a.usage.tools {
		st.Tools[name] = *tu
	}
	for name, mu := range a.usage.models {
		st.Models[name] = *mu
	}
	for id, name := range a.usage.openCalls {
		st.OpenCalls[id] = name
	}
	for id, pc := range a.tasks.staged {
		st.StagedTasks[id] = pc
	}
	for _, id := range a.subagents.order {
		st.Subagents = append(st.Subagents, a.subagents.agents[id].clone())
	}
	if a.quota != nil {
		q := *a.quota
		st.Quota = &q
	}
	if a.rateLimit != nil {
		rl := *a.rateLimit
		st.RateLimit = &rl
	}
	if a.updateInfo != nil {
		u := *a.updateInfo
		st.UpdateInfo = &u
	}
	return st
}

// RestoreState replaces the aggregator's state with a previously exported
// checkpoint. Callers Reset first when switching sessions; RestoreState
// itself overwrites everything it touches.
func (a *Aggregator) RestoreState(st *State) {
	if st == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.eventCount = st.EventCount
	a.totals = st.Totals

	a.usage.reset()
	a.usage.toolOrder = append([]string(nil), st.ToolOrder...)
	for name, tu := range st.Tools {
		t := tu
		a.usage.tools[name] = &t
	}
	a.usage.modelOrder = append([]string(nil), st.ModelOrder...)
	for name, mu := range st.Models {
		m := mu
		a.usage.models[name] = &m
	}
	for id, name := range st.OpenCalls {
		a.usage.openCalls[id] = name
	}

	a.tasks.reset()
	for _, task := range st.Tasks {
		t := task
		a.tasks.tasks[t.ID] = &t
		a.tasks.order = append(a.tasks.order, t.ID)
	}
	for id, pc := range st.StagedTasks {
		a.tasks.staged[id] = pc
	}

	a.subagents.reset()
	for _, agent := range st.Subagents {
		sa := agent.clone()
		sa.Parallel = false
		sa.Elapsed = 0
		a.subagents.agents[sa.ID] = &sa
		a.subagents.order = append(a.subagents.order, sa.ID)
	}

	a.compactions.reset()
	a.compactions.events = append([]Compaction(nil), st.Compactions...)
	a.compactions.prevContext = st.ContextSize
	a.compactions.pending = st.PendingSummary

	a.attribution.attr = st.Attribution

	a.burn.reset()
	a.burn.points = append([]burnPoint(nil), st.BurnPoints...)
	a.burn.history = append([]BurnSample(nil), st.BurnHistory...)
	a.burn.total = st.BurnTotal
	a.burn.lastSample = st.LastSample

	a.plan = st.Plan.clone()
	a.timeline.restore(st.Timeline)

	a.work.reset()
	a.work.files.restore(st.Files)
	a.work.urls.restore(st.URLs)
	a.work.directories.restore(st.Directories)
	a.work.commands.restore(st.Commands)

	a.quota = nil
	if st.Quota != nil {
		q := *st.Quota
		a.quota = &q
	}
	a.rateLimit = nil
	if st.RateLimit != nil {
		rl := *st.RateLimit
		a.rateLimit = &rl
	}
	a.updateInfo = nil
	if st.UpdateInfo != nil {
		u := *st.UpdateInfo
		a.updateInfo = &u
	}
}
