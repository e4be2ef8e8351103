package aggregator

import (
	"sync"
	"time"

	"github.com/agentlens/backend/internal/event"
)

// timelineCap bounds the display timeline; oldest entries evict first.
const timelineCap = 200

// timelineRing is a fixed-capacity ring buffer of timeline entries.
type timelineRing struct {
	buf   []TimelineEntry
	start int
	count int
}

func newTimelineRing() *timelineRing {
	return &timelineRing{buf: make([]TimelineEntry, timelineCap)}
}

func (r *timelineRing) push(e TimelineEntry) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

// patchLast rewrites the most recent entry matching kind. Returns false if
// no such entry exists.
func (r *timelineRing) patchLast(kind string, fn func(*TimelineEntry)) bool {
	for i := r.count - 1; i >= 0; i-- {
		e := &r.buf[(r.start+i)%len(r.buf)]
		if e.Kind == kind {
			fn(e)
			return true
		}
	}
	return false
}

func (r *timelineRing) entries() []TimelineEntry {
	out := make([]TimelineEntry, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

func (r *timelineRing) restore(entries []TimelineEntry) {
	r.buf = make([]TimelineEntry, timelineCap)
	r.start = 0
	r.count = 0
	if len(entries) > timelineCap {
		entries = entries[len(entries)-timelineCap:]
	}
	for _, e := range entries {
		r.push(e)
	}
}

// Aggregator is the incremental event-aggregation engine. It consumes one
// fully-ordered event stream and maintains every derived metric the
// rendering and export layers display.
//
// All methods serialize on an internal mutex: the watcher callback, the
// periodic quota/update pollers, and Metrics readers may run on different
// goroutines, but no two mutations ever interleave.
type Aggregator struct {
	mu sync.Mutex

	sessionID string
	provider  string

	eventCount int
	totals     Totals

	usage       *usageTracker
	tasks       *taskTracker
	subagents   *subagentTracker
	compactions *compactionDetector
	attribution *attributionTracker
	burn        *burnSampler
	work        *workTracker

	extractor *PlanExtractor
	plan      *Plan

	timeline *timelineRing

	quota      *QuotaState
	rateLimit  *event.RateLimitReport
	updateInfo *UpdateInfo

	// now is swappable for tests.
	now func() time.Time
}

func New() *Aggregator {
	a := &Aggregator{
		usage:       newUsageTracker(),
		tasks:       newTaskTracker(),
		subagents:   newSubagentTracker(),
		compactions: newCompactionDetector(),
		attribution: newAttributionTracker(),
		burn:        newBurnSampler(),
		work:        newWorkTracker(),
		extractor:   NewPlanExtractor(),
		timeline:    newTimelineRing(),
		now:         time.Now,
	}
	a.compactions.onLog = func(c Compaction) {
		a.timeline.push(TimelineEntry{
			Kind:      "compaction",
			Timestamp: c.Timestamp,
			Summary:   compactionSummary(c),
		})
	}
	a.compactions.onPatch = func(c Compaction) {
		a.timeline.patchLast("compaction", func(e *TimelineEntry) {
			e.Summary = compactionSummary(c)
		})
	}
	return a
}

// SetSession records the identity of the session this aggregator is bound
// to. The snapshot manager keys checkpoints by it.
func (a *Aggregator) SetSession(sessionID, provider string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionID = sessionID
	a.provider = provider
}

// SessionID returns the bound session id, or "" if none.
func (a *Aggregator) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Provider returns the provider id of the bound session, or "" if none.
func (a *Aggregator) Provider() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.provider
}

// ProcessEvent folds one event into every sub-tracker. It is total:
// unrecognized or partially-populated events are tolerated, and each guard
// simply contributes nothing when its fields are absent.
func (a *Aggregator) ProcessEvent(ev *event.Event) {
	if ev == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.eventCount++
	a.timeline.push(timelineEntryFor(ev))

	if ev.Usage != nil {
		a.totals.InputTokens += ev.Usage.InputTokens
		a.totals.OutputTokens += ev.Usage.OutputTokens
		a.totals.CacheReadTokens += ev.Usage.CacheReadTokens
		a.totals.CacheWriteTokens += ev.Usage.CacheWriteTokens
	}
	a.totals.Cost += ev.Cost

	a.usage.observe(ev)
	a.tasks.observe(ev)
	a.subagents.observe(ev)
	a.compactions.observe(ev)
	a.attribution.observe(ev)
	a.burn.observe(ev)
	a.work.observe(ev)

	if a.extractor.ProcessEvent(ev) {
		a.plan = a.extractor.Plan().clone()
	}

	if ev.RateLimit != nil {
		rl := *ev.RateLimit
		a.rateLimit = &rl
	}
}

// SetQuota records the most recent quota poll result. Touches state
// disjoint from ProcessEvent but shares its serialization.
func (a *Aggregator) SetQuota(q QuotaState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.quota = &q
}

// SetUpdateInfo records the most recent update-check result.
func (a *Aggregator) SetUpdateInfo(info UpdateInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updateInfo = &info
}

// Metrics returns a consistent, fully-populated snapshot. Wall-clock
// dependent values (running-subagent elapsed time, parallelism against
// still-open intervals) are recomputed against now.
func (a *Aggregator) Metrics() *MetricsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	burnRate, burnHistory := a.burn.snapshot()

	snap := &MetricsSnapshot{
		SessionID:   a.sessionID,
		Provider:    a.provider,
		EventCount:  a.eventCount,
		Totals:      a.totals,
		Tools:       append([]string(nil), a.usage.toolOrder...),
		ToolUsage:   make(map[string]ToolUsage, len(a.usage.tools)),
		Models:      append([]string(nil), a.usage.modelOrder...),
		ModelUsage:  make(map[string]ModelUsage, len(a.usage.models)),
		Tasks:       a.tasks.snapshot(),
		Subagents:   a.subagents.snapshot(now),
		Compactions: a.compactions.snapshot(),
		ContextSize: a.compactions.prevContext,
		Attribution: a.attribution.snapshot(),
		BurnRate:    burnRate,
		BurnHistory: burnHistory,
		Plan:        a.plan.clone(),
		Timeline:    a.timeline.entries(),
		Files:       a.work.files.entries(),
		URLs:        a.work.urls.entries(),
		Directories: a.work.directories.entries(),
		Commands:    a.work.commands.entries(),
	}
	for name, tu := range a.usage.tools {
		snap.ToolUsage[name] = *tu
	}
	for name, mu := range a.usage.models {
		snap.ModelUsage[name] = *mu
	}
	if a.quota != nil {
		q := *a.quota
		snap.Quota = &q
	}
	if a.rateLimit != nil {
		rl := *a.rateLimit
		snap.RateLimit = &rl
	}
	if a.updateInfo != nil {
		u := *a.updateInfo
		snap.UpdateInfo = &u
	}
	return snap
}

// Reset clears every accumulator and sub-tracker to its initial state.
// Used when switching sessions; the session binding itself is cleared too.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sessionID = ""
	a.provider = ""
	a.eventCount = 0
	a.totals = Totals{}
	a.usage.reset()
	a.tasks.reset()
	a.subagents.reset()
	a.compactions.reset()
	a.attribution.reset()
	a.burn.reset()
	a.work.reset()
	a.extractor = NewPlanExtractor()
	a.plan = nil
	a.timeline = newTimelineRing()
	a.quota = nil
	a.rateLimit = nil
	a.updateInfo = nil
}

// timelineEntryFor builds the display row for an event.
func timelineEntryFor(ev *event.Event) TimelineEntry {
	e := TimelineEntry{
		Kind:      ev.Type.String(),
		Timestamp: ev.Timestamp,
		Tool:      ev.Tool,
		Model:     ev.Model,
		Summary:   ev.Summary,
	}
	if e.Summary == "" {
		e.Summary = defaultSummary(ev)
	}
	return e
}

const summaryPreviewLen = 80

func defaultSummary(ev *event.Event) string {
	if ev.Tool != "" {
		return ev.Tool
	}
	text := ev.Text
	if text == "" && len(ev.Content) > 0 {
		text = ev.Content[0].Text
	}
	if len(text) > summaryPreviewLen {
		text = text[:summaryPreviewLen]
	}
	return text
}
