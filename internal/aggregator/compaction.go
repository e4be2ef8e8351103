package aggregator

import (
	"fmt"
	"time"

	"github.com/agentlens/backend/internal/event"
)

// dropThreshold is the fractional context-size drop treated as evidence of
// a compaction when no explicit marker announced one.
const dropThreshold = 0.20

// compactionDetector merges two independent compaction signals into one
// logical event stream: explicit summary markers and heuristic context-size
// drops. A drop observed while an explicit marker is pending patches the
// marker's event in place instead of logging a second one.
type compactionDetector struct {
	events      []Compaction
	prevContext int
	pending     bool // summary marker seen, end-state not yet observed

	// onLog and onPatch let the owner mirror compactions into the
	// timeline: onLog appends a synthetic entry, onPatch rewrites the
	// most recent one.
	onLog   func(c Compaction)
	onPatch func(c Compaction)
}

func newCompactionDetector() *compactionDetector {
	return &compactionDetector{}
}

func (d *compactionDetector) observe(ev *event.Event) {
	if ev.Type == event.Summary {
		d.logExplicit(ev.Timestamp)
		return
	}
	if ev.Usage == nil {
		return
	}
	ctx := ev.Usage.TotalContext()
	if ctx <= 0 {
		return
	}
	d.observeContext(ctx, ev.Timestamp)
}

// logExplicit records a compaction announced by a summary marker. The
// post-compaction context size is unknown at this point.
func (d *compactionDetector) logExplicit(at time.Time) {
	c := Compaction{
		Timestamp:       at,
		ContextBefore:   d.prevContext,
		ContextAfter:    0,
		TokensReclaimed: d.prevContext,
	}
	d.events = append(d.events, c)
	d.pending = true
	if d.onLog != nil {
		d.onLog(c)
	}
}

func (d *compactionDetector) observeContext(ctx int, at time.Time) {
	prev := d.prevContext
	d.prevContext = ctx

	if prev <= 0 {
		return
	}
	dropped := float64(prev-ctx) / float64(prev)
	if dropped <= dropThreshold {
		// Context grew or shrank within tolerance; a pending explicit
		// marker stays pending until a qualifying drop arrives.
		return
	}

	if d.pending && len(d.events) > 0 {
		// End-state of the explicit compaction: patch, don't duplicate.
		last := &d.events[len(d.events)-1]
		last.ContextAfter = ctx
		last.TokensReclaimed = reclaimed(last.ContextBefore, ctx)
		d.pending = false
		if d.onPatch != nil {
			d.onPatch(*last)
		}
		return
	}

	c := Compaction{
		Timestamp:       at,
		ContextBefore:   prev,
		ContextAfter:    ctx,
		TokensReclaimed: reclaimed(prev, ctx),
	}
	d.events = append(d.events, c)
	if d.onLog != nil {
		d.onLog(c)
	}
}

func reclaimed(before, after int) int {
	if before <= after {
		return 0
	}
	return before - after
}

func (d *compactionDetector) snapshot() []Compaction {
	return append([]Compaction(nil), d.events...)
}

func (d *compactionDetector) reset() {
	d.events = nil
	d.prevContext = 0
	d.pending = false
}

// compactionSummary renders the human-readable timeline text for a
// compaction event.
func compactionSummary(c Compaction) string {
	return fmt.Sprintf("Context compacted: %s → %s (%s reclaimed)",
		FormatTokens(c.ContextBefore), FormatTokens(c.ContextAfter), FormatTokens(c.TokensReclaimed))
}
