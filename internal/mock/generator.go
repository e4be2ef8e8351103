// Package mock drives registered aggregators with synthetic event streams
// for frontend development without live agent sessions.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/agentlens/backend/internal/collector"
	"github.com/agentlens/backend/internal/event"
)

type mockSession struct {
	id            string
	model         string
	tokensPerTick int
	pattern       string
	maxTokens     int
	tools         []string
	toolIdx       int
	completed     bool
	tokensUsed    int
	subagentDefs  []mockSubagentDef
	taskAt        int
	compactAt     int
	openToolID    string
	nextTaskID    int
}

type mockSubagentDef struct {
	spawnTick int // tick when the subagent appears
	endTick   int // tick when it completes (0 = lives until parent completes)
	toolUseID string
}

func NewGenerator(col *collector.Collector, onUpdate collector.UpdateFunc) *Generator {
	return &Generator{
		collector: col,
		onUpdate:  onUpdate,
	}
}

type Generator struct {
	collector *collector.Collector
	onUpdate  collector.UpdateFunc
	sessions  []*mockSession
	aggs      map[string]*sessionFeed
}

type sessionFeed struct {
	process func(*event.Event)
}

func (g *Generator) Start(ctx context.Context) {
	g.setup()
	go g.run(ctx)
}

func (g *Generator) setup() {
	g.sessions = []*mockSession{
		{
			id: "mock-opus-refactor", model: "claude-opus-4-5-20251101",
			tokensPerTick: 1200, pattern: "steady", maxTokens: 180000,
			tools:  []string{"Read", "Grep", "Edit", "Write", "Bash", "Edit", "Read", "Write"},
			taskAt: 5, compactAt: 60,
			subagentDefs: []mockSubagentDef{
				{spawnTick: 8, endTick: 30},
				{spawnTick: 12, endTick: 0},
			},
		},
		{
			id: "mock-sonnet-tests", model: "claude-sonnet-4-5-20250929",
			tokensPerTick: 3500, pattern: "burst", maxTokens: 140000,
			tools:  []string{"Read", "Write", "Bash", "Bash", "Write", "Bash"},
			taskAt: 3,
		},
		{
			id: "mock-opus-debug", model: "claude-opus-4-5-20251101",
			tokensPerTick: 800, pattern: "stall", maxTokens: 120000,
			tools: []string{"Read", "Grep", "Grep", "Read", "Bash"},
		},
	}

	g.aggs = make(map[string]*sessionFeed, len(g.sessions))
	for _, ms := range g.sessions {
		agg := g.collector.Register(ms.id, "claude")
		g.aggs[ms.id] = &sessionFeed{process: func(ev *event.Event) {
			agg.ProcessEvent(ev)
		}}
	}
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			for _, ms := range g.sessions {
				if ms.completed {
					continue
				}
				g.advance(ms, tick)
				if g.onUpdate != nil {
					g.onUpdate(ms.id)
				}
			}
		}
	}
}

func (g *Generator) advance(ms *mockSession, tick int) {
	feed := g.aggs[ms.id]
	now := time.Now()

	switch ms.pattern {
	case "stall":
		// Work for 40 ticks, idle for 30.
		if tick%70 >= 40 {
			return
		}
	case "burst":
		if tick%8 >= 3 {
			g.emitAssistantText(feed, ms, now, "Thinking through the failing tests.")
			return
		}
	}

	if ms.taskAt > 0 && tick == ms.taskAt {
		g.emitTaskCreate(feed, ms, now)
	}

	for i := range ms.subagentDefs {
		def := &ms.subagentDefs[i]
		switch {
		case tick == def.spawnTick:
			def.toolUseID = "toolu_" + uuid.NewString()
			feed.process(&event.Event{
				Provider: "claude", Type: event.ToolUse, Timestamp: now,
				Tool: "Task", ToolUseID: def.toolUseID,
				Raw: json.RawMessage(`{"description":"explore the codebase","subagent_type":"general-purpose"}`),
			})
		case def.endTick > 0 && tick == def.endTick:
			feed.process(&event.Event{
				Provider: "claude", Type: event.ToolResult, Timestamp: now,
				ToolUseID: def.toolUseID, Text: "Exploration complete.",
			})
		}
	}

	if ms.compactAt > 0 && tick == ms.compactAt {
		feed.process(&event.Event{
			Provider: "claude", Type: event.Summary, Timestamp: now,
			Summary: "Conversation compacted to continue within the context window.",
		})
	}

	// Alternate tool calls with plain assistant turns, resolving the
	// previous call before issuing the next one.
	if ms.openToolID != "" {
		feed.process(&event.Event{
			Provider: "claude", Type: event.ToolResult, Timestamp: now,
			ToolUseID: ms.openToolID, Text: "ok",
		})
		ms.openToolID = ""
	}

	if tick%3 == 0 {
		tool := ms.tools[ms.toolIdx%len(ms.tools)]
		ms.toolIdx++
		ms.openToolID = "toolu_" + uuid.NewString()
		feed.process(&event.Event{
			Provider: "claude", Type: event.ToolUse, Timestamp: now,
			Tool: tool, ToolUseID: ms.openToolID,
			Raw: json.RawMessage(`{"file_path":"/home/user/project/main.go"}`),
		})
	} else {
		g.emitAssistantText(feed, ms, now, "Working through the change.")
	}

	if ms.tokensUsed >= ms.maxTokens {
		ms.completed = true
	}
}

func (g *Generator) emitAssistantText(feed *sessionFeed, ms *mockSession, now time.Time, text string) {
	jitter := rand.Intn(400) - 200
	growth := ms.tokensPerTick + jitter
	if growth < 0 {
		growth = 0
	}
	ms.tokensUsed += growth

	feed.process(&event.Event{
		Provider: "claude", Type: event.Assistant, Timestamp: now,
		Model: ms.model,
		Usage: &event.TokenUsage{
			InputTokens:     200,
			OutputTokens:    growth,
			CacheReadTokens: ms.tokensUsed,
		},
		Cost:    float64(growth) * 0.000015,
		Content: []event.ContentBlock{{BlockType: "text", Text: text}},
	})
}

// emitTaskCreate exercises the two-phase task flow: the create call stages
// the task, the result's task number materializes it.
func (g *Generator) emitTaskCreate(feed *sessionFeed, ms *mockSession, now time.Time) {
	ms.nextTaskID++
	id := "toolu_" + uuid.NewString()
	feed.process(&event.Event{
		Provider: "claude", Type: event.ToolUse, Timestamp: now,
		Tool: "TaskCreate", ToolUseID: id,
		Raw: json.RawMessage(`{"subject":"Refactor the session watcher","activeForm":"Refactoring the session watcher"}`),
	})
	feed.process(&event.Event{
		Provider: "claude", Type: event.ToolResult, Timestamp: now,
		ToolUseID: id, Text: fmt.Sprintf("Created Task #%d", ms.nextTaskID),
	})

	id = "toolu_" + uuid.NewString()
	feed.process(&event.Event{
		Provider: "claude", Type: event.ToolUse, Timestamp: now,
		Tool: "TaskUpdate", ToolUseID: id,
		Raw: json.RawMessage(fmt.Sprintf(`{"taskId":"%d","status":"in_progress"}`, ms.nextTaskID)),
	})
	feed.process(&event.Event{
		Provider: "claude", Type: event.ToolResult, Timestamp: now,
		ToolUseID: id, Text: "Updated",
	})
}
