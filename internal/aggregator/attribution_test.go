package aggregator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/agentlens/backend/internal/event"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
		{strings.Repeat("x", 401), 101}, // rounds up
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestAttributionAssistantBlocks(t *testing.T) {
	tr := newAttributionTracker()

	tr.observe(&event.Event{
		Type: event.Assistant,
		Content: []event.ContentBlock{
			{BlockType: "text", Text: strings.Repeat("r", 40)},
			{BlockType: "thinking", Text: strings.Repeat("t", 80)},
			{BlockType: "tool_use", Input: json.RawMessage(strings.Repeat("i", 20))},
		},
	})

	attr := tr.snapshot()
	if attr.AssistantResponses != 10 {
		t.Errorf("AssistantResponses = %d, want 10", attr.AssistantResponses)
	}
	if attr.Thinking != 20 {
		t.Errorf("Thinking = %d, want 20", attr.Thinking)
	}
	if attr.ToolInputs != 5 {
		t.Errorf("ToolInputs = %d, want 5", attr.ToolInputs)
	}
}

func TestAttributionUserBlocks(t *testing.T) {
	tr := newAttributionTracker()

	tr.observe(&event.Event{
		Type: event.User,
		Content: []event.ContentBlock{
			{BlockType: "text", Text: strings.Repeat("u", 40)},
			{BlockType: "text", Text: "<system-reminder>injected housekeeping</system-reminder>"},
			{BlockType: "tool_result", Text: strings.Repeat("o", 200)},
		},
	})

	attr := tr.snapshot()
	if attr.UserMessages != 10 {
		t.Errorf("UserMessages = %d, want 10", attr.UserMessages)
	}
	if attr.SystemPrompt == 0 {
		t.Error("system-reminder block should land in SystemPrompt")
	}
	if attr.ToolOutputs != 50 {
		t.Errorf("ToolOutputs = %d, want 50", attr.ToolOutputs)
	}
}

func TestAttributionBareUserText(t *testing.T) {
	tr := newAttributionTracker()

	tr.observe(&event.Event{Type: event.User, Text: strings.Repeat("m", 80)})
	tr.observe(&event.Event{Type: event.User, Text: "<system-reminder>note</system-reminder>"})

	attr := tr.snapshot()
	if attr.UserMessages != 20 {
		t.Errorf("UserMessages = %d, want 20", attr.UserMessages)
	}
	if attr.SystemPrompt == 0 {
		t.Error("bare system-reminder text should land in SystemPrompt")
	}
}

func TestAttributionBareToolEvents(t *testing.T) {
	tr := newAttributionTracker()

	tr.observe(&event.Event{
		Type: event.ToolUse,
		Raw:  json.RawMessage(strings.Repeat("a", 40)),
	})
	tr.observe(&event.Event{
		Type: event.ToolResult,
		Text: strings.Repeat("b", 120),
	})
	tr.observe(&event.Event{
		Type:    event.Summary,
		Summary: strings.Repeat("s", 20),
	})

	attr := tr.snapshot()
	if attr.ToolInputs != 10 {
		t.Errorf("ToolInputs = %d, want 10", attr.ToolInputs)
	}
	if attr.ToolOutputs != 30 {
		t.Errorf("ToolOutputs = %d, want 30", attr.ToolOutputs)
	}
	if attr.Other != 5 {
		t.Errorf("Other = %d, want 5", attr.Other)
	}
}

// A tool payload must be attributed once: via the parent turn's content
// block, never again via the tool event fanned out of that turn.
func TestAttributionNestedToolEventsCountOnce(t *testing.T) {
	tr := newAttributionTracker()

	input := json.RawMessage(strings.Repeat("i", 40))
	tr.observe(&event.Event{
		Type: event.Assistant,
		Content: []event.ContentBlock{
			{BlockType: "tool_use", ToolName: "Read", Input: input},
		},
	})
	tr.observe(&event.Event{
		Type:   event.ToolUse,
		Tool:   "Read",
		Raw:    input,
		Nested: true,
	})

	output := strings.Repeat("o", 80)
	tr.observe(&event.Event{
		Type: event.User,
		Content: []event.ContentBlock{
			{BlockType: "tool_result", Text: output},
		},
	})
	tr.observe(&event.Event{
		Type:   event.ToolResult,
		Text:   output,
		Nested: true,
	})

	attr := tr.snapshot()
	if attr.ToolInputs != 10 {
		t.Errorf("ToolInputs = %d, want 10 (single count)", attr.ToolInputs)
	}
	if attr.ToolOutputs != 20 {
		t.Errorf("ToolOutputs = %d, want 20 (single count)", attr.ToolOutputs)
	}
}
