package aggregator

import (
	"strings"

	"github.com/agentlens/backend/internal/event"
)

// systemReminderMarkers identify injected system content inside user turns.
var systemReminderMarkers = []string{"<system-reminder>", "system-reminder", "<system_warning>"}

// attributionTracker buckets estimated token mass by content category.
// Estimates are text length / 4, rounded up.
type attributionTracker struct {
	attr Attribution
}

func newAttributionTracker() *attributionTracker {
	return &attributionTracker{}
}

// EstimateTokens approximates the token count of text as ceil(len/4).
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

func (a *attributionTracker) observe(ev *event.Event) {
	switch ev.Type {
	case event.User:
		a.observeUser(ev)
	case event.Assistant:
		a.observeAssistant(ev)
	case event.ToolUse:
		// Events fanned out of a user/assistant turn carry the same
		// payload as the parent's content blocks; the parent owns them.
		if !ev.Nested {
			a.attr.ToolInputs += EstimateTokens(ev.RichestText())
		}
	case event.ToolResult:
		if !ev.Nested {
			a.attr.ToolOutputs += EstimateTokens(ev.RichestText())
		}
	case event.Summary:
		a.attr.Other += EstimateTokens(ev.RichestText())
	}
}

func (a *attributionTracker) observeUser(ev *event.Event) {
	if len(ev.Content) == 0 {
		// Bare string or missing content: classify via the same
		// system-reminder heuristic used for text blocks.
		a.classifyUserText(ev.Text)
		return
	}
	for _, block := range ev.Content {
		switch block.BlockType {
		case "tool_result":
			a.attr.ToolOutputs += EstimateTokens(block.Text)
		case "text":
			a.classifyUserText(block.Text)
		default:
			a.attr.UserMessages += EstimateTokens(block.Text)
		}
	}
}

func (a *attributionTracker) classifyUserText(text string) {
	if isSystemReminder(text) {
		a.attr.SystemPrompt += EstimateTokens(text)
	} else {
		a.attr.UserMessages += EstimateTokens(text)
	}
}

func (a *attributionTracker) observeAssistant(ev *event.Event) {
	if len(ev.Content) == 0 {
		a.attr.AssistantResponses += EstimateTokens(ev.Text)
		return
	}
	for _, block := range ev.Content {
		switch block.BlockType {
		case "thinking":
			a.attr.Thinking += EstimateTokens(block.Text)
		case "tool_use":
			text := string(block.Input)
			if text == "" {
				text = block.Text
			}
			a.attr.ToolInputs += EstimateTokens(text)
		default:
			a.attr.AssistantResponses += EstimateTokens(block.Text)
		}
	}
}

func isSystemReminder(text string) bool {
	for _, marker := range systemReminderMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func (a *attributionTracker) snapshot() Attribution {
	return a.attr
}

func (a *attributionTracker) reset() {
	a.attr = Attribution{}
}
