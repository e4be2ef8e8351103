package watcher

import (
	"encoding/json"
	"time"

	"github.com/agentlens/backend/internal/event"
)

// Provider normalizes one provider's raw session-log lines into the common
// event model. Implementations are called from a single goroutine (the
// tailer's read loop) and need not be safe for concurrent use.
type Provider interface {
	// Name returns a short lowercase identifier, e.g. "claude". Used as
	// the provider id in snapshots and surfaced for display.
	Name() string

	// Normalize parses one complete log line into zero or more events.
	// Malformed lines yield nil; they are skipped, never fatal.
	Normalize(line []byte) []*event.Event
}

// providerDisplayNames maps provider ids to display names. Compile-time
// table, no runtime mutation.
var providerDisplayNames = map[string]string{
	"claude": "Claude Code",
	"codex":  "Codex CLI",
	"gemini": "Gemini CLI",
}

// DisplayName returns the human-readable name for a provider id, falling
// back to the id itself.
func DisplayName(id string) string {
	if name, ok := providerDisplayNames[id]; ok {
		return name
	}
	return id
}

// claudeEntry is the top-level shape of one Claude Code JSONL line.
type claudeEntry struct {
	Type      string          `json:"type"`
	UUID      string          `json:"uuid"`
	SessionID string          `json:"sessionId"`
	Timestamp string          `json:"timestamp"`
	Summary   string          `json:"summary"`
	CostUSD   float64         `json:"costUSD"`
	Message   json.RawMessage `json:"message"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Usage   *claudeUsage    `json:"usage"`
	Content json.RawMessage `json:"content"`
}

type claudeUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

type claudeBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	Name      string          `json:"name"`
	ID        string          `json:"id"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

// ClaudeProvider normalizes Claude Code session JSONL into events. One
// assistant line fans out into the assistant turn plus one tool_use event
// per tool call block; one user line fans out into the user turn plus one
// tool_result event per result block.
type ClaudeProvider struct{}

func NewClaudeProvider() *ClaudeProvider { return &ClaudeProvider{} }

func (c *ClaudeProvider) Name() string { return "claude" }

func (c *ClaudeProvider) Normalize(line []byte) []*event.Event {
	var entry claudeEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil
	}

	ts := parseTimestamp(entry.Timestamp)

	switch entry.Type {
	case "assistant":
		return c.normalizeAssistant(&entry, ts)
	case "user":
		return c.normalizeUser(&entry, ts)
	case "summary":
		return []*event.Event{{
			Provider:  c.Name(),
			Type:      event.Summary,
			Timestamp: ts,
			Summary:   entry.Summary,
		}}
	case "system":
		return []*event.Event{{
			Provider:  c.Name(),
			Type:      event.System,
			Timestamp: ts,
			Summary:   entry.Summary,
		}}
	}
	return nil
}

func (c *ClaudeProvider) normalizeAssistant(entry *claudeEntry, ts time.Time) []*event.Event {
	var msg claudeMessage
	if entry.Message != nil {
		if err := json.Unmarshal(entry.Message, &msg); err != nil {
			return nil
		}
	}

	ev := &event.Event{
		Provider:  c.Name(),
		Type:      event.Assistant,
		Timestamp: ts,
		Model:     msg.Model,
		Cost:      entry.CostUSD,
	}
	if msg.Usage != nil {
		ev.Usage = &event.TokenUsage{
			InputTokens:      msg.Usage.InputTokens,
			OutputTokens:     msg.Usage.OutputTokens,
			CacheReadTokens:  msg.Usage.CacheReadInputTokens,
			CacheWriteTokens: msg.Usage.CacheCreationInputTokens,
		}
	}

	events := []*event.Event{ev}
	for _, block := range parseBlocks(msg.Content) {
		switch block.Type {
		case "text":
			ev.Content = append(ev.Content, event.ContentBlock{BlockType: "text", Text: block.Text})
		case "thinking":
			ev.Content = append(ev.Content, event.ContentBlock{BlockType: "thinking", Text: block.Thinking})
		case "tool_use":
			ev.Content = append(ev.Content, event.ContentBlock{
				BlockType: "tool_use",
				ToolName:  block.Name,
				Input:     block.Input,
			})
			events = append(events, &event.Event{
				Provider:  c.Name(),
				Type:      event.ToolUse,
				Timestamp: ts,
				Tool:      block.Name,
				ToolUseID: block.ID,
				Raw:       block.Input,
				Nested:    true,
			})
		}
	}
	return events
}

func (c *ClaudeProvider) normalizeUser(entry *claudeEntry, ts time.Time) []*event.Event {
	var msg claudeMessage
	if entry.Message != nil {
		if err := json.Unmarshal(entry.Message, &msg); err != nil {
			return nil
		}
	}

	ev := &event.Event{
		Provider:  c.Name(),
		Type:      event.User,
		Timestamp: ts,
	}

	// Content may be a bare string rather than a block list.
	var text string
	if len(msg.Content) > 0 && json.Unmarshal(msg.Content, &text) == nil {
		ev.Text = text
		return []*event.Event{ev}
	}

	events := []*event.Event{ev}
	for _, block := range parseBlocks(msg.Content) {
		switch block.Type {
		case "text":
			ev.Content = append(ev.Content, event.ContentBlock{BlockType: "text", Text: block.Text})
		case "tool_result":
			resultText := blockContentText(block.Content)
			ev.Content = append(ev.Content, event.ContentBlock{BlockType: "tool_result", Text: resultText})
			events = append(events, &event.Event{
				Provider:  c.Name(),
				Type:      event.ToolResult,
				Timestamp: ts,
				ToolUseID: block.ToolUseID,
				Text:      resultText,
				Raw:       block.Content,
				Nested:    true,
			})
		}
	}
	return events
}

func parseBlocks(raw json.RawMessage) []claudeBlock {
	if len(raw) == 0 {
		return nil
	}
	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	return blocks
}

// blockContentText flattens a tool_result content field, which may be a
// bare string or a list of text blocks.
func blockContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var blocks []claudeBlock
	if json.Unmarshal(raw, &blocks) != nil {
		return ""
	}
	text := ""
	for _, b := range blocks {
		if b.Type == "text" {
			text += b.Text
		}
	}
	return text
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
