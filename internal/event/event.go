package event

import (
	"encoding/json"
	"time"
)

// Type classifies a normalized session event.
type Type int

const (
	User Type = iota
	Assistant
	ToolUse
	ToolResult
	Summary
	System
)

var typeNames = map[Type]string{
	User:       "user",
	Assistant:  "assistant",
	ToolUse:    "tool_use",
	ToolResult: "tool_result",
	Summary:    "summary",
	System:     "system",
}

var typeFromName = map[string]Type{
	"user":        User,
	"assistant":   Assistant,
	"tool_use":    ToolUse,
	"tool_result": ToolResult,
	"summary":     Summary,
	"system":      System,
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// TypeFromName parses a type name. Unknown names map to System so that
// unrecognized event kinds still flow through the aggregator guards.
func TypeFromName(name string) Type {
	if t, ok := typeFromName[name]; ok {
		return t
	}
	return System
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := typeFromName[s]; ok {
		*t = v
	}
	return nil
}

// TokenUsage carries the token counters reported with a single event.
type TokenUsage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_input_tokens"`
	CacheWriteTokens int `json:"cache_creation_input_tokens"`
}

// TotalContext returns the context-window footprint this usage record
// represents: everything the model had to hold, excluding its own output.
func (u TokenUsage) TotalContext() int {
	return u.InputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// RateLimitReport is a provider-reported quota status attached to an event.
type RateLimitReport struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	ResetsAt  time.Time `json:"resetsAt"`
	Window    string    `json:"window,omitempty"`
	Overloads int       `json:"overloads,omitempty"`
}

// ContentBlock is one structured block inside a user or assistant turn.
// BlockType is the provider's block kind: "text", "thinking", "tool_use",
// or "tool_result".
type ContentBlock struct {
	BlockType string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ToolName  string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// Event is one normalized unit of session activity. Events are immutable
// once constructed; the aggregator owns one for the duration of a single
// ProcessEvent call and must not retain references into it afterwards.
type Event struct {
	Provider  string    `json:"provider"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Model     string           `json:"model,omitempty"`
	Usage     *TokenUsage      `json:"usage,omitempty"`
	Cost      float64          `json:"cost,omitempty"`
	Tool      string           `json:"tool,omitempty"`
	ToolUseID string           `json:"toolUseId,omitempty"` // correlation id
	Summary   string           `json:"summary,omitempty"`
	RateLimit *RateLimitReport `json:"rateLimit,omitempty"`

	// Nested marks a tool event fanned out of a user or assistant turn.
	// The parent turn's content blocks carry the same payload, and the
	// parent owns context attribution for it.
	Nested bool `json:"nested,omitempty"`

	// Content holds the structured blocks of a user/assistant turn, when
	// the provider supplies them. Nil for bare tool events.
	Content []ContentBlock `json:"content,omitempty"`

	// Text is the flat fallback body used when no structured content is
	// available (bare-string user messages, tool result payloads).
	Text string `json:"text,omitempty"`

	// Raw is the opaque provider payload. Only extraction heuristics
	// (task id parsing, plan extraction) look inside it.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// RichestText returns the fullest text available for attribution: the raw
// payload when present, otherwise the flat text, otherwise the summary.
func (e *Event) RichestText() string {
	if len(e.Raw) > 0 {
		return string(e.Raw)
	}
	if e.Text != "" {
		return e.Text
	}
	return e.Summary
}
