package event

import (
	"encoding/json"
	"testing"
)

func TestTypeRoundTrip(t *testing.T) {
	types := []Type{User, Assistant, ToolUse, ToolResult, Summary, System}

	for _, typ := range types {
		data, err := json.Marshal(typ)
		if err != nil {
			t.Fatalf("Marshal(%v) error: %v", typ, err)
		}

		var back Type
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal(%s) error: %v", data, err)
		}
		if back != typ {
			t.Errorf("round trip of %v = %v", typ, back)
		}
	}
}

func TestTypeFromName(t *testing.T) {
	tests := []struct {
		name string
		want Type
	}{
		{"user", User},
		{"assistant", Assistant},
		{"tool_use", ToolUse},
		{"tool_result", ToolResult},
		{"summary", Summary},
		{"system", System},
		{"garbage", System}, // unknown names flow through as system
		{"", System},
	}

	for _, tt := range tests {
		if got := TypeFromName(tt.name); got != tt.want {
			t.Errorf("TypeFromName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTotalContext(t *testing.T) {
	u := TokenUsage{
		InputTokens:      100,
		OutputTokens:     5000, // output never counts toward context
		CacheReadTokens:  120000,
		CacheWriteTokens: 3000,
	}
	if got := u.TotalContext(); got != 123100 {
		t.Errorf("TotalContext() = %d, want 123100", got)
	}
}

func TestRichestText(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "raw wins",
			ev:   Event{Raw: json.RawMessage(`{"a":1}`), Text: "text", Summary: "sum"},
			want: `{"a":1}`,
		},
		{
			name: "text beats summary",
			ev:   Event{Text: "text", Summary: "sum"},
			want: "text",
		},
		{
			name: "summary as last resort",
			ev:   Event{Summary: "sum"},
			want: "sum",
		},
		{
			name: "all empty",
			ev:   Event{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.RichestText(); got != tt.want {
				t.Errorf("RichestText() = %q, want %q", got, tt.want)
			}
		})
	}
}
