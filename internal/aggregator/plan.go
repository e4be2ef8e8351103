package aggregator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentlens/backend/internal/event"
)

// Planning tools the extractor understands. TodoWrite carries a structured
// step list; ExitPlanMode carries freeform markdown.
const (
	todoWriteTool = "TodoWrite"
	planModeTool  = "ExitPlanMode"
)

var (
	headingPattern  = regexp.MustCompile(`^#+\s+(.+)$`)
	checkboxPattern = regexp.MustCompile(`^[-*]\s+\[([ xX])\]\s+(.+)$`)
	numberedPattern = regexp.MustCompile(`^(\d+)[.)]\s+(.+)$`)
)

// PlanExtractor turns freeform planning tool calls into a structured Plan.
// The aggregator calls ProcessEvent on every event and re-reads Plan() when
// it reports a change.
type PlanExtractor struct {
	plan *Plan
}

func NewPlanExtractor() *PlanExtractor {
	return &PlanExtractor{}
}

// Plan returns the extractor's current plan value, or nil before any
// planning call has been seen.
func (p *PlanExtractor) Plan() *Plan {
	return p.plan
}

// ProcessEvent inspects the event and reports whether the current plan
// changed as a result.
func (p *PlanExtractor) ProcessEvent(ev *event.Event) bool {
	if ev.Type != event.ToolUse || len(ev.Raw) == 0 {
		return false
	}
	switch ev.Tool {
	case todoWriteTool:
		return p.extractTodos(ev.Raw)
	case planModeTool:
		return p.extractMarkdown(ev.Raw)
	}
	return false
}

type todoWriteInput struct {
	Todos []struct {
		Content    string `json:"content"`
		Status     string `json:"status"`
		ActiveForm string `json:"activeForm"`
	} `json:"todos"`
}

func (p *PlanExtractor) extractTodos(raw json.RawMessage) bool {
	var in todoWriteInput
	if err := json.Unmarshal(raw, &in); err != nil || len(in.Todos) == 0 {
		return false
	}

	plan := &Plan{Title: "Task list"}
	if p.plan != nil && p.plan.Title != "" {
		plan.Title = p.plan.Title
	}
	completed := 0
	for i, todo := range in.Todos {
		desc := todo.Content
		if desc == "" {
			desc = todo.ActiveForm
		}
		status := todo.Status
		if status == "" {
			status = string(TaskPending)
		}
		if status == string(TaskCompleted) {
			completed++
		}
		plan.Steps = append(plan.Steps, PlanStep{
			ID:          fmt.Sprintf("%d", i+1),
			Description: desc,
			Status:      status,
		})
	}
	plan.CompletionRate = float64(completed) / float64(len(plan.Steps))
	p.plan = plan
	return true
}

type planModeInput struct {
	Plan string `json:"plan"`
}

func (p *PlanExtractor) extractMarkdown(raw json.RawMessage) bool {
	var in planModeInput
	if err := json.Unmarshal(raw, &in); err != nil || strings.TrimSpace(in.Plan) == "" {
		return false
	}

	plan := &Plan{Source: in.Plan}
	completed := 0
	for _, line := range strings.Split(in.Plan, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			if plan.Title == "" {
				plan.Title = strings.TrimSpace(m[1])
			}
			continue
		}
		if m := checkboxPattern.FindStringSubmatch(line); m != nil {
			status := string(TaskPending)
			if m[1] != " " {
				status = string(TaskCompleted)
				completed++
			}
			plan.Steps = append(plan.Steps, PlanStep{
				ID:          fmt.Sprintf("%d", len(plan.Steps)+1),
				Description: strings.TrimSpace(m[2]),
				Status:      status,
			})
			continue
		}
		if m := numberedPattern.FindStringSubmatch(line); m != nil {
			plan.Steps = append(plan.Steps, PlanStep{
				ID:          m[1],
				Description: strings.TrimSpace(m[2]),
				Status:      string(TaskPending),
			})
		}
	}

	if plan.Title == "" && len(plan.Steps) == 0 {
		return false
	}
	if len(plan.Steps) > 0 {
		plan.CompletionRate = float64(completed) / float64(len(plan.Steps))
	}
	p.plan = plan
	return true
}
