package aggregator

import (
	"encoding/json"
	"regexp"

	"github.com/agentlens/backend/internal/event"
)

// Tool names that manage the task graph. Everything else counts as effort
// spent on whatever tasks are currently in progress.
const (
	taskCreateTool = "TaskCreate"
	taskUpdateTool = "TaskUpdate"
)

var (
	taskHashPattern = regexp.MustCompile(`Task #(\d+)`)
	taskIDPattern   = regexp.MustCompile(`"taskId"\s*:\s*"(\d+)"`)
)

// pendingCreate stages a TaskCreate call until its result supplies the real
// task id.
type pendingCreate struct {
	Subject      string `json:"subject"`
	ActiveForm   string `json:"activeForm,omitempty"`
	SubagentType string `json:"subagentType,omitempty"`
	GoalGate     bool   `json:"goalGate,omitempty"`
}

// taskTracker maintains the task dependency graph from create/update tool
// events. Tasks are keyed by provider-assigned id and kept in creation order.
type taskTracker struct {
	tasks  map[string]*Task
	order  []string
	staged map[string]pendingCreate // keyed by tool call correlation id
}

func newTaskTracker() *taskTracker {
	return &taskTracker{
		tasks:  make(map[string]*Task),
		staged: make(map[string]pendingCreate),
	}
}

// taskCreateInput is the payload of a TaskCreate tool call.
type taskCreateInput struct {
	Subject      string `json:"subject"`
	ActiveForm   string `json:"activeForm"`
	SubagentType string `json:"subagentType"`
	IsGoalGate   bool   `json:"isGoalGate"`
}

// taskUpdateInput is the payload of a TaskUpdate tool call.
type taskUpdateInput struct {
	TaskID       string   `json:"taskId"`
	Subject      string   `json:"subject"`
	ActiveForm   string   `json:"activeForm"`
	Status       string   `json:"status"`
	BlockedBy    []string `json:"blockedBy"`
	Blocks       []string `json:"blocks"`
	SubagentType string   `json:"subagentType"`
	IsGoalGate   bool     `json:"isGoalGate"`
}

func (t *taskTracker) observe(ev *event.Event) {
	switch ev.Type {
	case event.ToolUse:
		switch ev.Tool {
		case taskCreateTool:
			t.stageCreate(ev)
		case taskUpdateTool:
			t.applyUpdate(ev)
		default:
			// Not a task-management call: count effort on the active set.
			for _, id := range t.order {
				if task, ok := t.tasks[id]; ok && task.Status == TaskInProgress {
					task.ToolCalls++
				}
			}
		}
	case event.ToolResult:
		t.materialize(ev)
	}
}

func (t *taskTracker) stageCreate(ev *event.Event) {
	if ev.ToolUseID == "" || len(ev.Raw) == 0 {
		return
	}
	var in taskCreateInput
	if err := json.Unmarshal(ev.Raw, &in); err != nil {
		return
	}
	t.staged[ev.ToolUseID] = pendingCreate{
		Subject:      in.Subject,
		ActiveForm:   in.ActiveForm,
		SubagentType: in.SubagentType,
		GoalGate:     in.IsGoalGate,
	}
}

// materialize turns a staged create into a real task when the result
// supplies an id. A result whose text yields no id drops the staged create.
func (t *taskTracker) materialize(ev *event.Event) {
	staged, ok := t.staged[ev.ToolUseID]
	if !ok {
		return
	}
	delete(t.staged, ev.ToolUseID)

	id := extractTaskID(ev.RichestText())
	if id == "" {
		return
	}
	if _, exists := t.tasks[id]; exists {
		return
	}
	t.tasks[id] = &Task{
		ID:           id,
		Subject:      staged.Subject,
		ActiveForm:   staged.ActiveForm,
		Status:       TaskPending,
		SubagentType: staged.SubagentType,
		GoalGate:     staged.GoalGate,
	}
	t.order = append(t.order, id)
}

func (t *taskTracker) applyUpdate(ev *event.Event) {
	if len(ev.Raw) == 0 {
		return
	}
	var in taskUpdateInput
	if err := json.Unmarshal(ev.Raw, &in); err != nil || in.TaskID == "" {
		return
	}

	task, exists := t.tasks[in.TaskID]
	if !exists {
		// Deleting an unknown task is a no-op, not a placeholder.
		if TaskStatus(in.Status) == taskDeleted {
			return
		}
		task = &Task{ID: in.TaskID, Status: TaskPending}
		t.tasks[in.TaskID] = task
		t.order = append(t.order, in.TaskID)
	}

	if TaskStatus(in.Status) == taskDeleted {
		t.remove(in.TaskID)
		return
	}

	if in.Subject != "" {
		task.Subject = in.Subject
	}
	if in.ActiveForm != "" {
		task.ActiveForm = in.ActiveForm
	}
	if in.Status != "" {
		task.Status = TaskStatus(in.Status)
	}
	task.BlockedBy = appendMissing(task.BlockedBy, in.BlockedBy)
	task.Blocks = appendMissing(task.Blocks, in.Blocks)
	if in.SubagentType != "" {
		task.SubagentType = in.SubagentType
	}
	if in.IsGoalGate {
		task.GoalGate = true
	}
}

func (t *taskTracker) remove(id string) {
	delete(t.tasks, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *taskTracker) snapshot() []Task {
	out := make([]Task, 0, len(t.order))
	for _, id := range t.order {
		task := *t.tasks[id]
		task.BlockedBy = append([]string(nil), task.BlockedBy...)
		task.Blocks = append([]string(nil), task.Blocks...)
		out = append(out, task)
	}
	return out
}

func (t *taskTracker) reset() {
	t.tasks = make(map[string]*Task)
	t.order = nil
	t.staged = make(map[string]pendingCreate)
}

// extractTaskID pulls the numeric task id out of a create result, trying the
// "Task #N" textual form first and the JSON-ish taskId form second.
func extractTaskID(text string) string {
	if m := taskHashPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := taskIDPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// appendMissing appends the values of add not already present in dst,
// preserving order.
func appendMissing(dst, add []string) []string {
	for _, v := range add {
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
