// Package taskqueue implements the bounded-concurrency, disk-persistent
// job executor (C5) that lives inside each agent runtime (spec §4.5).
package taskqueue

import "time"

// Status is a Task's position in its state machine (spec §4.5).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CommandSpec describes how to run a task's underlying command.
type CommandSpec struct {
	Command   string            `json:"command"`
	Cwd       string            `json:"cwd,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	TimeoutMs int               `json:"timeoutMs"`
}

// Result holds the task's outcome. On completion, Content carries the
// shaped tool output; on failure, Stdout/Stderr carry raw diagnostics
// (spec §4.5 "Output shaping" — these are two different uses of the
// same field depending on terminal status, not a strict discriminated
// union).
type Result struct {
	Content []ContentBlock `json:"content,omitempty"`
	Stdout  string         `json:"stdout,omitempty"`
	Stderr  string         `json:"stderr,omitempty"`
}

// ContentBlock mirrors mcprpc.ContentBlock without importing the rpc
// package, keeping the queue free of wire-protocol dependencies.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Task is the durable record tracked by the queue (spec §3 "Task").
type Task struct {
	ID          string                 `json:"id"`
	ToolName    string                 `json:"toolName"`
	CommandSpec CommandSpec            `json:"commandSpec"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Status      Status                 `json:"status"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	Error       string                 `json:"error,omitempty"`
	Result      *Result                `json:"result,omitempty"`
	TimeoutMs   int                    `json:"timeoutMs"`
}

// Clone returns a deep-enough copy safe to hand to callers outside the lock.
func (t *Task) Clone() *Task {
	clone := *t
	if t.Payload != nil {
		clone.Payload = make(map[string]interface{}, len(t.Payload))
		for k, v := range t.Payload {
			clone.Payload[k] = v
		}
	}
	if t.Result != nil {
		r := *t.Result
		if t.Result.Content != nil {
			r.Content = append([]ContentBlock(nil), t.Result.Content...)
		}
		clone.Result = &r
	}
	return &clone
}

// EnqueueSpec is the input to Enqueue.
type EnqueueSpec struct {
	ToolName    string
	CommandSpec CommandSpec
	Payload     map[string]interface{}
	TimeoutMs   int
}
