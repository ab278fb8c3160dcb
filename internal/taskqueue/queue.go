package taskqueue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/OutfinityResearch/ploinky-sub006/internal/common/logger"
	"go.uber.org/zap"
)

// Queue is a FIFO, bounded-concurrency, disk-persistent job runner
// (spec §4.5). One Queue exists per agent runtime.
type Queue struct {
	mu            sync.Mutex
	tasks         map[string]*Task
	pending       []string
	runningCount  int
	maxConcurrent int

	executor  Executor
	store     *store
	agentName string
	log       *logger.Logger
}

// New builds a Queue. maxConcurrent <= 0 means no task is ever
// dispatched — enqueue still succeeds and tasks simply sit pending
// (spec §8 boundary behavior "maxConcurrent=0").
func New(agentName, workspace string, maxConcurrent int, executor Executor, log *logger.Logger) *Queue {
	if log == nil {
		log = logger.Default()
	}
	return &Queue{
		tasks:         make(map[string]*Task),
		maxConcurrent: maxConcurrent,
		executor:      executor,
		store:         newStore(workspace, agentName),
		agentName:     agentName,
		log:           log,
	}
}

// Initialize restores any prior snapshot, demoting tasks that were
// mid-flight when the process last stopped back to pending (spec §4.5
// "crash recovery" — at-least-once, never silently dropped), and kicks
// off dispatch for whatever capacity is available.
func (q *Queue) Initialize(ctx context.Context) error {
	tasks, err := q.store.load()
	if err != nil {
		return fmt.Errorf("taskqueue: load snapshot: %w", err)
	}

	q.mu.Lock()
	for _, t := range tasks {
		if t.Status == StatusRunning {
			t.Status = StatusPending
			t.UpdatedAt = time.Now()
		}
		q.tasks[t.ID] = t
	}
	// The FIFO order isn't persisted separately (spec §4.5: the snapshot
	// is a bare array of task records) — rebuild it by sorting pending
	// tasks on CreatedAt, oldest first.
	pendingTasks := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == StatusPending {
			pendingTasks = append(pendingTasks, t)
		}
	}
	sort.Slice(pendingTasks, func(i, j int) bool {
		return pendingTasks[i].CreatedAt.Before(pendingTasks[j].CreatedAt)
	})
	for _, t := range pendingTasks {
		q.pending = append(q.pending, t.ID)
	}
	q.mu.Unlock()

	if err := q.persist(); err != nil {
		return err
	}

	q.log.Info("taskqueue initialized", zap.String("agent", q.agentName), zap.Int("restored", len(tasks)))

	q.mu.Lock()
	q.dispatchLocked()
	q.mu.Unlock()
	return nil
}

// Enqueue admits a new task and returns its initial (pending) snapshot.
func (q *Queue) Enqueue(spec EnqueueSpec) (*Task, error) {
	id, err := newTaskID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	task := &Task{
		ID:          id,
		ToolName:    spec.ToolName,
		CommandSpec: spec.CommandSpec,
		Payload:     spec.Payload,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		TimeoutMs:   spec.TimeoutMs,
	}

	q.mu.Lock()
	q.tasks[id] = task
	q.pending = append(q.pending, id)
	q.mu.Unlock()

	if err := q.persist(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	q.dispatchLocked()
	q.mu.Unlock()

	return task.Clone(), nil
}

// GetTask returns an immutable snapshot of a task, or false if unknown.
func (q *Queue) GetTask(id string) (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// dispatchLocked fills available concurrency slots with pending tasks.
// Caller must hold q.mu.
func (q *Queue) dispatchLocked() {
	for q.maxConcurrent > 0 && q.runningCount < q.maxConcurrent && len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]

		task, ok := q.tasks[id]
		if !ok || task.Status != StatusPending {
			continue
		}
		task.Status = StatusRunning
		task.UpdatedAt = time.Now()
		q.runningCount++

		go q.run(task.ID)
	}
}

// run executes one task outside the lock and records its terminal state.
func (q *Queue) run(id string) {
	q.mu.Lock()
	task, ok := q.tasks[id]
	q.mu.Unlock()
	if !ok {
		return
	}

	q.persist()

	ctx := context.Background()
	var cancel context.CancelFunc
	if task.TimeoutMs > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(task.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	var killTimer *time.Timer
	execResult, err := q.executor(ctx, task.CommandSpec, task.Payload, func(proc *os.Process) {
		// Arm the timeout against the real OS process: SIGKILL once
		// TimeoutMs has elapsed (spec §4.5 "onSpawn").
		if task.TimeoutMs > 0 {
			killTimer = time.AfterFunc(time.Duration(task.TimeoutMs)*time.Millisecond, func() { proc.Kill() })
		}
	})
	if killTimer != nil {
		killTimer.Stop()
	}

	q.mu.Lock()
	task.UpdatedAt = time.Now()
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		task.Status = StatusFailed
		task.Error = fmt.Sprintf("Task timed out after %dms", task.TimeoutMs)
		task.Result = &Result{Stdout: execResult.Stdout, Stderr: execResult.Stderr}
	case err != nil:
		task.Status = StatusFailed
		task.Error = err.Error()
		task.Result = &Result{Stdout: execResult.Stdout, Stderr: execResult.Stderr}
	case execResult.Code != 0:
		task.Status = StatusFailed
		if execResult.Stderr != "" {
			task.Error = execResult.Stderr
		} else {
			task.Error = fmt.Sprintf("exit %d", execResult.Code)
		}
		task.Result = &Result{Stdout: execResult.Stdout, Stderr: execResult.Stderr}
	default:
		task.Status = StatusCompleted
		stdout := execResult.Stdout
		if stdout == "" {
			stdout = "(no output)"
		}
		content := []ContentBlock{{Type: "text", Text: stdout}}
		if execResult.Stderr != "" {
			content = append(content, ContentBlock{Type: "text", Text: "stderr:\n" + execResult.Stderr})
		}
		task.Result = &Result{Content: content}
	}
	q.runningCount--
	q.dispatchLocked()
	q.mu.Unlock()

	q.persist()
}

// persist snapshots the full queue state to disk as a bare array of
// task records (spec §4.5 "Persistence"). Must be called with q.mu NOT
// held — it takes the lock itself.
func (q *Queue) persist() error {
	q.mu.Lock()
	tasks := make([]*Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		tasks = append(tasks, t.Clone())
	}
	q.mu.Unlock()

	if err := q.store.save(tasks); err != nil {
		q.log.Error("taskqueue: persist snapshot failed", zap.String("agent", q.agentName), zap.Error(err))
		return err
	}
	return nil
}

func newTaskID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
