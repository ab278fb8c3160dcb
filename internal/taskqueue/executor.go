package taskqueue

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ExecResult is what an Executor reports back to the queue.
type ExecResult struct {
	Code   int
	Stdout string
	Stderr string
}

// Executor is the capability the queue is handed at construction time;
// the queue never decides how work runs (spec §4.5 "Executor
// capability"). onSpawn is invoked right after the process starts so
// the queue can arm its timeout timer against the real OS process.
type Executor func(ctx context.Context, spec CommandSpec, payload map[string]interface{}, onSpawn func(proc *os.Process)) (ExecResult, error)

// CommandExecutor runs spec.Command through the shell, generalizing the
// corpus's injected-AgentManagerClient pattern (launch a container) to
// launching a local command (spec's agent-runtime task queue has no
// container boundary of its own — that belongs to the external
// lifecycle manager named in the Non-goals).
func CommandExecutor(ctx context.Context, spec CommandSpec, payload map[string]interface{}, onSpawn func(proc *os.Process)) (ExecResult, error) {
	if spec.Command == "" {
		return ExecResult{}, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	// Once the shell is killed or exits, stop waiting on output pipes that
	// its own children may still hold open.
	cmd.WaitDelay = 500 * time.Millisecond
	if spec.Cwd != "" {
		cmd.Dir = spec.Cwd
	}
	if len(spec.Env) > 0 {
		env := os.Environ()
		for k, v := range spec.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return ExecResult{}, err
	}
	if onSpawn != nil {
		onSpawn(cmd.Process)
	}

	err := cmd.Wait()
	result := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		result.Code = 0
		return result, nil
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		result.Code = exitErr.ExitCode()
		return result, nil
	}
	// A process killed on timeout ends in *exec.ExitError (code -1)
	// above. Any other Wait error (e.g. output pipes still open after
	// WaitDelay): surface it as an executor throw.
	return result, err
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}
