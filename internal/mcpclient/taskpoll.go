package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/OutfinityResearch/ploinky-sub006/internal/mcprpc"
	"go.uber.org/zap"
)

const defaultTaskPollIntervalMs = 5000

// taskPollInterval reads PLOINKY_MCP_TASK_POLL_INTERVAL_MS (spec §4.3
// "Long-running task semantics"), falling back to the 5s default for
// anything absent or non-positive.
func taskPollInterval() time.Duration {
	if raw := os.Getenv("PLOINKY_MCP_TASK_POLL_INTERVAL_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultTaskPollIntervalMs * time.Millisecond
}

type taskStatusPayload struct {
	Task struct {
		ID        string                  `json:"id"`
		ToolName  string                  `json:"toolName"`
		Status    string                  `json:"status"`
		CreatedAt string                  `json:"createdAt"`
		UpdatedAt string                  `json:"updatedAt"`
		Error     string                  `json:"error"`
		Result    *mcprpc.ToolCallResult  `json:"result"`
		Metadata  map[string]interface{} `json:"metadata"`
	} `json:"task"`
}

// awaitTask polls the task-status endpoint until the task reaches a
// terminal state, invoking onStatus once per distinct status
// transition along the way.
func (c *Client) awaitTask(ctx context.Context, taskID string, onStatus TaskStatusCallback) (*mcprpc.ToolCallResult, error) {
	pollCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.pollers[taskID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pollers, taskID)
		c.mu.Unlock()
		cancel()
	}()

	interval := taskPollInterval()
	lastStatus := ""

	for {
		payload, err := c.fetchTaskStatus(pollCtx, taskID)
		if err != nil {
			if errSynth, ok := err.(*taskNotFoundError); ok {
				if onStatus != nil && lastStatus != "failed" {
					onStatus("failed", nil, errSynth)
				}
				return nil, errSynth
			}
			// Transient HTTP/network error: log and retry at the next tick.
			c.log.Debug("mcpclient: task-poll error, retrying", zap.String("taskId", taskID), zap.Error(err))
		} else if payload.Task.Status != lastStatus {
			lastStatus = payload.Task.Status
			if onStatus != nil {
				onStatus(payload.Task.Status, payload.Task.Result, nil)
			}
			switch payload.Task.Status {
			case "completed":
				result := payload.Task.Result
				if result == nil {
					result = &mcprpc.ToolCallResult{}
				}
				merged := map[string]interface{}{
					"taskId":    taskID,
					"toolName":  payload.Task.ToolName,
					"status":    payload.Task.Status,
					"createdAt": payload.Task.CreatedAt,
					"updatedAt": payload.Task.UpdatedAt,
				}
				for k, v := range payload.Task.Metadata {
					merged[k] = v
				}
				result.Metadata = merged
				return result, nil
			case "failed":
				return nil, fmt.Errorf("task %s failed: %s", taskID, payload.Task.Error)
			}
		}

		select {
		case <-pollCtx.Done():
			return nil, pollCtx.Err()
		case <-time.After(interval):
		}
	}
}

type taskNotFoundError struct{ taskID string }

func (e *taskNotFoundError) Error() string { return "task not found" }

func (c *Client) fetchTaskStatus(ctx context.Context, taskID string) (*taskStatusPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.taskBasePath+"?taskId="+taskID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &taskNotFoundError{taskID: taskID}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("task-status: unexpected HTTP %d", resp.StatusCode)
	}

	var payload taskStatusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("task-status: decode: %w", err)
	}
	return &payload, nil
}
