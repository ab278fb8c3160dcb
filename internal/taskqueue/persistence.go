package taskqueue

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// store handles atomic persistence of queue state to a single JSON file
// per agent, mirroring the corpus's write-then-rename pattern used for
// every durable artifact (spec §4.5 "Persistence"). The file holds a
// bare JSON array of task records — no other core state is persisted;
// the pending FIFO order is derived on load from each task's CreatedAt.
type store struct {
	path string
}

func newStore(workspace, agentName string) *store {
	dir := filepath.Join(workspace, ".ploinky", "tasks")
	return &store{path: filepath.Join(dir, agentName+".json")}
}

func (s *store) load() ([]*Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var tasks []*Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// save writes tasks to disk atomically: write to a sibling temp file,
// fsync, then rename over the destination so a crash mid-write never
// leaves a truncated snapshot behind.
func (s *store) save(tasks []*Task) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
