package status

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteFile publishes the snapshot as JSON at path. The write goes
// through a temp file and rename so a concurrent reader never sees a
// half-written snapshot.
func (s Snapshot) WriteFile(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// ReadFile loads the snapshot last published at path.
func ReadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}
