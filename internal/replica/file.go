package replica

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/atinyakov/TaskSync/internal/models"
)

// fileState is the on-disk form of a replica: its identity, the non-secret
// salt, and every task including tombstones. The derived key and the
// credential are never written here.
type fileState struct {
	ReplicaID string          `json:"replica_id"`
	Salt      []byte          `json:"salt"`
	Tasks     []models.Record `json:"tasks"`
}

// LoadFile reads a persisted replica from path.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replica file: %w", err)
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if st.ReplicaID == "" {
		return nil, fmt.Errorf("%w: missing replica id", ErrSerialization)
	}

	s := New(st.ReplicaID, st.Salt)
	for _, r := range st.Tasks {
		t, err := models.FromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		s.tasks[t.ID()] = t
	}
	return s, nil
}

// SaveFile writes the replica to path via a temp file and rename, so an
// interrupted write never truncates the previous state.
func (s *Store) SaveFile(path string) error {
	s.mu.Lock()
	records := make([]models.Record, 0, len(s.tasks))
	for _, t := range s.tasks {
		records = append(records, t.Record())
	}
	st := fileState{ReplicaID: s.replicaID, Salt: append([]byte(nil), s.salt...)}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	st.Tasks = records

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal replica file: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create replica dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write replica file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit replica file: %w", err)
	}
	return nil
}
