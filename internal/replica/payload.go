package replica

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/atinyakov/TaskSync/internal/models"
)

// ErrSerialization reports a malformed sync payload. A decrypted payload
// that fails to parse is treated as data corruption, the same way a failed
// authentication is.
var ErrSerialization = errors.New("malformed payload")

// payloadVersion is the current sync payload schema version.
const payloadVersion = 1

// payload is the serialized form of a store's contents exchanged between
// replicas, always inside an encrypted envelope.
type payload struct {
	Version   int             `json:"version"`
	ReplicaID string          `json:"replica_id"`
	Tasks     []models.Record `json:"tasks"`
}

// MarshalPayload serializes the store's full contents, tombstones
// included, with tasks ordered by id so equal states produce equal bytes.
func (s *Store) MarshalPayload() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]models.Record, 0, len(s.tasks))
	for _, t := range s.tasks {
		records = append(records, t.Record())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	data, err := json.Marshal(payload{
		Version:   payloadVersion,
		ReplicaID: s.replicaID,
		Tasks:     records,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// UnmarshalPayload parses a peer's serialized store contents. Unknown
// fields from newer schema versions are ignored.
func UnmarshalPayload(data []byte) (replicaID string, tasks map[string]models.Task, err error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if p.Version < 1 {
		return "", nil, fmt.Errorf("%w: unsupported payload version %d", ErrSerialization, p.Version)
	}
	if p.ReplicaID == "" {
		return "", nil, fmt.Errorf("%w: missing replica id", ErrSerialization)
	}

	tasks = make(map[string]models.Task, len(p.Tasks))
	for _, r := range p.Tasks {
		t, err := models.FromRecord(r)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		if _, dup := tasks[t.ID()]; dup {
			return "", nil, fmt.Errorf("%w: duplicate task id %s", ErrSerialization, t.ID())
		}
		tasks[t.ID()] = t
	}
	return p.ReplicaID, tasks, nil
}
