// Package replica owns one device's local copy of the task list.
//
// A Store keys tasks by id, including tombstoned entries, and carries the
// replica identifier used for merge tie-breaks plus the non-secret
// credential salt. The derived key and the credential itself are never
// stored here.
package replica

import (
	"errors"
	"sort"
	"sync"

	"github.com/atinyakov/TaskSync/internal/models"
)

// ErrNotFound reports that no live task with the given id exists.
var ErrNotFound = errors.New("task not found")

// Store is a replica's task collection. Safe for concurrent reads and
// writes, but a sync session expects exclusive ownership for its duration;
// callers serialize sessions themselves.
type Store struct {
	mu        sync.Mutex
	replicaID string
	salt      []byte
	tasks     map[string]models.Task
}

// New creates an empty store for the given replica identity and salt.
func New(replicaID string, salt []byte) *Store {
	return &Store{
		replicaID: replicaID,
		salt:      append([]byte(nil), salt...),
		tasks:     make(map[string]models.Task),
	}
}

// ReplicaID returns the owning replica's identifier.
func (s *Store) ReplicaID() string { return s.replicaID }

// Salt returns the credential salt persisted alongside the store.
func (s *Store) Salt() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.salt...)
}

// SetSalt installs the credential salt. A fresh replica starts without
// one and adopts the server's canonical salt on its first sync, so every
// replica derives the identical key from the shared credential.
func (s *Store) SetSalt(salt []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.salt = append([]byte(nil), salt...)
}

// Add inserts a task. An existing task with the same id is replaced.
func (s *Store) Add(t models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID()] = t.Clone()
}

// Get returns the live task with the given id. Tombstones are misses.
func (s *Store) Get(id string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Deleted() {
		return models.Task{}, false
	}
	return t.Clone(), true
}

// Tasks returns all live tasks ordered by creation time, then id.
func (s *Store) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.Deleted() {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].CreatedAt().Before(out[j].CreatedAt())
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// All returns a copy of every task keyed by id, tombstones included.
// This is the view the merge engine consumes.
func (s *Store) All() map[string]models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.Task, len(s.tasks))
	for id, t := range s.tasks {
		out[id] = t.Clone()
	}
	return out
}

// Update applies fn to the live task with the given id. The closure is
// expected to call the task's mutators, which advance the modification
// clock; Update itself never bypasses them.
func (s *Store) Update(id string, fn func(*models.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Deleted() {
		return ErrNotFound
	}
	fn(&t)
	s.tasks[id] = t
	return nil
}

// Delete tombstones the task with the given id. The record is retained so
// the deletion propagates to replicas still holding an older version.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Deleted() {
		return ErrNotFound
	}
	t.MarkDeleted(s.replicaID)
	s.tasks[id] = t
	return nil
}

// ReplaceAll swaps in a reconciled task set. This is the single commit
// point of a sync session.
func (s *Store) ReplaceAll(tasks map[string]models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]models.Task, len(tasks))
	for id, t := range tasks {
		next[id] = t.Clone()
	}
	s.tasks = next
}

// Len returns the number of live tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.Deleted() {
			n++
		}
	}
	return n
}
