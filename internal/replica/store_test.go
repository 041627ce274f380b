package replica

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/atinyakov/TaskSync/internal/models"
)

func taskAt(t *testing.T, id, title, by string, modified time.Time) models.Task {
	t.Helper()
	task, err := models.FromRecord(models.Record{
		ID:         id,
		Title:      title,
		Priority:   models.PriorityMedium,
		CreatedAt:  modified,
		ModifiedAt: modified,
		ModifiedBy: by,
	})
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	return task
}

func TestStoreAddGetDelete(t *testing.T) {
	s := New("replica-a", []byte("0123456789abcdef"))

	task := models.NewTask("replica-a", "Buy milk")
	s.Add(task)

	got, ok := s.Get(task.ID())
	if !ok {
		t.Fatal("expected task after Add")
	}
	if got.Title() != "Buy milk" {
		t.Fatalf("title = %q", got.Title())
	}

	if err := s.Delete(task.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Get(task.ID()); ok {
		t.Fatal("tombstoned task must not be visible via Get")
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d; want 0 live tasks", s.Len())
	}

	// The record survives as a tombstone with an advanced clock.
	all := s.All()
	stone, ok := all[task.ID()]
	if !ok {
		t.Fatal("tombstone must be retained in All")
	}
	if !stone.Deleted() {
		t.Fatal("expected deleted flag on tombstone")
	}
	if stone.ModifiedAt().Before(task.ModifiedAt()) {
		t.Fatal("deletion must advance modifiedAt")
	}
	if stone.ModifiedBy() != "replica-a" {
		t.Fatalf("modifiedBy = %q", stone.ModifiedBy())
	}

	if err := s.Delete(task.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete = %v; want ErrNotFound", err)
	}
	if err := s.Delete("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete unknown = %v; want ErrNotFound", err)
	}
}

func TestStoreUpdateGoesThroughMutators(t *testing.T) {
	s := New("replica-a", nil)
	task := models.NewTask("replica-a", "Buy milk")
	s.Add(task)

	err := s.Update(task.ID(), func(tk *models.Task) {
		tk.SetTitle("Buy milk and eggs", s.ReplicaID())
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(task.ID())
	if got.Title() != "Buy milk and eggs" {
		t.Fatalf("title = %q", got.Title())
	}
	if got.ModifiedAt().Before(task.ModifiedAt()) {
		t.Fatal("update must advance modifiedAt")
	}

	if err := s.Update("missing", func(*models.Task) {}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update missing = %v; want ErrNotFound", err)
	}
}

func TestTasksOrderedByCreation(t *testing.T) {
	s := New("replica-a", nil)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Add(taskAt(t, "b-second", "second", "a", base.Add(time.Hour)))
	s.Add(taskAt(t, "a-first", "first", "a", base))

	tasks := s.Tasks()
	if len(tasks) != 2 || tasks[0].Title() != "first" || tasks[1].Title() != "second" {
		t.Fatalf("unexpected order: %v", tasks)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	s := New("replica-a", nil)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Add(taskAt(t, "t1", "Buy milk", "replica-a", base))
	stone := taskAt(t, "t2", "Old task", "replica-a", base)
	stone.MarkDeleted("replica-a")
	s.Add(stone)

	data, err := s.MarshalPayload()
	if err != nil {
		t.Fatalf("MarshalPayload: %v", err)
	}

	replicaID, tasks, err := UnmarshalPayload(data)
	if err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if replicaID != "replica-a" {
		t.Fatalf("replicaID = %q", replicaID)
	}
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d; want 2 (tombstones travel too)", len(tasks))
	}
	t2 := tasks["t2"]
	if !t2.Deleted() {
		t.Fatal("tombstone lost its deleted flag in transit")
	}
}

func TestUnmarshalPayloadErrors(t *testing.T) {
	cases := map[string]string{
		"garbage":       `{{{`,
		"no version":    `{"replica_id":"a","tasks":[]}`,
		"no replica id": `{"version":1,"tasks":[]}`,
		"task sans id":  `{"version":1,"replica_id":"a","tasks":[{"title":"x"}]}`,
		"duplicate id":  `{"version":1,"replica_id":"a","tasks":[{"id":"t1","title":"x","priority":"low","created_at":"2024-03-01T10:00:00Z","modified_at":"2024-03-01T10:00:00Z","modified_by":"a"},{"id":"t1","title":"y","priority":"low","created_at":"2024-03-01T10:00:00Z","modified_at":"2024-03-01T10:00:00Z","modified_by":"a"}]}`,
	}
	for name, in := range cases {
		if _, _, err := UnmarshalPayload([]byte(in)); !errors.Is(err, ErrSerialization) {
			t.Fatalf("%s: err = %v; want ErrSerialization", name, err)
		}
	}

	// Fields added by future schema versions are ignored.
	future := `{"version":1,"replica_id":"a","schema_extras":true,"tasks":[]}`
	if _, _, err := UnmarshalPayload([]byte(future)); err != nil {
		t.Fatalf("future fields must be tolerated: %v", err)
	}
}

func TestSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.json")
	salt := []byte("0123456789abcdef")

	s := New("replica-a", salt)
	s.Add(models.NewTask("replica-a", "Buy milk"))
	task := models.NewTask("replica-a", "Old task")
	s.Add(task)
	if err := s.Delete(task.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := s.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.ReplicaID() != "replica-a" {
		t.Fatalf("replicaID = %q", loaded.ReplicaID())
	}
	if string(loaded.Salt()) != string(salt) {
		t.Fatal("salt must survive persistence")
	}
	if loaded.Len() != 1 {
		t.Fatalf("live tasks = %d; want 1", loaded.Len())
	}
	if len(loaded.All()) != 2 {
		t.Fatal("tombstone must survive persistence")
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSetSaltAdoption(t *testing.T) {
	// A fresh replica starts without a salt and adopts the canonical one
	// later; the adopted salt must survive persistence.
	s := New("replica-a", nil)
	if len(s.Salt()) != 0 {
		t.Fatal("fresh store must have no salt")
	}

	salt := []byte("0123456789abcdef")
	s.SetSalt(salt)
	if string(s.Salt()) != string(salt) {
		t.Fatal("salt not adopted")
	}

	path := filepath.Join(t.TempDir(), "replica.json")
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(loaded.Salt()) != string(salt) {
		t.Fatal("adopted salt must survive persistence")
	}
}
