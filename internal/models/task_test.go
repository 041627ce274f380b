package models

import (
	"encoding/json"
	"testing"
	"time"
)

// fixClock pins the package clock to a sequence of instants.
func fixClock(t *testing.T, times ...time.Time) {
	t.Helper()
	orig := now
	i := 0
	now = func() time.Time {
		ts := times[i]
		if i < len(times)-1 {
			i++
		}
		return ts
	}
	t.Cleanup(func() { now = orig })
}

func TestNewTaskStampsIDAndTimestamps(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fixClock(t, created)

	task := NewTask("replica-a", "Buy milk")
	if task.ID() == "" {
		t.Fatal("expected non-empty id")
	}
	if !task.CreatedAt().Equal(created) || !task.ModifiedAt().Equal(created) {
		t.Fatalf("timestamps = %v/%v; want %v", task.CreatedAt(), task.ModifiedAt(), created)
	}
	if task.ModifiedBy() != "replica-a" {
		t.Fatalf("modifiedBy = %q; want replica-a", task.ModifiedBy())
	}
	if task.Priority() != PriorityMedium {
		t.Fatalf("priority = %v; want medium", task.Priority())
	}

	other := NewTask("replica-a", "Buy milk")
	if task.Same(&other) {
		t.Fatal("two new tasks must never share an id")
	}
}

func TestMutatorsAdvanceModificationClock(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	t2 := t1.Add(time.Minute)
	fixClock(t, t0, t1, t2)

	task := NewTask("replica-a", "Buy milk")

	task.SetTitle("Buy milk and eggs", "replica-b")
	if !task.ModifiedAt().Equal(t1) {
		t.Fatalf("modifiedAt = %v; want %v", task.ModifiedAt(), t1)
	}
	if task.ModifiedBy() != "replica-b" {
		t.Fatalf("modifiedBy = %q; want replica-b", task.ModifiedBy())
	}

	task.MarkDeleted("replica-b")
	if !task.Deleted() {
		t.Fatal("expected tombstone after MarkDeleted")
	}
	if !task.ModifiedAt().Equal(t2) {
		t.Fatalf("deletion must advance modifiedAt, got %v", task.ModifiedAt())
	}
	if !task.CreatedAt().Equal(t0) {
		t.Fatal("createdAt must never change")
	}
}

func TestModifiedAtNeverGoesBackwards(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fixClock(t, t0, t0.Add(-time.Hour))

	task := NewTask("replica-a", "Buy milk")
	task.SetCompleted(true, "replica-a")
	if task.ModifiedAt().Before(t0) {
		t.Fatalf("modifiedAt went backwards: %v < %v", task.ModifiedAt(), t0)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	due := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	task := NewTask("replica-a", "Call dentist")
	task.SetDue(&due, "replica-a")

	clone := task.Clone()
	later := due.Add(24 * time.Hour)
	clone.SetDue(&later, "replica-a")

	if !task.Due().Equal(due) {
		t.Fatalf("mutating a clone changed the original due: %v", task.Due())
	}
}

func TestJSONRoundTripAndUnknownFields(t *testing.T) {
	due := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	task := NewTask("replica-a", "Call dentist")
	task.SetDue(&due, "replica-a")
	task.SetPriority(PriorityHigh, "replica-a")

	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Task
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !task.Equal(&decoded) {
		t.Fatalf("round trip changed the task: %+v != %+v", decoded.Record(), task.Record())
	}

	// A newer replica may add fields; older readers must ignore them.
	withExtra := []byte(`{"id":"t1","title":"x","priority":"low","created_at":"2024-03-01T12:00:00Z","modified_at":"2024-03-01T12:00:00Z","modified_by":"a","labels":["new-field"]}`)
	if err := json.Unmarshal(withExtra, &decoded); err != nil {
		t.Fatalf("unknown fields must be tolerated: %v", err)
	}

	if err := json.Unmarshal([]byte(`{"title":"no id"}`), &decoded); err == nil {
		t.Fatal("expected error for record without id")
	}
}

func TestParsePriority(t *testing.T) {
	for _, name := range []string{"low", "medium", "high"} {
		p, err := ParsePriority(name)
		if err != nil {
			t.Fatalf("ParsePriority(%q): %v", name, err)
		}
		if p.String() != name {
			t.Fatalf("String() = %q; want %q", p.String(), name)
		}
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Fatal("expected error for unknown priority")
	}
}
