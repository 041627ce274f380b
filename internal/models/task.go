// Package models defines the task entity shared by every replica.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// now is the modification clock. Replaced in tests.
var now = time.Now

// Task is a single task-list item. All fields are unexported so that every
// mutation goes through a method that advances the modification clock; the
// merge algorithm depends on that invariant holding for every write path.
type Task struct {
	id          string
	title       string
	description string
	due         *time.Time
	priority    Priority
	completed   bool
	createdAt   time.Time
	modifiedAt  time.Time
	modifiedBy  string
	deleted     bool
}

// NewTask creates a task owned by the given replica, stamping the id and
// both timestamps in one step. The id is a random UUID so that replicas
// creating tasks independently never collide.
func NewTask(replicaID, title string) Task {
	ts := now().UTC()
	return Task{
		id:         uuid.NewString(),
		title:      title,
		priority:   PriorityMedium,
		createdAt:  ts,
		modifiedAt: ts,
		modifiedBy: replicaID,
	}
}

// ID returns the immutable task identifier.
func (t *Task) ID() string { return t.id }

// Title returns the task title.
func (t *Task) Title() string { return t.title }

// Description returns the free-form description.
func (t *Task) Description() string { return t.description }

// Due returns the optional due time, or nil.
func (t *Task) Due() *time.Time { return t.due }

// Priority returns the task priority.
func (t *Task) Priority() Priority { return t.priority }

// Completed reports whether the task is done.
func (t *Task) Completed() bool { return t.completed }

// CreatedAt returns the creation timestamp, set once at creation.
func (t *Task) CreatedAt() time.Time { return t.createdAt }

// ModifiedAt returns the timestamp of the last mutation.
func (t *Task) ModifiedAt() time.Time { return t.modifiedAt }

// ModifiedBy returns the id of the replica that performed the last mutation.
func (t *Task) ModifiedBy() string { return t.modifiedBy }

// Deleted reports whether the task is a tombstone.
func (t *Task) Deleted() bool { return t.deleted }

// touch advances the modification clock. modifiedAt never goes backwards
// within one store's history, even if the wall clock does.
func (t *Task) touch(by string) {
	ts := now().UTC()
	if ts.Before(t.modifiedAt) {
		ts = t.modifiedAt
	}
	t.modifiedAt = ts
	t.modifiedBy = by
}

// SetTitle updates the title on behalf of the given replica.
func (t *Task) SetTitle(title, by string) {
	t.title = title
	t.touch(by)
}

// SetDescription updates the description on behalf of the given replica.
func (t *Task) SetDescription(description, by string) {
	t.description = description
	t.touch(by)
}

// SetDue updates the due time on behalf of the given replica.
// A nil due clears it.
func (t *Task) SetDue(due *time.Time, by string) {
	if due != nil {
		d := due.UTC()
		t.due = &d
	} else {
		t.due = nil
	}
	t.touch(by)
}

// SetPriority updates the priority on behalf of the given replica.
func (t *Task) SetPriority(p Priority, by string) {
	t.priority = p
	t.touch(by)
}

// SetCompleted toggles completion on behalf of the given replica.
func (t *Task) SetCompleted(done bool, by string) {
	t.completed = done
	t.touch(by)
}

// MarkDeleted tombstones the task on behalf of the given replica. Deletion
// is a mutation like any other, never a physical removal, so that it
// propagates to replicas still holding an older version.
func (t *Task) MarkDeleted(by string) {
	t.deleted = true
	t.touch(by)
}

// Same reports whether other is the same logical task. Merge equality
// compares only ids, never full content.
func (t *Task) Same(other *Task) bool { return t.id == other.id }

// Equal reports full structural equality, used for change reporting.
func (t *Task) Equal(other *Task) bool {
	if t.due != nil || other.due != nil {
		if t.due == nil || other.due == nil || !t.due.Equal(*other.due) {
			return false
		}
	}
	return t.id == other.id &&
		t.title == other.title &&
		t.description == other.description &&
		t.priority == other.priority &&
		t.completed == other.completed &&
		t.createdAt.Equal(other.createdAt) &&
		t.modifiedAt.Equal(other.modifiedAt) &&
		t.modifiedBy == other.modifiedBy &&
		t.deleted == other.deleted
}

// Clone returns an independent copy of the task.
func (t *Task) Clone() Task {
	c := *t
	if t.due != nil {
		d := *t.due
		c.due = &d
	}
	return c
}

// Record is the flattened wire and storage form of a Task.
type Record struct {
	// ID is the unique identifier for the task.
	ID string `json:"id"`
	// Title is the short task text.
	Title string `json:"title"`
	// Description holds optional free-form detail.
	Description string `json:"description,omitempty"`
	// Due is the optional due time.
	Due *time.Time `json:"due,omitempty"`
	// Priority is the task priority.
	Priority Priority `json:"priority"`
	// Completed marks the task as done.
	Completed bool `json:"completed"`
	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`
	// ModifiedAt is the timestamp of the last mutation, the merge authority.
	ModifiedAt time.Time `json:"modified_at"`
	// ModifiedBy is the replica that performed the last mutation.
	ModifiedBy string `json:"modified_by"`
	// Deleted marks the record as a tombstone.
	Deleted bool `json:"deleted,omitempty"`
}

// Record returns the task's wire form.
func (t *Task) Record() Record {
	var due *time.Time
	if t.due != nil {
		d := *t.due
		due = &d
	}
	return Record{
		ID:          t.id,
		Title:       t.title,
		Description: t.description,
		Due:         due,
		Priority:    t.priority,
		Completed:   t.completed,
		CreatedAt:   t.createdAt,
		ModifiedAt:  t.modifiedAt,
		ModifiedBy:  t.modifiedBy,
		Deleted:     t.deleted,
	}
}

// FromRecord rehydrates a task from its wire or storage form.
// The record must carry a non-empty id.
func FromRecord(r Record) (Task, error) {
	if r.ID == "" {
		return Task{}, fmt.Errorf("task record has empty id")
	}
	var due *time.Time
	if r.Due != nil {
		d := r.Due.UTC()
		due = &d
	}
	return Task{
		id:          r.ID,
		title:       r.Title,
		description: r.Description,
		due:         due,
		priority:    r.Priority,
		completed:   r.Completed,
		createdAt:   r.CreatedAt.UTC(),
		modifiedAt:  r.ModifiedAt.UTC(),
		modifiedBy:  r.ModifiedBy,
		deleted:     r.Deleted,
	}, nil
}

// MarshalJSON encodes the task through its Record form.
func (t Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Record())
}

// UnmarshalJSON decodes the task through its Record form. Unknown fields
// are ignored so older readers tolerate payloads from newer replicas.
func (t *Task) UnmarshalJSON(data []byte) error {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	task, err := FromRecord(r)
	if err != nil {
		return err
	}
	*t = task
	return nil
}
