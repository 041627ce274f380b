// Package merge reconciles two replicas' task sets.
//
// Conflict resolution is last-writer-wins on modified_at, with a stable
// total order over (modified_by, id, content) breaking exact ties, so the
// result never depends on which replica initiates the sync. Timestamps
// come from device wall clocks; skew between devices is an accepted
// limitation, not something this package tries to correct.
package merge

import (
	"sort"
	"strings"
	"time"

	"github.com/atinyakov/TaskSync/internal/models"
)

// Result is a reconciled task set plus, per side, the ids whose winning
// version differs from that side's prior view.
type Result struct {
	// Tasks is the reconciled collection, tombstones included.
	Tasks map[string]models.Task
	// LocalChanged lists ids the local side must update, sorted.
	LocalChanged []string
	// IncomingChanged lists ids the incoming side must update, sorted.
	IncomingChanged []string
}

// Merge reconciles the union of both task sets. It is idempotent and
// commutative at the content level, and never drops a tombstone: a
// deletion is just a mutation whose timestamp competes like any other.
func Merge(local, incoming map[string]models.Task) Result {
	res := Result{Tasks: make(map[string]models.Task, len(local)+len(incoming))}

	for id, lt := range local {
		it, both := incoming[id]
		if !both {
			// New on the local side; the peer adopts it as-is.
			res.Tasks[id] = lt.Clone()
			res.IncomingChanged = append(res.IncomingChanged, id)
			continue
		}
		w := winner(lt, it)
		res.Tasks[id] = w.Clone()
		if !w.Equal(&lt) {
			res.LocalChanged = append(res.LocalChanged, id)
		}
		if !w.Equal(&it) {
			res.IncomingChanged = append(res.IncomingChanged, id)
		}
	}
	for id, it := range incoming {
		if _, both := local[id]; both {
			continue
		}
		res.Tasks[id] = it.Clone()
		res.LocalChanged = append(res.LocalChanged, id)
	}

	sort.Strings(res.LocalChanged)
	sort.Strings(res.IncomingChanged)
	return res
}

// winner picks the surviving version of one logical task. Strictly later
// modified_at wins outright. On an exact tie the order falls back to
// modified_by, then to a field-by-field content comparison, which is
// arbitrary but total, so both replicas pick the same version no matter
// who asks.
func winner(a, b models.Task) models.Task {
	if a.ModifiedAt().After(b.ModifiedAt()) {
		return a
	}
	if b.ModifiedAt().After(a.ModifiedAt()) {
		return b
	}
	if a.ModifiedBy() != b.ModifiedBy() {
		if a.ModifiedBy() > b.ModifiedBy() {
			return a
		}
		return b
	}
	if compareContent(a.Record(), b.Record()) >= 0 {
		return a
	}
	return b
}

// compareContent orders two snapshots of the same logical task by their
// content fields. Any total order serves; it only has to come out the
// same on every replica.
func compareContent(a, b models.Record) int {
	if c := strings.Compare(a.Title, b.Title); c != 0 {
		return c
	}
	if c := strings.Compare(a.Description, b.Description); c != 0 {
		return c
	}
	if c := compareDue(a.Due, b.Due); c != 0 {
		return c
	}
	if c := int(a.Priority) - int(b.Priority); c != 0 {
		return c
	}
	if c := compareBool(a.Completed, b.Completed); c != 0 {
		return c
	}
	if c := compareBool(a.Deleted, b.Deleted); c != 0 {
		return c
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

func compareDue(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	}
	return -1
}
