package roster

import (
	"slices"
	"sync"

	"visitordesk/internal/visitor"
)

// Roster is one page's local view of the visitor collection, keyed by id.
// Every mutation is a list-to-list transform applied under one lock.
type Roster struct {
	mu      sync.RWMutex
	records []visitor.Record
}

// New returns a roster holding initial.
func New(initial ...visitor.Record) *Roster {
	r := &Roster{}
	for _, rec := range initial {
		r.records = append(r.records, visitor.EnsureID(rec))
	}
	return r
}

// Apply replaces the list with fn(current) atomically and returns the result.
// fn receives a private copy.
func (r *Roster) Apply(fn func([]visitor.Record) []visitor.Record) []visitor.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = fn(slices.Clone(r.records))
	return slices.Clone(r.records)
}

// Snapshot returns a copy of the current list.
func (r *Roster) Snapshot() []visitor.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.records)
}

// Len returns the number of records held.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Get returns the record with id.
func (r *Roster) Get(id string) (visitor.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := indexOf(r.records, id)
	if i < 0 {
		return visitor.Record{}, false
	}
	return r.records[i], true
}

// Replace swaps in rec for the record with the same id. It reports false
// when no such record is held.
func (r *Roster) Replace(rec visitor.Record) bool {
	var found bool
	r.Apply(func(list []visitor.Record) []visitor.Record {
		list, found = ReplaceByID(list, rec)
		return list
	})
	return found
}

// Upsert replaces rec by id or prepends it when unseen.
func (r *Roster) Upsert(rec visitor.Record) {
	r.Apply(func(list []visitor.Record) []visitor.Record {
		if out, ok := ReplaceByID(list, rec); ok {
			return out
		}
		return append([]visitor.Record{visitor.EnsureID(rec)}, list...)
	})
}

// Remove drops the record with id and reports whether it was held.
func (r *Roster) Remove(id string) bool {
	var found bool
	r.Apply(func(list []visitor.Record) []visitor.Record {
		before := len(list)
		list = RemoveByID(list, id)
		found = len(list) != before
		return list
	})
	return found
}

// Update applies fn to the record with id and stores the result.
func (r *Roster) Update(id string, fn func(visitor.Record) visitor.Record) (visitor.Record, bool) {
	var (
		out   visitor.Record
		found bool
	)
	r.Apply(func(list []visitor.Record) []visitor.Record {
		i := indexOf(list, id)
		if i < 0 {
			return list
		}
		found = true
		out = fn(list[i])
		out.ID = id
		list[i] = out
		return list
	})
	return out, found
}

// Merge prepends fetched records whose ids are not in local and keeps every
// local record untouched. Merge(Merge(l, f), f) equals Merge(l, f).
func Merge(local, fetched []visitor.Record) []visitor.Record {
	seen := make(map[string]struct{}, len(local))
	for _, rec := range local {
		seen[rec.ID] = struct{}{}
	}
	var fresh []visitor.Record
	for _, rec := range visitor.EnsureIDs(fetched) {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return local
	}
	return append(fresh, local...)
}

// Refresh behaves like Merge and also replaces seen records with the server
// copy unless busy reports an in-flight action on them. A locally latched
// OverdueEmailSent survives the refresh.
func Refresh(local, fetched []visitor.Record, busy func(id string) bool) []visitor.Record {
	server := make(map[string]visitor.Record, len(fetched))
	for _, rec := range visitor.EnsureIDs(fetched) {
		server[rec.ID] = rec
	}
	out := make([]visitor.Record, len(local))
	for i, rec := range local {
		out[i] = rec
		upd, ok := server[rec.ID]
		if !ok || (busy != nil && busy(rec.ID)) {
			continue
		}
		upd.OverdueEmailSent = upd.OverdueEmailSent || rec.OverdueEmailSent
		out[i] = upd
	}
	return Merge(out, fetched)
}

// ReplaceByID returns list with rec in place of the record sharing its id.
func ReplaceByID(list []visitor.Record, rec visitor.Record) ([]visitor.Record, bool) {
	i := indexOf(list, rec.ID)
	if i < 0 {
		return list, false
	}
	list[i] = rec
	return list, true
}

// RemoveByID returns list without the record with id.
func RemoveByID(list []visitor.Record, id string) []visitor.Record {
	return slices.DeleteFunc(list, func(rec visitor.Record) bool { return rec.ID == id })
}

func indexOf(list []visitor.Record, id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(list, func(rec visitor.Record) bool { return rec.ID == id })
}
