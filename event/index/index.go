/*
Package index maintains the secondary lookup structures over the live event
set.

PURPOSE:
  Answers the two questions the store asks on every read and write without
  scanning every record:
  - Which records fall on days [from, to]?       (by-date index)
  - Who, if anyone, holds this day's start slot?  (slot index)

STRUCTURES:
  byDay:  sorted slice of Days (binary search) + per-day ID sets.
          Range lookups are O(log n + k).
  slots:  map[(Day, StartTime)] -> ID, Fixed records only. O(1) collision checks.
  owner:  map[ID] -> the keys a record currently occupies, so Remove does not
          need the record.

CONSISTENCY:
  The index is not safe for concurrent use on its own. The store mutates it
  only while holding its write lock, and only after the durable write has
  succeeded, so the index always mirrors committed state. Insert and Replace
  check for conflicts before touching anything: a rejected call leaves the
  index exactly as it was.

SEE ALSO:
  - schedule/store.go: Owner of the index
  - event/errors.go: SlotConflictError
*/
package index

import (
	"sort"

	"github.com/warp/calendar-engine/event"
)

type slotKey struct {
	Day       event.Day
	StartTime string
}

type entry struct {
	day  event.Day
	slot *slotKey // nil for all-day records
}

// Index is the pair of secondary indexes over the live record set.
type Index struct {
	// days is sorted and holds each day with at least one record.
	days  []event.Day
	byDay map[event.Day]map[event.ID]struct{}
	slots map[slotKey]event.ID
	owner map[event.ID]entry
}

// New returns an empty index.
func New() *Index {
	return &Index{
		byDay: make(map[event.Day]map[event.ID]struct{}),
		slots: make(map[slotKey]event.ID),
		owner: make(map[event.ID]entry),
	}
}

// Len returns the number of indexed records.
func (ix *Index) Len() int { return len(ix.owner) }

// Has reports whether id is indexed.
func (ix *Index) Has(id event.ID) bool {
	_, ok := ix.owner[id]
	return ok
}

// =============================================================================
// COLLISION CHECKS
// =============================================================================

// CheckSlotFree reports whether the (day, startTime) slot is free for a record
// with the given ID. A slot held by excluding itself counts as free. When the
// slot is taken, the occupant's ID is returned.
func (ix *Index) CheckSlotFree(day event.Day, startTime string, excluding event.ID) (bool, event.ID) {
	holder, ok := ix.slots[slotKey{Day: day, StartTime: startTime}]
	if !ok || holder == excluding {
		return true, 0
	}
	return false, holder
}

func (ix *Index) conflict(rec event.Record) error {
	if !rec.IsFixed() {
		return nil
	}
	day := rec.Day()
	if free, holder := ix.CheckSlotFree(day, rec.StartTime, rec.ID); !free {
		return &event.SlotConflictError{Day: day, StartTime: rec.StartTime, ExistingID: holder}
	}
	return nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Insert adds a record. It fails with *event.SlotConflictError if a Fixed
// record would take a slot held by a different ID. Inserting an ID that is
// already indexed replaces it.
func (ix *Index) Insert(rec event.Record) error {
	if err := ix.conflict(rec); err != nil {
		return err
	}
	ix.remove(rec.ID)
	ix.add(rec)
	return nil
}

// Replace atomically swaps the record indexed under oldID for rec. On
// conflict nothing changes.
func (ix *Index) Replace(oldID event.ID, rec event.Record) error {
	if rec.IsFixed() {
		day := rec.Day()
		holder, taken := ix.slots[slotKey{Day: day, StartTime: rec.StartTime}]
		if taken && holder != oldID && holder != rec.ID {
			return &event.SlotConflictError{Day: day, StartTime: rec.StartTime, ExistingID: holder}
		}
	}
	ix.remove(oldID)
	ix.remove(rec.ID)
	ix.add(rec)
	return nil
}

// Remove drops a record. It reports whether the ID was indexed.
func (ix *Index) Remove(id event.ID) bool {
	return ix.remove(id)
}

// Rebuild discards the current contents and indexes records from scratch.
// It fails on the first slot conflict, leaving the index empty.
func (ix *Index) Rebuild(records []event.Record) error {
	*ix = *New()
	for _, rec := range records {
		if err := ix.Insert(rec); err != nil {
			*ix = *New()
			return err
		}
	}
	return nil
}

func (ix *Index) add(rec event.Record) {
	day := rec.Day()
	ids, ok := ix.byDay[day]
	if !ok {
		ids = make(map[event.ID]struct{})
		ix.byDay[day] = ids
		ix.insertDay(day)
	}
	ids[rec.ID] = struct{}{}

	e := entry{day: day}
	if rec.IsFixed() {
		key := slotKey{Day: day, StartTime: rec.StartTime}
		ix.slots[key] = rec.ID
		e.slot = &key
	}
	ix.owner[rec.ID] = e
}

func (ix *Index) remove(id event.ID) bool {
	e, ok := ix.owner[id]
	if !ok {
		return false
	}
	delete(ix.owner, id)

	if e.slot != nil && ix.slots[*e.slot] == id {
		delete(ix.slots, *e.slot)
	}
	if ids := ix.byDay[e.day]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(ix.byDay, e.day)
			ix.deleteDay(e.day)
		}
	}
	return true
}

// Binary search for insertion point keeps days sorted without re-sorting.
func (ix *Index) insertDay(day event.Day) {
	i := sort.Search(len(ix.days), func(i int) bool { return ix.days[i] >= day })
	ix.days = append(ix.days, 0)
	copy(ix.days[i+1:], ix.days[i:])
	ix.days[i] = day
}

func (ix *Index) deleteDay(day event.Day) {
	i := sort.Search(len(ix.days), func(i int) bool { return ix.days[i] >= day })
	if i < len(ix.days) && ix.days[i] == day {
		ix.days = append(ix.days[:i], ix.days[i+1:]...)
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// QueryRange returns the IDs of all records on days [from, to], inclusive,
// ordered by day and then by ID.
func (ix *Index) QueryRange(from, to event.Day) []event.ID {
	if to < from {
		return nil
	}
	start := sort.Search(len(ix.days), func(i int) bool { return ix.days[i] >= from })

	var out []event.ID
	for i := start; i < len(ix.days) && ix.days[i] <= to; i++ {
		out = append(out, ix.IDsOn(ix.days[i])...)
	}
	return out
}

// IDsOn returns the IDs on a single day in ascending order.
func (ix *Index) IDsOn(day event.Day) []event.ID {
	set := ix.byDay[day]
	if len(set) == 0 {
		return nil
	}
	ids := make([]event.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Days returns the days that hold at least one record, in order.
func (ix *Index) Days() []event.Day {
	out := make([]event.Day, len(ix.days))
	copy(out, ix.days)
	return out
}

// SlotHolder returns the ID holding (day, startTime), if any.
func (ix *Index) SlotHolder(day event.Day, startTime string) (event.ID, bool) {
	id, ok := ix.slots[slotKey{Day: day, StartTime: startTime}]
	return id, ok
}

// Clone returns an independent copy of the index.
func (ix *Index) Clone() *Index {
	c := &Index{
		days:  append([]event.Day(nil), ix.days...),
		byDay: make(map[event.Day]map[event.ID]struct{}, len(ix.byDay)),
		slots: make(map[slotKey]event.ID, len(ix.slots)),
		owner: make(map[event.ID]entry, len(ix.owner)),
	}
	for d, ids := range ix.byDay {
		set := make(map[event.ID]struct{}, len(ids))
		for id := range ids {
			set[id] = struct{}{}
		}
		c.byDay[d] = set
	}
	for k, v := range ix.slots {
		c.slots[k] = v
	}
	for id, e := range ix.owner {
		if e.slot != nil {
			key := *e.slot
			e.slot = &key
		}
		c.owner[id] = e
	}
	return c
}
