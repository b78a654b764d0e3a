/*
store.go - Transactional event store

PURPOSE:
  The single owner of the live event set. Every mutation is validated,
  checked against the slot index, made durable, applied to the in-memory
  projection and announced on the bus, in that order and one at a time.

CRITICAL INVARIANTS:
  1. ONE WRITER: A single goroutine commits mutations in arrival order.
     No two mutations interleave.
  2. DURABLE FIRST: The projection and index change only after the backend
     write succeeded. A failed write leaves nothing behind.
  3. UNIQUE SLOTS: At most one fixed event per (day, start time).
  4. ORDERED NOTIFICATIONS: Snapshot versions increase with every commit.

CONCURRENCY:
  Callers block on the writer for mutations and take a read lock for
  queries. Cancelling a caller's context stops the caller waiting; a write
  that already reached the writer still commits and is still published.

READINESS:
  Operations issued before Open completes wait until the store is ready,
  closed, or their context ends. Open is idempotent and may be retried after
  a storage failure.

USAGE:
  st := schedule.NewStore(sqlite.New(path), schedule.Options{Location: loc})
  if err := st.Open(ctx); err != nil {
      return err
  }
  defer st.Close()

  rec, err := st.Add(ctx, event.Record{Title: "Standup", ...})

SEE ALSO:
  - bus.go: Snapshot fan-out
  - query.go: Read-only views over the store
  - event/index/index.go: Slot and date indexes
  - event/backend.go: Durable medium
*/
package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/warp/calendar-engine/event"
	"github.com/warp/calendar-engine/event/index"
	"github.com/warp/calendar-engine/internal/log"
)

// Options configures a Store.
type Options struct {
	// Location is the zone dates are expressed and bucketed in. Defaults to
	// time.Local.
	Location *time.Location

	// IDs hands out record IDs. Defaults to an event.Sequence seeded above
	// the highest stored ID. A source with a Reset(event.ID) method is
	// re-seeded on Open.
	IDs event.IDSource

	// Now is the clock used for snapshot timestamps.
	Now func() time.Time
}

type resetter interface {
	Reset(floor event.ID)
}

// Store is the transactional event store.
type Store struct {
	backend event.Backend
	loc     *time.Location
	ids     event.IDSource
	now     func() time.Time
	bus     *Bus

	openMu    sync.Mutex
	opened    bool
	ready     chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
	jobs      chan job
	wg        sync.WaitGroup

	// Projection. Written only by the writer goroutine (and Open).
	mu      sync.RWMutex
	records map[event.ID]event.Record
	idx     *index.Index
	version uint64
}

type job struct {
	op   string
	ctx  context.Context
	run  func(ctx context.Context) (event.Record, error)
	done chan result
}

type result struct {
	rec event.Record
	err error
}

// NewStore creates a store over backend. Nothing is loaded until Open.
func NewStore(backend event.Backend, opts Options) *Store {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	ids := opts.IDs
	if ids == nil {
		ids = event.NewSequence(0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		backend: backend,
		loc:     loc,
		ids:     ids,
		now:     now,
		bus:     NewBus(),
		ready:   make(chan struct{}),
		closing: make(chan struct{}),
		jobs:    make(chan job),
		records: make(map[event.ID]event.Record),
		idx:     index.New(),
	}
}

// Location returns the zone the store expresses dates in.
func (s *Store) Location() *time.Location { return s.loc }

// Bus returns the change notification bus.
func (s *Store) Bus() *Bus { return s.bus }

// =============================================================================
// LIFECYCLE
// =============================================================================

// Open loads every stored record, rebuilds the indexes, starts the writer and
// publishes the initial snapshot. Calling Open again after success is a
// no-op; after a failure it retries.
func (s *Store) Open(ctx context.Context) error {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if s.isClosing() {
		return event.ErrClosed
	}
	if s.opened {
		return nil
	}

	if err := s.backend.Open(ctx); err != nil {
		log.Error("store open failed", err)
		return &event.StorageError{Op: "open", Err: err}
	}

	rows, err := s.backend.LoadAll(ctx)
	if err != nil {
		log.Error("store load failed", err)
		return &event.StorageError{Op: "load", Err: err}
	}

	records := make(map[event.ID]event.Record, len(rows))
	list := make([]event.Record, 0, len(rows))
	var maxID event.ID
	for _, row := range rows {
		rec, err := event.FromRow(row, s.loc)
		if err != nil {
			return &event.StorageError{Op: "load", Err: err}
		}
		records[rec.ID] = rec
		list = append(list, rec)
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}

	idx := index.New()
	if err := idx.Rebuild(list); err != nil {
		log.Error("stored events violate slot uniqueness", err)
		return &event.StorageError{Op: "load", Err: err}
	}
	if r, ok := s.ids.(resetter); ok {
		r.Reset(maxID)
	}

	s.mu.Lock()
	s.records = records
	s.idx = idx
	s.version++
	s.mu.Unlock()

	s.opened = true
	s.wg.Add(1)
	go s.run()

	s.publish()
	close(s.ready)

	log.Info("store opened", "events", len(records), "max_id", maxID, "tz", s.loc.String())
	return nil
}

// Close stops the writer, closes the bus and the backend. Pending callers
// get event.ErrClosed.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		s.wg.Wait()
		s.bus.Close()
		err = s.backend.Close()
		log.Info("store closed")
	})
	return err
}

func (s *Store) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// waitReady blocks until Open has completed.
func (s *Store) waitReady(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-s.closing:
		return event.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.isClosing() {
		return event.ErrClosed
	}
	return nil
}

// run is the writer goroutine.
func (s *Store) run() {
	defer s.wg.Done()
	for {
		select {
		case j := <-s.jobs:
			rec, err := j.run(context.WithoutCancel(j.ctx))
			if err != nil && !event.IsClientError(err) {
				log.Error("commit failed", err, "op", j.op)
			}
			j.done <- result{rec: rec, err: err}
		case <-s.closing:
			return
		}
	}
}

// submit hands a mutation to the writer and waits for its result.
func (s *Store) submit(ctx context.Context, op string, run func(ctx context.Context) (event.Record, error)) (event.Record, error) {
	if err := s.waitReady(ctx); err != nil {
		return event.Record{}, err
	}

	j := job{op: op, ctx: ctx, run: run, done: make(chan result, 1)}
	select {
	case s.jobs <- j:
	case <-s.closing:
		return event.Record{}, event.ErrClosed
	case <-ctx.Done():
		return event.Record{}, ctx.Err()
	}

	select {
	case r := <-j.done:
		return r.rec, r.err
	case <-ctx.Done():
		return event.Record{}, ctx.Err()
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Add validates rec, assigns it an ID if it has none (or one already in use)
// and commits it. It returns the stored record.
func (s *Store) Add(ctx context.Context, rec event.Record) (event.Record, error) {
	rec.Date = event.InLocation(rec.Date, s.loc)
	if err := event.Validate(rec); err != nil {
		return event.Record{}, err
	}

	return s.submit(ctx, "add", func(ctx context.Context) (event.Record, error) {
		s.mu.RLock()
		_, taken := s.records[rec.ID]
		s.mu.RUnlock()

		explicit := rec.ID > 0 && !taken
		if !explicit {
			rec.ID = s.ids.NextID()
		}

		if err := s.checkSlot(rec); err != nil {
			return event.Record{}, err
		}
		if err := s.backend.Insert(ctx, event.ToRow(rec)); err != nil {
			return event.Record{}, storageErr("insert", err)
		}
		if r, ok := s.ids.(resetter); ok && explicit {
			r.Reset(rec.ID)
		}

		s.mu.Lock()
		s.records[rec.ID] = rec
		err := s.idx.Insert(rec)
		s.version++
		s.mu.Unlock()
		if err != nil {
			// Backend and index disagree; the backend is authoritative.
			log.Error("index insert after commit", err, "id", rec.ID)
		}

		s.publish()
		log.Debug("event added", "id", rec.ID, "day", rec.Day(), "start", rec.StartTime)
		return rec, nil
	})
}

// Update replaces the record with rec.ID.
func (s *Store) Update(ctx context.Context, rec event.Record) error {
	rec.Date = event.InLocation(rec.Date, s.loc)
	if err := event.Validate(rec); err != nil {
		return err
	}

	_, err := s.submit(ctx, "update", func(ctx context.Context) (event.Record, error) {
		s.mu.RLock()
		_, exists := s.records[rec.ID]
		s.mu.RUnlock()
		if !exists {
			return event.Record{}, &event.NotFoundError{ID: rec.ID}
		}

		if err := s.checkSlot(rec); err != nil {
			return event.Record{}, err
		}
		if err := s.backend.Replace(ctx, event.ToRow(rec)); err != nil {
			return event.Record{}, storageErr("replace", err)
		}

		s.mu.Lock()
		s.records[rec.ID] = rec
		err := s.idx.Replace(rec.ID, rec)
		s.version++
		s.mu.Unlock()
		if err != nil {
			log.Error("index replace after commit", err, "id", rec.ID)
		}

		s.publish()
		log.Debug("event updated", "id", rec.ID, "day", rec.Day(), "start", rec.StartTime)
		return rec, nil
	})
	return err
}

// Delete removes the record with the given ID.
func (s *Store) Delete(ctx context.Context, id event.ID) error {
	_, err := s.submit(ctx, "delete", func(ctx context.Context) (event.Record, error) {
		s.mu.RLock()
		_, exists := s.records[id]
		s.mu.RUnlock()
		if !exists {
			return event.Record{}, &event.NotFoundError{ID: id}
		}

		if err := s.backend.Delete(ctx, id); err != nil {
			return event.Record{}, storageErr("delete", err)
		}

		s.mu.Lock()
		delete(s.records, id)
		s.idx.Remove(id)
		s.version++
		s.mu.Unlock()

		s.publish()
		log.Debug("event deleted", "id", id)
		return event.Record{}, nil
	})
	return err
}

// Clear removes every record. IDs keep counting up from where they were.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.submit(ctx, "clear", func(ctx context.Context) (event.Record, error) {
		if err := s.backend.DeleteAll(ctx); err != nil {
			return event.Record{}, storageErr("delete_all", err)
		}

		s.mu.Lock()
		n := len(s.records)
		s.records = make(map[event.ID]event.Record)
		s.idx = index.New()
		s.version++
		s.mu.Unlock()

		s.publish()
		log.Info("store cleared", "removed", n)
		return event.Record{}, nil
	})
	return err
}

func (s *Store) checkSlot(rec event.Record) error {
	if !rec.IsFixed() {
		return nil
	}
	day := rec.Day()

	s.mu.RLock()
	free, holder := s.idx.CheckSlotFree(day, rec.StartTime, rec.ID)
	s.mu.RUnlock()

	if !free {
		return &event.SlotConflictError{Day: day, StartTime: rec.StartTime, ExistingID: holder}
	}
	return nil
}

// storageErr keeps client-facing errors from the backend as they are and
// wraps everything else as a storage failure.
func storageErr(op string, err error) error {
	var se *event.StorageError
	if event.IsClientError(err) || errors.As(err, &se) {
		return err
	}
	return &event.StorageError{Op: op, Err: err}
}

// =============================================================================
// READS
// =============================================================================

// LoadAll returns every live record ordered by day, then all-day before
// timed, then start slot, then ID.
func (s *Store) LoadAll(ctx context.Context) ([]event.Record, error) {
	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(), nil
}

// Get returns the record with the given ID.
func (s *Store) Get(ctx context.Context, id event.ID) (event.Record, error) {
	if err := s.waitReady(ctx); err != nil {
		return event.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return event.Record{}, &event.NotFoundError{ID: id}
	}
	return rec, nil
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Version returns the version of the last committed change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// rangeLocked returns the records on days [from, to], ordered by day then ID.
func (s *Store) rangeLocked(from, to event.Day) []event.Record {
	ids := s.idx.QueryRange(from, to)
	out := make([]event.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Store) sortedLocked() []event.Record {
	out := make([]event.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Day(), out[j].Day()
		if di != dj {
			return di < dj
		}
		return event.CompareStart(out[i], out[j]) < 0
	})
	return out
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe returns a subscription that receives the latest snapshot now
// (once the store is open) and after every commit.
func (s *Store) Subscribe() *Subscription {
	return s.bus.Subscribe()
}

// publish sends the current state. Called by the writer (or Open) only, so
// versions reach the bus in commit order.
func (s *Store) publish() {
	s.mu.RLock()
	snap := Snapshot{
		Version: s.version,
		Events:  s.sortedLocked(),
		At:      s.now(),
	}
	s.mu.RUnlock()
	s.bus.Publish(snap)
}
