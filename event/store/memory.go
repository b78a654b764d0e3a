// Package store provides in-process event.Backend implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/calendar-engine/event"
)

// =============================================================================
// MEMORY BACKEND - In-memory rows (for testing/dev)
// =============================================================================

// Memory keeps rows in a map. It enforces the same (day, start_time)
// uniqueness on fixed rows as the SQLite schema so both backends reject the
// same writes.
type Memory struct {
	mu     sync.RWMutex
	rows   map[int64]event.Row
	opened bool

	// failures maps an operation name ("open", "load", "insert", "replace",
	// "delete", "delete_all") to the error it should return.
	failures map[string]error
}

func NewMemory(seed ...event.Row) *Memory {
	m := &Memory{
		rows:     make(map[int64]event.Row),
		failures: make(map[string]error),
	}
	for _, row := range seed {
		m.rows[row.ID] = row
	}
	return m
}

// FailOn makes every later call of op return err. A nil err clears it.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *Memory) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["open"]; err != nil {
		return err
	}
	m.opened = true
	return nil
}

// LoadAll returns rows ordered by date, then id.
func (m *Memory) LoadAll(_ context.Context) ([]event.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failures["load"]; err != nil {
		return nil, err
	}

	result := make([]event.Row, 0, len(m.rows))
	for _, row := range m.rows {
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) Insert(_ context.Context, row event.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["insert"]; err != nil {
		return err
	}
	if _, exists := m.rows[row.ID]; exists {
		return &event.StorageError{Op: "insert", Err: fmt.Errorf("duplicate id %d", row.ID)}
	}
	if err := m.checkSlotLocked(row); err != nil {
		return err
	}
	m.rows[row.ID] = row
	return nil
}

func (m *Memory) Replace(_ context.Context, row event.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["replace"]; err != nil {
		return err
	}
	if _, exists := m.rows[row.ID]; !exists {
		return &event.NotFoundError{ID: event.ID(row.ID)}
	}
	if err := m.checkSlotLocked(row); err != nil {
		return err
	}
	m.rows[row.ID] = row
	return nil
}

func (m *Memory) Delete(_ context.Context, id event.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["delete"]; err != nil {
		return err
	}
	if _, exists := m.rows[int64(id)]; !exists {
		return &event.NotFoundError{ID: id}
	}
	delete(m.rows, int64(id))
	return nil
}

func (m *Memory) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["delete_all"]; err != nil {
		return err
	}
	m.rows = make(map[int64]event.Row)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

// IsOpen reports whether Open succeeded and Close has not been called.
func (m *Memory) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opened
}

// Rows returns a copy of the stored rows keyed by ID.
func (m *Memory) Rows() map[int64]event.Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]event.Row, len(m.rows))
	for id, row := range m.rows {
		out[id] = row
	}
	return out
}

func (m *Memory) checkSlotLocked(row event.Row) error {
	if row.Duration != string(event.Fixed) {
		return nil
	}
	for id, other := range m.rows {
		if id == row.ID || other.Duration != string(event.Fixed) {
			continue
		}
		if other.Day == row.Day && other.StartTime == row.StartTime {
			day, _ := event.ParseDay(row.Day)
			return &event.SlotConflictError{Day: day, StartTime: row.StartTime, ExistingID: event.ID(id)}
		}
	}
	return nil
}
