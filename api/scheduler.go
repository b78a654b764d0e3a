/*
scheduler.go - Periodic ICS backup of the event store

PURPOSE:
  Writes the whole store as an ICS file on a cron schedule so the events
  survive loss of the database file and can be opened by any calendar app.

DESIGN:
  - robfig/cron drives the schedule, interpreted in the store's timezone
  - Each run exports LoadAll() through ics.Encode
  - The file is replaced atomically (temp file + rename), mode 0600
  - Last run time, event count and error are kept for the status endpoint

CONFIGURATION (config.BackupConfig):
  - Enabled:  whether Start schedules anything
  - Schedule: standard 5-field cron spec (default "0 3 * * *")
  - Path:     output file

USAGE:
  backup := NewBackupScheduler(store, cfg.Backup)
  backup.Start()
  // ... later
  backup.Stop()

SEE ALSO:
  - ics/ics.go: Encoder
  - internal/config/config.go: WriteFileAtomic
*/
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/calendar-engine/ics"
	"github.com/warp/calendar-engine/internal/config"
	"github.com/warp/calendar-engine/internal/log"
	"github.com/warp/calendar-engine/schedule"
)

// backupTimeout bounds one scheduled run.
const backupTimeout = time.Minute

// BackupScheduler periodically exports the store to an ICS file.
type BackupScheduler struct {
	Store    *schedule.Store
	Path     string
	Schedule string
	Enabled  bool

	mu      sync.Mutex
	cron    *cron.Cron
	lastRun time.Time
	lastN   int
	lastErr error
}

// BackupStatusDTO reports the scheduler state.
type BackupStatusDTO struct {
	Enabled   bool       `json:"enabled"`
	Schedule  string     `json:"schedule"`
	Path      string     `json:"path"`
	Running   bool       `json:"running"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	Events    int        `json:"events"`
	LastError string     `json:"last_error,omitempty"`
}

// NewBackupScheduler creates a scheduler from config.
func NewBackupScheduler(store *schedule.Store, cfg config.BackupConfig) *BackupScheduler {
	return &BackupScheduler{
		Store:    store,
		Path:     cfg.Path,
		Schedule: cfg.Schedule,
		Enabled:  cfg.Enabled,
	}
}

// Start schedules the backup job. It is a no-op when disabled or already
// running.
func (bs *BackupScheduler) Start() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		log.Info("backup scheduler disabled")
		return nil
	}
	if bs.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(bs.Store.Location()))
	if _, err := c.AddFunc(bs.Schedule, bs.runScheduled); err != nil {
		return fmt.Errorf("backup schedule %q: %w", bs.Schedule, err)
	}
	c.Start()
	bs.cron = c

	log.Info("backup scheduler started", "schedule", bs.Schedule, "path", bs.Path)
	return nil
}

// Stop unschedules the job and waits for a running backup to finish.
func (bs *BackupScheduler) Stop() {
	bs.mu.Lock()
	c := bs.cron
	bs.cron = nil
	bs.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	log.Info("backup scheduler stopped")
}

func (bs *BackupScheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()
	if _, err := bs.RunOnce(ctx); err != nil {
		log.Error("scheduled backup failed", err, "path", bs.Path)
	}
}

// RunOnce writes a backup now and returns the number of events written.
func (bs *BackupScheduler) RunOnce(ctx context.Context) (int, error) {
	if bs.Path == "" {
		return 0, errors.New("backup path is not set")
	}

	n, err := bs.write(ctx)

	bs.mu.Lock()
	bs.lastRun = time.Now()
	bs.lastN = n
	bs.lastErr = err
	bs.mu.Unlock()

	if err == nil {
		log.Info("backup written", "path", bs.Path, "events", n)
	}
	return n, err
}

func (bs *BackupScheduler) write(ctx context.Context) (int, error) {
	recs, err := bs.Store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if err := ics.Encode(&buf, recs, bs.Store.Location()); err != nil {
		return 0, fmt.Errorf("encode backup: %w", err)
	}
	if err := config.WriteFileAtomic(bs.Path, buf.Bytes(), 0o600); err != nil {
		return 0, fmt.Errorf("write backup: %w", err)
	}
	return len(recs), nil
}

// Status returns a snapshot of the scheduler state.
func (bs *BackupScheduler) Status() BackupStatusDTO {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	st := BackupStatusDTO{
		Enabled:  bs.Enabled,
		Schedule: bs.Schedule,
		Path:     bs.Path,
		Running:  bs.cron != nil,
		Events:   bs.lastN,
	}
	if !bs.lastRun.IsZero() {
		t := bs.lastRun
		st.LastRun = &t
	}
	if bs.lastErr != nil {
		st.LastError = bs.lastErr.Error()
	}
	if bs.cron != nil {
		if entries := bs.cron.Entries(); len(entries) > 0 {
			next := entries[0].Next
			st.NextRun = &next
		}
	}
	return st
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// BackupStatus returns the backup scheduler state.
func (h *Handler) BackupStatus(w http.ResponseWriter, r *http.Request) {
	if h.Backup == nil {
		writeError(w, http.StatusNotFound, "Backups are not configured", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Backup.Status())
}

// TriggerBackup writes a backup immediately.
func (h *Handler) TriggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.Backup == nil {
		writeError(w, http.StatusNotFound, "Backups are not configured", nil)
		return
	}
	if _, err := h.Backup.RunOnce(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Backup.Status())
}
