// Package spool imports intake records dropped as JSON files into a
// watched directory.
//
// The watcher:
// 1. Imports any files already present at startup
// 2. Watches the spool directory for new *.json files
// 3. Debounces rapid writes so partially written files settle
// 4. Renames processed files to *.json.done (or *.json.err on failure)
//
// This is a purely local path; the spool never talks to the remote
// platform.
package spool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/outreachops/intakesync/internal/schedule"
	"github.com/outreachops/intakesync/internal/store"
	"github.com/outreachops/intakesync/internal/types"
)

// DropFile is the JSON shape accepted in the spool directory.
type DropFile struct {
	OrgName       string `json:"org_name"`
	ContactName   string `json:"contact_name"`
	ContactEmail  string `json:"contact_email"`
	ContactPhone  string `json:"contact_phone"`
	SandwichCount int    `json:"sandwich_count"`
	Logistics     string `json:"logistics"`
	Notes         string `json:"notes"`
	OwnerID       string `json:"owner_id"`

	// EventDate is YYYY-MM-DD; when present the record gets its task
	// plan scheduled on import.
	EventDate string `json:"event_date"`
}

// Config holds configuration for the watcher.
type Config struct {
	// DebounceInterval is how long a file must sit unchanged before it
	// is imported. Batches rapid writes together.
	DebounceInterval time.Duration

	// DefaultOwnerID is assigned to drop files that don't name one.
	DefaultOwnerID string

	// OnImport, when set, is called after each successful import.
	OnImport func(record *types.IntakeRecord)

	// Logger for watcher activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 250 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[spool] ", log.LstdFlags),
	}
}

// Watcher imports dropped intake files into the store.
type Watcher struct {
	db     *store.DB
	dir    string
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Watcher for the given spool directory.
func New(db *store.DB, dir string, config *Config) (*Watcher, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("spool directory cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[spool] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 250 * time.Millisecond
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		db:          db,
		dir:         dir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
	}, nil
}

// Start imports existing files, then watches for new ones.
// Blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.config.Logger.Printf("Watching spool directory: %s", w.dir)

	if _, err := w.ImportDir(ctx); err != nil {
		return fmt.Errorf("initial spool import failed: %w", err)
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}

	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.watchFileEvents(ctx)
	go w.processChangeQueue(ctx)

	<-ctx.Done()
	return w.Stop()
}

// Stop shuts the watcher down and waits for goroutines to exit.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// ImportDir imports every pending *.json file currently in the spool
// directory. Individual file failures are logged and the file is marked
// *.json.err; they don't stop the rest of the batch.
func (w *Watcher) ImportDir(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read spool directory: %w", err)
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if err := w.ImportFile(ctx, path); err != nil {
			w.config.Logger.Printf("WARNING: failed to import %s: %v", entry.Name(), err)
			w.markFile(path, ".err")
			continue
		}
		imported++
	}

	return imported, nil
}

// ImportFile reads one drop file, creates the record (and its task plan
// when an event date is present), and renames the file to *.done.
func (w *Watcher) ImportFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read drop file: %w", err)
	}

	var drop DropFile
	if err := json.Unmarshal(data, &drop); err != nil {
		return fmt.Errorf("failed to parse drop file: %w", err)
	}

	owner := drop.OwnerID
	if owner == "" {
		owner = w.config.DefaultOwnerID
	}

	now := time.Now().UTC()
	record := &types.IntakeRecord{
		ID:            fmt.Sprintf("rec-%s", uuid.NewString()),
		Status:        types.StatusNew,
		OwnerID:       owner,
		OrgName:       drop.OrgName,
		ContactName:   drop.ContactName,
		ContactEmail:  drop.ContactEmail,
		ContactPhone:  drop.ContactPhone,
		SandwichCount: drop.SandwichCount,
		Logistics:     drop.Logistics,
		Notes:         drop.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if drop.EventDate != "" {
		event, err := time.Parse("2006-01-02", drop.EventDate)
		if err != nil {
			return fmt.Errorf("invalid event_date %q: %w", drop.EventDate, err)
		}
		record.EventDate = &event
	}

	if err := w.db.CreateRecordContext(ctx, record); err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}

	if plan := schedule.Plan(record.ID, record.CreatedAt, record.EventDate); len(plan) > 0 {
		if err := w.db.InsertTasks(ctx, plan); err != nil {
			return fmt.Errorf("failed to schedule tasks: %w", err)
		}
	}

	w.markFile(path, ".done")
	w.config.Logger.Printf("Imported record %s from %s", record.ID, filepath.Base(path))

	if w.config.OnImport != nil {
		w.config.OnImport(record)
	}
	return nil
}

// markFile renames a processed file so it isn't picked up again.
func (w *Watcher) markFile(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil {
		w.config.Logger.Printf("WARNING: failed to rename %s: %v", path, err)
	}
}

// watchFileEvents queues create/write events for debounced processing.
func (w *Watcher) watchFileEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.changeQueueMu.Lock()
			w.changeQueue[event.Name] = time.Now()
			w.changeQueueMu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("watch error: %v", err)
		}
	}
}

// processChangeQueue imports files whose last event is older than the
// debounce interval.
func (w *Watcher) processChangeQueue(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainQueue(ctx)
		}
	}
}

func (w *Watcher) drainQueue(ctx context.Context) {
	cutoff := time.Now().Add(-w.config.DebounceInterval)

	w.changeQueueMu.Lock()
	var ready []string
	for path, queued := range w.changeQueue {
		if queued.Before(cutoff) {
			ready = append(ready, path)
			delete(w.changeQueue, path)
		}
	}
	w.changeQueueMu.Unlock()

	for _, path := range ready {
		if _, err := os.Stat(path); err != nil {
			continue // already processed or removed
		}
		if err := w.ImportFile(ctx, path); err != nil {
			w.config.Logger.Printf("WARNING: failed to import %s: %v", filepath.Base(path), err)
			w.markFile(path, ".err")
		}
	}
}
