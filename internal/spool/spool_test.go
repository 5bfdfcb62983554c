package spool

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/outreachops/intakesync/internal/store"
	"github.com/outreachops/intakesync/internal/types"
)

func setupTest(t *testing.T) (*Watcher, *store.DB, string) {
	t.Helper()

	tmpDir := t.TempDir()

	db, err := store.Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	spoolDir := filepath.Join(tmpDir, "spool")
	watcher, err := New(db, spoolDir, &Config{
		DefaultOwnerID: "user-1",
		Logger:         log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(func() { watcher.watcher.Close() })

	return watcher, db, spoolDir
}

func writeDrop(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write drop file: %v", err)
	}
	return path
}

func TestImportFile(t *testing.T) {
	watcher, db, spoolDir := setupTest(t)
	ctx := context.Background()

	path := writeDrop(t, spoolDir, "riverside.json", `{
		"org_name": "Riverside Shelter",
		"contact_email": "jordan@example.org",
		"sandwich_count": 120,
		"event_date": "2024-06-20"
	}`)

	if err := watcher.ImportFile(ctx, path); err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}

	records, err := db.ListRecords(ctx, store.ListRecordsFilter{})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("record count = %d, want 1", len(records))
	}

	record := records[0]
	if record.OrgName != "Riverside Shelter" {
		t.Errorf("org = %q", record.OrgName)
	}
	if record.OwnerID != "user-1" {
		t.Errorf("owner = %q, want default owner", record.OwnerID)
	}
	if record.Status != types.StatusNew {
		t.Errorf("status = %q, want New", record.Status)
	}
	if record.ExternalEventID != "" {
		t.Errorf("spool imports must not carry an external event id, got %q", record.ExternalEventID)
	}

	tasks, err := db.ListTasksForRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("ListTasksForRecord failed: %v", err)
	}
	if len(tasks) != 4 {
		t.Errorf("task count = %d, want 4 (event date present)", len(tasks))
	}

	// Processed file is renamed out of the way.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("drop file still present after import")
	}
	if _, err := os.Stat(path + ".done"); err != nil {
		t.Errorf("marked file missing: %v", err)
	}
}

func TestImportFileWithoutEventDate(t *testing.T) {
	watcher, db, spoolDir := setupTest(t)
	ctx := context.Background()

	path := writeDrop(t, spoolDir, "nodate.json", `{"org_name": "Harbor House"}`)
	if err := watcher.ImportFile(ctx, path); err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}

	records, err := db.ListRecords(ctx, store.ListRecordsFilter{})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("record count = %d, want 1", len(records))
	}

	tasks, err := db.ListTasksForRecord(ctx, records[0].ID)
	if err != nil {
		t.Fatalf("ListTasksForRecord failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("task count = %d, want 0 without an event date", len(tasks))
	}
}

func TestImportDirSkipsBadFiles(t *testing.T) {
	watcher, db, spoolDir := setupTest(t)
	ctx := context.Background()

	writeDrop(t, spoolDir, "good.json", `{"org_name": "Good Org"}`)
	bad := writeDrop(t, spoolDir, "bad.json", `{not json`)
	writeDrop(t, spoolDir, "ignored.txt", `not a drop file`)

	imported, err := watcher.ImportDir(ctx)
	if err != nil {
		t.Fatalf("ImportDir failed: %v", err)
	}
	if imported != 1 {
		t.Errorf("imported = %d, want 1", imported)
	}

	records, err := db.ListRecords(ctx, store.ListRecordsFilter{})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("record count = %d, want 1", len(records))
	}

	// The bad file is marked .err, not retried forever.
	if _, err := os.Stat(bad + ".err"); err != nil {
		t.Errorf("bad file was not marked: %v", err)
	}
}

func TestImportFileRejectsBadDate(t *testing.T) {
	watcher, _, spoolDir := setupTest(t)

	path := writeDrop(t, spoolDir, "baddate.json", `{"org_name": "X", "event_date": "June 20th"}`)
	if err := watcher.ImportFile(context.Background(), path); err == nil {
		t.Fatal("expected an error for an unparseable event date")
	}
}
