package sync

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/outreachops/intakesync/internal/platform"
	"github.com/outreachops/intakesync/internal/store"
	"github.com/outreachops/intakesync/internal/types"
)

var testUser = User{ID: "user-1", RemoteID: "remote-7"}

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	return db
}

// newTestSyncer wires a syncer against a fake platform server.
func newTestSyncer(t *testing.T, db *store.DB, handler http.Handler) Syncer {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := platform.NewClient(platform.Config{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		WakeDelay:      time.Millisecond,
		RetryBaseDelay: time.Millisecond,
		Logger:         log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("failed to create platform client: %v", err)
	}

	return New(db, client, log.New(io.Discard, "", 0))
}

// listingHandler serves a fixed listing body from the event-requests
// endpoint and 200s everything else (wake pings, patches).
func listingHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/event-requests" && r.Method == http.MethodGet {
			w.Write([]byte(body))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

// seedRecord inserts an existing local record for merge tests.
func seedRecord(t *testing.T, db *store.DB, id, externalID string, s types.Status) {
	t.Helper()

	now := time.Now().UTC()
	err := db.CreateRecord(&types.IntakeRecord{
		ID:              id,
		ExternalEventID: externalID,
		Status:          s,
		OwnerID:         testUser.ID,
		OrgName:         "Seeded Org",
		ContactEmail:    "seed@example.org",
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}
}

func syncLogEntries(t *testing.T, db *store.DB) []*types.SyncLogEntry {
	t.Helper()

	entries, err := db.ListRecentSyncLogs(context.Background(), 100)
	if err != nil {
		t.Fatalf("failed to list sync logs: %v", err)
	}
	return entries
}

func TestPullImportsNewRequests(t *testing.T) {
	db := setupTestDB(t)
	syncer := newTestSyncer(t, db, listingHandler(`{"data":[
		{"id":"evt-1","status":"new","organizationName":"Northside Pantry","contactEmail":"np@example.org","sandwichCount":150,"eventDate":"2024-06-20"},
		{"id":"evt-2","status":"in_process","contactName":"Lee Chen"}
	]}`))

	result, err := syncer.Pull(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if result.Imported != 2 || result.Updated != 0 {
		t.Fatalf("result = %+v, want 2 imported / 0 updated", result)
	}

	index, err := db.ListRecordsWithExternalID(context.Background())
	if err != nil {
		t.Fatalf("failed to read back records: %v", err)
	}

	first := index["evt-1"]
	if first == nil {
		t.Fatal("evt-1 was not imported")
	}
	if first.Status != types.StatusNew {
		t.Errorf("evt-1 status = %q, want New", first.Status)
	}
	if first.OwnerID != testUser.ID {
		t.Errorf("evt-1 owner = %q, want %s", first.OwnerID, testUser.ID)
	}
	if first.OrgName != "Northside Pantry" || first.SandwichCount != 150 {
		t.Errorf("evt-1 fields not copied: %+v", first)
	}
	if first.Notes == "" {
		t.Error("evt-1 has no provenance marker in notes")
	}
	if first.EventDate == nil {
		t.Fatal("evt-1 event date not copied")
	}

	// Import with an event date schedules the canonical plan.
	tasks, err := db.ListTasksForRecord(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(tasks) != 4 {
		t.Errorf("evt-1 task count = %d, want 4", len(tasks))
	}

	second := index["evt-2"]
	if second == nil {
		t.Fatal("evt-2 was not imported")
	}
	if second.Status != types.StatusInProcess {
		t.Errorf("evt-2 status = %q, want In Process", second.Status)
	}
	tasks, err = db.ListTasksForRecord(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("evt-2 task count = %d, want 0 (no event date)", len(tasks))
	}

	entries := syncLogEntries(t, db)
	if len(entries) != 1 {
		t.Fatalf("sync log entries = %d, want 1", len(entries))
	}
	if entries[0].Direction != types.DirectionPull || entries[0].Outcome != types.OutcomeSuccess {
		t.Errorf("entry = %+v", entries[0])
	}
	if entries[0].RecordCount != 2 {
		t.Errorf("record count = %d, want 2", entries[0].RecordCount)
	}
}

func TestPullIdempotent(t *testing.T) {
	db := setupTestDB(t)
	listing := `[{"id":"evt-1","status":"new"},{"id":"evt-2","status":"scheduled"}]`
	syncer := newTestSyncer(t, db, listingHandler(listing))

	first, err := syncer.Pull(context.Background(), testUser)
	if err != nil {
		t.Fatalf("first Pull failed: %v", err)
	}
	if first.Imported != 2 {
		t.Fatalf("first pull imported = %d, want 2", first.Imported)
	}

	second, err := syncer.Pull(context.Background(), testUser)
	if err != nil {
		t.Fatalf("second Pull failed: %v", err)
	}
	if second.Imported != 0 || second.Updated != 0 {
		t.Errorf("second pull = %+v, want nothing imported or updated", second)
	}

	if entries := syncLogEntries(t, db); len(entries) != 2 {
		t.Errorf("sync log entries = %d, want one per invocation", len(entries))
	}
}

func TestPullForwardOnlyMerge(t *testing.T) {
	tests := []struct {
		name       string
		local      types.Status
		remote     string
		want       types.Status
		wantUpdate bool
	}{
		{"remote ahead advances", types.StatusNew, "scheduled", types.StatusScheduled, true},
		{"remote behind ignored", types.StatusScheduled, "new", types.StatusScheduled, false},
		{"equal rank ignored", types.StatusInProcess, "in_process", types.StatusInProcess, false},
		{"unknown remote ranks as new", types.StatusInProcess, "mystery", types.StatusInProcess, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			seedRecord(t, db, "rec-seed", "evt-1", tt.local)

			syncer := newTestSyncer(t, db,
				listingHandler(`[{"id":"evt-1","status":"`+tt.remote+`"}]`))

			result, err := syncer.Pull(context.Background(), testUser)
			if err != nil {
				t.Fatalf("Pull failed: %v", err)
			}

			wantUpdated := 0
			if tt.wantUpdate {
				wantUpdated = 1
			}
			if result.Updated != wantUpdated || result.Imported != 0 {
				t.Errorf("result = %+v, want updated=%d imported=0", result, wantUpdated)
			}

			got, err := db.GetRecord("rec-seed")
			if err != nil {
				t.Fatalf("GetRecord failed: %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("status = %q, want %q", got.Status, tt.want)
			}
		})
	}
}

func TestPullTouchesOnlyStatus(t *testing.T) {
	db := setupTestDB(t)
	seedRecord(t, db, "rec-seed", "evt-1", types.StatusNew)

	syncer := newTestSyncer(t, db, listingHandler(
		`[{"id":"evt-1","status":"scheduled","organizationName":"Hijacked Org","sandwichCount":999}]`))

	if _, err := syncer.Pull(context.Background(), testUser); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	got, err := db.GetRecord("rec-seed")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Status != types.StatusScheduled {
		t.Errorf("status = %q, want Scheduled", got.Status)
	}
	if got.OrgName != "Seeded Org" {
		t.Errorf("org name was overwritten to %q; pull may only touch status", got.OrgName)
	}
	if got.SandwichCount != 0 {
		t.Errorf("sandwich count was overwritten to %d", got.SandwichCount)
	}
}

func TestPullRequiresLinkedAccount(t *testing.T) {
	db := setupTestDB(t)

	var hits atomic.Int32
	syncer := newTestSyncer(t, db, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))

	_, err := syncer.Pull(context.Background(), User{ID: "user-1"})
	if !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("wire calls = %d, want 0", hits.Load())
	}
	if entries := syncLogEntries(t, db); len(entries) != 0 {
		t.Errorf("sync log entries = %d, want 0 before any wire call", len(entries))
	}
}

func TestPullRemoteUnavailableAudited(t *testing.T) {
	db := setupTestDB(t)

	syncer := newTestSyncer(t, db, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			return // wake ping succeeds
		}
		conn, _, _ := w.(http.Hijacker).Hijack()
		conn.Close()
	}))

	_, err := syncer.Pull(context.Background(), testUser)
	if !errors.Is(err, platform.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}

	entries := syncLogEntries(t, db)
	if len(entries) != 1 {
		t.Fatalf("sync log entries = %d, want exactly 1", len(entries))
	}
	entry := entries[0]
	if entry.Direction != types.DirectionPull {
		t.Errorf("direction = %q, want pull", entry.Direction)
	}
	if entry.Outcome != types.OutcomeError {
		t.Errorf("outcome = %q, want error", entry.Outcome)
	}
	if entry.Error == "" {
		t.Error("error text is empty")
	}
}

func TestPushSuccess(t *testing.T) {
	db := setupTestDB(t)

	event := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	err := db.CreateRecord(&types.IntakeRecord{
		ID:              "rec-1",
		ExternalEventID: "evt-1",
		Status:          types.StatusScheduled,
		OwnerID:         testUser.ID,
		OrgName:         "Northside Pantry",
		ContactEmail:    "np@example.org",
		SandwichCount:   150,
		EventDate:       &event,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("failed to create record: %v", err)
	}

	var patched atomic.Bool
	syncer := newTestSyncer(t, db, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			return
		}
		if r.URL.Path != "/api/event-requests/evt-1" {
			t.Errorf("patch path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		for _, want := range []string{`"status":"scheduled"`, `"organizationName":"Northside Pantry"`, `"eventDate":"2024-06-20"`} {
			if !contains(string(body), want) {
				t.Errorf("patch body missing %s: %s", want, body)
			}
		}
		patched.Store(true)
	}))

	result, err := syncer.Push(context.Background(), "rec-1", testUser)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if result.ExternalEventID != "evt-1" {
		t.Errorf("result = %+v", result)
	}
	if !patched.Load() {
		t.Error("remote was never patched")
	}

	// Push must not mutate local status.
	got, err := db.GetRecord("rec-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Status != types.StatusScheduled {
		t.Errorf("local status changed to %q", got.Status)
	}

	entries := syncLogEntries(t, db)
	if len(entries) != 1 {
		t.Fatalf("sync log entries = %d, want 1", len(entries))
	}
	if entries[0].Direction != types.DirectionPush || entries[0].RecordCount != 1 {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestPushPreconditions(t *testing.T) {
	db := setupTestDB(t)
	seedRecord(t, db, "rec-local", "", types.StatusScheduled)
	seedRecord(t, db, "rec-owned", "evt-1", types.StatusScheduled)

	tests := []struct {
		name     string
		recordID string
		user     User
		wantErr  error
	}{
		{"missing record", "rec-missing", testUser, ErrRecordNotFound},
		{"locally created record", "rec-local", testUser, ErrNotRemoteSourced},
		{"wrong owner", "rec-owned", User{ID: "intruder", RemoteID: "r-9"}, ErrForbidden},
	}

	var hits atomic.Int32
	syncer := newTestSyncer(t, db, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := syncer.Push(context.Background(), tt.recordID, tt.user)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if hits.Load() != 0 {
		t.Errorf("wire calls = %d, want 0 on precondition failures", hits.Load())
	}
	if entries := syncLogEntries(t, db); len(entries) != 0 {
		t.Errorf("sync log entries = %d, want 0 on precondition failures", len(entries))
	}
}

func TestPushAdminOverridesOwnership(t *testing.T) {
	db := setupTestDB(t)
	seedRecord(t, db, "rec-1", "evt-1", types.StatusScheduled)

	syncer := newTestSyncer(t, db, listingHandler(`[]`))

	admin := User{ID: "admin-1", RemoteID: "r-admin", Admin: true}
	if _, err := syncer.Push(context.Background(), "rec-1", admin); err != nil {
		t.Fatalf("admin push failed: %v", err)
	}
}

func TestPushRemoteRejectedAudited(t *testing.T) {
	db := setupTestDB(t)
	seedRecord(t, db, "rec-1", "evt-1", types.StatusScheduled)

	syncer := newTestSyncer(t, db, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		}
	}))

	_, err := syncer.Push(context.Background(), "rec-1", testUser)
	if !errors.Is(err, platform.ErrRemoteRejected) {
		t.Fatalf("expected ErrRemoteRejected, got %v", err)
	}

	entries := syncLogEntries(t, db)
	if len(entries) != 1 {
		t.Fatalf("sync log entries = %d, want 1", len(entries))
	}
	if entries[0].Outcome != types.OutcomeError || entries[0].Error == "" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestMarkInProcess(t *testing.T) {
	db := setupTestDB(t)
	seedRecord(t, db, "rec-1", "evt-1", types.StatusInProcess)

	var body atomic.Value
	syncer := newTestSyncer(t, db, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			data, _ := io.ReadAll(r.Body)
			body.Store(string(data))
		}
	}))

	if err := syncer.MarkInProcess(context.Background(), "rec-1", testUser); err != nil {
		t.Fatalf("MarkInProcess failed: %v", err)
	}

	got, _ := body.Load().(string)
	if !contains(got, `"status":"in_process"`) {
		t.Errorf("patch body = %q", got)
	}

	if entries := syncLogEntries(t, db); len(entries) != 1 {
		t.Errorf("sync log entries = %d, want 1", len(entries))
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
