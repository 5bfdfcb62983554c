package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/outreachops/intakesync/internal/store"
	"github.com/outreachops/intakesync/internal/types"
)

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

func startTestServer(t *testing.T, db *store.DB) *Server {
	t.Helper()

	server := NewServer(db, &Config{
		Port:         0, // pick a free port
		PollInterval: 20 * time.Millisecond,
		Logger:       log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	return server
}

func TestSyncLogEndpoint(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := db.AppendSyncLog(ctx, &types.SyncLogEntry{
			Direction:   types.DirectionPull,
			RecordCount: i,
			Outcome:     types.OutcomeSuccess,
		})
		if err != nil {
			t.Fatalf("failed to seed sync log: %v", err)
		}
	}

	server := startTestServer(t, db)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/synclog?limit=2", server.GetAddr()))
	if err != nil {
		t.Fatalf("GET /api/synclog failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var entries []*types.SyncLogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entry count = %d, want 2", len(entries))
	}
}

func TestStatsEndpoint(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	err := db.CreateRecord(&types.IntakeRecord{
		ID:        "rec-1",
		Status:    types.StatusScheduled,
		OwnerID:   "user-1",
		OrgName:   "Org",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}
	err = db.AppendSyncLog(ctx, &types.SyncLogEntry{
		Direction: types.DirectionPush,
		Outcome:   types.OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("failed to seed sync log: %v", err)
	}

	server := startTestServer(t, db)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/stats", server.GetAddr()))
	if err != nil {
		t.Fatalf("GET /api/stats failed: %v", err)
	}
	defer resp.Body.Close()

	var stats StatsData
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}

	if stats.Records != 1 {
		t.Errorf("records = %d, want 1", stats.Records)
	}
	if stats.ByStatus["Scheduled"] != 1 {
		t.Errorf("by_status = %v", stats.ByStatus)
	}
	if stats.SyncRuns != 1 {
		t.Errorf("sync runs = %d, want 1", stats.SyncRuns)
	}
}

func TestSyncLogTailBroadcast(t *testing.T) {
	db := setupTestDB(t)
	server := startTestServer(t, db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", server.GetAddr()), nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// An audit row appended by another process shows up on the socket.
	err = db.AppendSyncLog(context.Background(), &types.SyncLogEntry{
		Direction:   types.DirectionPull,
		RecordCount: 5,
		Outcome:     types.OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("failed to append sync log: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("websocket read failed: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode broadcast: %v", err)
	}
	if msg.Type != MessageTypeSyncActivity {
		t.Fatalf("message type = %q", msg.Type)
	}

	var activity SyncActivityData
	if err := json.Unmarshal(msg.Data, &activity); err != nil {
		t.Fatalf("failed to decode activity data: %v", err)
	}
	if activity.Direction != "pull" || activity.RecordCount != 5 {
		t.Errorf("activity = %+v", activity)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := startTestServer(t, setupTestDB(t))

	resp, err := http.Get(fmt.Sprintf("http://%s/health", server.GetAddr()))
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}
}
