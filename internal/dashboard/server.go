// Package dashboard provides a real-time WebSocket view of sync
// activity for operators.
//
// The server broadcasts new sync audit entries and spool imports to
// connected WebSocket clients and serves a small read-only JSON API
// over the store. Pull and push run in their own short-lived CLI
// processes, so the server tails the sync_log table instead of relying
// on in-process callbacks: any new audit row shows up on the socket
// within one poll interval.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/outreachops/intakesync/internal/store"
	"github.com/outreachops/intakesync/internal/types"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSyncActivity indicates a pull or push completed
	MessageTypeSyncActivity MessageType = "sync_activity"

	// MessageTypeRecordImport indicates a record arrived via the spool
	MessageTypeRecordImport MessageType = "record_import"

	// MessageTypeStats indicates updated record statistics
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncActivityData mirrors one sync audit entry
type SyncActivityData struct {
	Direction   string `json:"direction"`
	RecordCount int    `json:"record_count"`
	Outcome     string `json:"outcome"`
	Error       string `json:"error,omitempty"`
}

// RecordImportData describes a spool import
type RecordImportData struct {
	RecordID string `json:"record_id"`
	OrgName  string `json:"org_name,omitempty"`
}

// StatsData contains record statistics
type StatsData struct {
	Records  int            `json:"records"`
	ByStatus map[string]int `json:"by_status"`
	Tasks    int            `json:"tasks"`
	SyncRuns int            `json:"sync_runs"`
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080)
	Port int

	// PollInterval is how often the sync log is tailed for new
	// entries to broadcast (default: 2s)
	PollInterval time.Duration

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		PollInterval: 2 * time.Second,
		Logger:       log.Default(),
	}
}

// Server manages WebSocket connections and the read-only JSON API
type Server struct {
	db           *store.DB
	addr         string
	pollInterval time.Duration
	listener     net.Listener
	server       *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	lastSyncLogID int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a dashboard server over the given store.
func NewServer(db *store.DB, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		db:           db,
		addr:         fmt.Sprintf(":%d", config.Port),
		pollInterval: config.PollInterval,
		clients:      make(map[*websocket.Conn]bool),
		broadcast:    make(chan Message, 100),
		ctx:          ctx,
		cancel:       cancel,
		logger:       config.Logger,
	}
}

// Start begins the HTTP server, the broadcast loop, and the sync-log tail.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	// Remember where the log ends now; only rows after this broadcast.
	if entries, err := s.db.ListRecentSyncLogs(s.ctx, 1); err == nil && len(entries) > 0 {
		s.lastSyncLogID = entries[0].ID
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/synclog", s.handleSyncLog)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go s.tailSyncLog()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast sends a message to all connected clients.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// BroadcastRecordImport announces a record imported via the spool.
func (s *Server) BroadcastRecordImport(recordID, orgName string) {
	data, err := json.Marshal(RecordImportData{RecordID: recordID, OrgName: orgName})
	if err != nil {
		return
	}
	s.Broadcast(Message{Type: MessageTypeRecordImport, Timestamp: time.Now(), Data: data})
}

// tailSyncLog polls the sync log and broadcasts entries it hasn't seen.
func (s *Server) tailSyncLog() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			entries, err := s.db.ListRecentSyncLogs(s.ctx, 50)
			if err != nil {
				s.logger.Printf("Failed to tail sync log: %v", err)
				continue
			}

			// Entries arrive newest first; walk backwards so
			// broadcasts go out in insertion order.
			for i := len(entries) - 1; i >= 0; i-- {
				entry := entries[i]
				if entry.ID <= s.lastSyncLogID {
					continue
				}
				s.lastSyncLogID = entry.ID

				data, err := json.Marshal(SyncActivityData{
					Direction:   string(entry.Direction),
					RecordCount: entry.RecordCount,
					Outcome:     string(entry.Outcome),
					Error:       entry.Error,
				})
				if err != nil {
					continue
				}
				s.Broadcast(Message{
					Type:      MessageTypeSyncActivity,
					Timestamp: entry.CreatedAt,
					Data:      data,
				})
			}
		}
	}
}

// broadcastLoop fans queued messages out to all clients.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	go s.readLoop(conn)
}

// readLoop keeps the connection alive and notices disconnects. Client
// messages are not processed.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, _, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
	}
}

// removeClient safely removes a client connection.
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleSyncLog serves the recent sync activity listing.
func (s *Server) handleSyncLog(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.db.ListRecentSyncLogs(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*types.SyncLogEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}

// handleStats serves record/task/sync counts.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats := StatsData{ByStatus: make(map[string]int)}

	var err error
	if stats.Records, err = s.db.GetRecordCount(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	byStatus, err := s.db.CountRecordsByStatus(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for status, n := range byStatus {
		stats.ByStatus[string(status)] = n
	}
	if stats.Tasks, err = s.db.GetTaskCount(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if stats.SyncRuns, err = s.db.GetSyncLogCount(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clientCount,
	})
}

// handleRoot returns basic server information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Intakesync Dashboard</title>
</head>
<body>
    <h1>Intakesync Dashboard Server</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Recent sync activity: <a href="/api/synclog">/api/synclog</a></p>
    <p>Stats: <a href="/api/stats">/api/stats</a></p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
