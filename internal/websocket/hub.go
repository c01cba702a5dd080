package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"enrichdash/internal/infrastructure"
	"enrichdash/pkg/contracts/events"
)

// TypeConnection acknowledges a new dashboard connection
const TypeConnection events.EventName = "connection"

type roomMessage struct {
	room string
	kind events.EventName
	data []byte
}

// Hub fans reconciled progress out to dashboard clients grouped by job.
// All membership changes happen on the Run goroutine.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	// last snapshot per job, replayed to clients joining late
	last map[string][]byte

	broadcast  chan roomMessage
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *Metrics

	totalConnections int64
	messagesSent     int64

	quit    chan struct{}
	done    chan struct{}
	running bool
	stopped bool
}

// NewHub creates a hub; call Start before registering clients
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		last:       make(map[string][]byte),
		broadcast:  make(chan roomMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    GetMetrics(),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop in its own goroutine. Only the first call has an effect.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running || h.stopped {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run is the hub's main loop
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client, "closed")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	room := h.rooms[client.jobID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[client.jobID] = room
	}
	room[client] = true
	h.totalConnections++
	count := len(h.clients)
	cached := h.last[client.jobID]
	h.mu.Unlock()

	ctx := client.context()
	h.metrics.RecordConnect(ctx)
	h.logger.InfoContext(ctx, "Client registered",
		slog.String("client_id", client.id),
		slog.String("job_id", client.jobID),
		slog.String("remote_addr", client.remoteAddr),
		slog.Int("total_clients", count))

	if ack, err := encodeMessage(TypeConnection, map[string]string{
		"status":    "connected",
		"client_id": client.id,
		"job_id":    client.jobID,
	}, client.traceID); err == nil {
		h.queue(client, ack)
	}
	if cached != nil {
		h.queue(client, cached)
	}
}

func (h *Hub) removeClient(client *Client, reason string) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	if room := h.rooms[client.jobID]; room != nil {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, client.jobID)
		}
	}
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.context()
	h.metrics.RecordDisconnect(ctx, reason)
	h.logger.InfoContext(ctx, "Client unregistered",
		slog.String("client_id", client.id),
		slog.String("job_id", client.jobID),
		slog.String("reason", reason),
		slog.Duration("connection_duration", time.Since(client.connectedAt)),
		slog.Int("total_clients", count))
}

func (h *Hub) deliver(msg roomMessage) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[msg.room]))
	for client := range h.rooms[msg.room] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range targets {
		if h.queue(client, msg.data) {
			delivered++
		}
	}

	h.metrics.RecordBroadcast(context.Background(), string(msg.kind), delivered)
	h.logger.Debug("Broadcast to job room",
		slog.String("job_id", msg.room),
		slog.String("type", string(msg.kind)),
		slog.Int("delivered", delivered),
		slog.Int("payload_size", len(msg.data)))
}

// queue hands data to a client without blocking; a full buffer disconnects the client.
// Must be called from the Run goroutine.
func (h *Hub) queue(client *Client, data []byte) bool {
	select {
	case client.send <- data:
		h.mu.Lock()
		h.messagesSent++
		h.mu.Unlock()
		return true
	default:
		h.logger.WarnContext(client.context(), "Client send buffer full, disconnecting",
			slog.String("client_id", client.id))
		h.removeClient(client, "slow_consumer")
		return false
	}
}

// BroadcastSnapshot pushes a job's reconciled state to every client watching it
func (h *Hub) BroadcastSnapshot(snapshot events.ProgressSnapshot) {
	data, err := encodeMessage(events.EventProgressSnapshot, snapshot, "")
	if err != nil {
		h.logger.Error("Error marshaling progress snapshot",
			slog.String("job_id", snapshot.JobID),
			slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	h.last[snapshot.JobID] = data
	h.mu.Unlock()

	h.send(roomMessage{room: snapshot.JobID, kind: events.EventProgressSnapshot, data: data})
}

// Forget drops the cached snapshot of a job that is no longer tracked
func (h *Hub) Forget(jobID string) {
	h.mu.Lock()
	delete(h.last, jobID)
	h.mu.Unlock()
}

func (h *Hub) send(msg roomMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		client.conn.Close()
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients watching jobID
func (h *Hub) RoomSize(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[jobID])
}

// GetHubMetrics returns counters for the health endpoint
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"active_rooms":      len(h.rooms),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
	}
}

// Stop ends the hub loop and disconnects every client
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	running := h.running
	h.mu.Unlock()

	close(h.quit)
	if running {
		<-h.done
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.rooms = make(map[string]map[*Client]bool)
}

func encodeMessage(kind events.EventName, data interface{}, traceID string) ([]byte, error) {
	return json.Marshal(events.WebSocketMessage{
		Type:      kind,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
	})
}
