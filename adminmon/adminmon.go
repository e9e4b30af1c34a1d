// Package adminmon is a read-only operational status feed for human
// operators: a broadcast-only websocket hub pushing JSON StatusEvents,
// plus a couple of plain HTTP status endpoints. It touches no game
// semantics (§SPEC_FULL "Admin monitoring feed") — it only observes.
//
// Rewritten from the teacher's websocket.Client/Manager/Broadcaster
// trio (websocket/websocket.go): the bidirectional per-client read
// loop and MessageHandler plumbing are dropped since operators never
// send commands over this feed, only receive events.
package adminmon

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType names the kind of operational change being reported.
type EventType string

const (
	EventQueueSize   EventType = "queue_size"
	EventGameStarted EventType = "game_started"
	EventGameEnded   EventType = "game_ended"
	EventPhaseChange EventType = "phase_change"
	EventRoomChange  EventType = "room_change"
)

// StatusEvent is one unit of operator-visible state change, broadcast
// verbatim as JSON to every connected client.
type StatusEvent struct {
	Type      EventType `json:"type"`
	PlayChat  int64     `json:"play_chat,omitempty"`
	PackageID string    `json:"package_id,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Count     int       `json:"count,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// client is one connected operator browser. Only the egress direction
// is modeled; there is nothing to read from an admin feed subscriber.
type client struct {
	conn   *websocket.Conn
	egress chan []byte
	log    *zap.Logger
}

// writeForever is the only goroutine allowed to call conn.WriteMessage,
// mirroring the teacher's single-writer rule from websocket.go.
func (c *client) writeForever(ctx context.Context, ping time.Duration, onDestroy func(*client)) {
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		onDestroy(c)
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case b, ok := <-c.egress:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debug("adminmon: write failed, dropping client", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type regreq struct {
	client *client
	cancel context.CancelFunc
	done   chan struct{}
}

// Hub registers/unregisters clients and broadcasts StatusEvents to all
// of them, in its own goroutine (the teacher's manager/broadcaster
// pattern, collapsed into one type since this hub never needs the
// generic MessageHandler dispatch the teacher's reader side used).
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]context.CancelFunc
	register chan regreq
	unreg    chan regreq
	log      *zap.Logger
	ping     time.Duration
}

// New constructs a Hub. Call Run in its own goroutine before accepting
// connections.
func New(log *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[*client]context.CancelFunc),
		register: make(chan regreq),
		unreg:    make(chan regreq),
		log:      log,
		ping:     30 * time.Second,
	}
}

// Run processes (un)registration until ctx is cancelled, at which
// point every client is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c, cancel := range h.clients {
				cancel()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case rr := <-h.register:
			h.mu.Lock()
			h.clients[rr.client] = rr.cancel
			h.mu.Unlock()
			close(rr.done)
		case rr := <-h.unreg:
			h.mu.Lock()
			if cancel, ok := h.clients[rr.client]; ok {
				cancel()
				delete(h.clients, rr.client)
			}
			h.mu.Unlock()
			close(rr.done)
		}
	}
}

// ClientCount reports how many operator browsers are currently
// connected, for /api/stats.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast fans a StatusEvent's JSON encoding out to every connected
// client, dropping it for any client whose egress buffer is full
// rather than blocking the emitter.
func (h *Hub) Broadcast(ev StatusEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("adminmon: marshal event failed", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.egress <- b:
		default:
			h.log.Warn("adminmon: client egress full, dropping event")
		}
	}
}
