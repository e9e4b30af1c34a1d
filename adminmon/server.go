package adminmon

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StatsProvider supplies the live counters /api/stats reports;
// Supervisor and Matcher together satisfy it.
type StatsProvider interface {
	ActiveGames() int
	QueueSize() int
	ProposalCount() int
}

// Server exposes the Hub over HTTP: a websocket upgrade endpoint for
// the broadcast feed, plus the teacher's /api/stats and /api/health
// plain-JSON endpoints, adapted to this domain's counters.
type Server struct {
	hub       *Hub
	stats     StatsProvider
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
	log       *zap.Logger
	startedAt time.Time
}

// NewServer builds a Server. allowedOrigins configures both the
// websocket upgrader's CheckOrigin and the CORS middleware, mirroring
// the teacher's DefaultUpgrader/Cors split.
func NewServer(hub *Hub, stats StatsProvider, allowedOrigins []string, log *zap.Logger) *Server {
	s := &Server{
		hub:   hub,
		stats: stats,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		mux:       http.NewServeMux(),
		log:       log,
		startedAt: time.Now(),
	}
	s.mux.HandleFunc("/api/admin/ws", s.handleWebSocket)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	return s
}

// Handler returns the CORS-wrapped mux, ready to pass to http.Serve.
func (s *Server) Handler() http.Handler { return cors(s.mux) }

func cors(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		h.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("adminmon: upgrade failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	c := &client{conn: conn, egress: make(chan []byte, 32), log: s.log}

	done := make(chan struct{})
	s.hub.register <- regreq{client: c, cancel: cancel, done: done}
	<-done

	go c.writeForever(ctx, s.hub.ping, func(c *client) {
		done := make(chan struct{})
		s.hub.unreg <- regreq{client: c, done: done}
		<-done
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"active_games":   s.stats.ActiveGames(),
		"queue_size":     s.stats.QueueSize(),
		"open_proposals": s.stats.ProposalCount(),
		"admin_clients":  s.hub.ClientCount(),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}
