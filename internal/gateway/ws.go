package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/calderaops/meterbill/internal/metering"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Hub pushes session-view snapshots to every connected websocket client once
// per tick. Clients only ever read; the frames carry the same snapshots as
// GET /timers, so the UI needs no second data path.
type Hub struct {
	app      *metering.App
	clock    clockwork.Clock
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

const wsWriteTimeout = 10 * time.Second

func NewHub(app *metering.App, clock clockwork.Clock, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = metering.DefaultTickInterval
	}
	return &Hub{
		app:      app,
		clock:    clock,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Allow all origins in development - restrict in production
				return true
			},
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleConnection upgrades a client and registers it for snapshots.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()
	log.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", total).Msg("websocket client connected")

	// Reader goroutine only watches for close.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

type viewsFrame struct {
	Type string                 `json:"type"`
	Data []metering.SessionView `json:"data"`
}

func (h *Hub) broadcast() {
	frame := viewsFrame{Type: "SessionViews", Data: h.app.ListSessionViews()}
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal session views")
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("dropping slow websocket client")
			h.drop(conn)
		}
	}
}

// Run broadcasts snapshots every interval until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mu.Unlock()
			return nil
		case <-ticker.Chan():
			h.broadcast()
		}
	}
}
