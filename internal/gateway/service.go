package gateway

import (
	"fmt"
	"net/http"

	"github.com/calderaops/meterbill/internal/metering"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Service bundles the HTTP handler and the websocket hub.
type Service struct {
	handler *Handler
	hub     *Hub
}

func NewService(app *metering.App, clock clockwork.Clock) *Service {
	return &Service{
		handler: NewHandler(app),
		hub:     NewHub(app, clock, metering.DefaultTickInterval),
	}
}

// Hub exposes the websocket hub so the caller can run its broadcast loop.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Routes builds the full route table.
func (s *Service) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /timers", s.handler.handleStartTimer)
	mux.HandleFunc("GET /timers", s.handler.handleListTimers)
	mux.HandleFunc("GET /timers/{id}", s.handler.handleGetTimer)
	mux.HandleFunc("POST /timers/{id}/stop", s.handler.handleStopTimer)
	mux.HandleFunc("POST /timers/{id}/pause", s.handler.handlePauseTimer)
	mux.HandleFunc("POST /timers/{id}/resume", s.handler.handleResumeTimer)
	mux.HandleFunc("POST /wages/compute", s.handler.handleComputeWage)
	mux.HandleFunc("POST /wages/payout", s.handler.handleComputePayout)
	mux.HandleFunc("GET /ws", s.hub.HandleConnection)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	return mux
}

// NewServer wraps the routes with CORS and h2c.
func (s *Service) NewServer(port string) *http.Server {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	handler := c.Handler(s.Routes())

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}
