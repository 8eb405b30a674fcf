// Package api exposes one capture graph over HTTP
//
// Routes:
//
//	GET  /devices?category=video|audio   enumerate capture devices
//	GET  /graph                          graph status and topology
//	POST /graph/{op}                     start, stop, pause, resume
//	POST /snapshot?format=png|jpeg|bmp   wait for the next picture
//	GET  /metrics                        Prometheus metrics
package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	capturegraph "github.com/e7canasta/orion-care-sensor/modules/capture-graph"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/catalog"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Config tunes the control surface
type Config struct {
	// SnapshotRatePerMinute limits POST /snapshot per client IP, 0 disables
	SnapshotRatePerMinute int
	// SnapshotTimeout bounds the wait for a picture (default 5s)
	SnapshotTimeout time.Duration
	// JPEGQuality applies to ?format=jpeg (default 90)
	JPEGQuality int
}

// Server serves the control API for one graph
type Server struct {
	cfg     Config
	catalog *catalog.Catalog
	graph   *capturegraph.Graph
	bus     *notify.Bus
	log     zerolog.Logger

	subscriptions atomic.Uint64
}

// New creates a server. bus must be the graph's event sink (or fed by it)
// for snapshots to complete.
func New(cfg Config, lister media.DeviceLister, graph *capturegraph.Graph, bus *notify.Bus, log zerolog.Logger) *Server {
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = 5 * time.Second
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 90
	}
	return &Server{
		cfg:     cfg,
		catalog: catalog.New(lister, log),
		graph:   graph,
		bus:     bus,
		log:     log,
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)

	r.Get("/devices", s.handleDevices)
	r.Get("/graph", s.handleGraph)
	r.Post("/graph/{op}", s.handleGraphOp)
	r.Group(func(r chi.Router) {
		if s.cfg.SnapshotRatePerMinute > 0 {
			r.Use(rateLimit(s.cfg.SnapshotRatePerMinute, time.Minute))
		}
		r.Post("/snapshot", s.handleSnapshot)
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
