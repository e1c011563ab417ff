// Package httpapi exposes the read-only HTTP surface: health, Prometheus
// metrics and a paginated payout listing.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/earn-network/payout-engine/internal/config"
	"github.com/earn-network/payout-engine/internal/domain/payout"
	"github.com/earn-network/payout-engine/internal/query"
	"github.com/earn-network/payout-engine/pkg/logger"
)

// Server serves the HTTP API. It implements the service lifecycle and shuts
// down gracefully on Stop.
type Server struct {
	cfg    config.ServerConfig
	engine *query.Engine
	log    *logger.Logger

	mu     sync.Mutex
	server *http.Server
}

// New builds a server over the query engine. The registry may be nil, in
// which case /metrics serves the default Prometheus registry.
func New(cfg config.ServerConfig, engine *query.Engine, registry *prometheus.Registry, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	s := &Server{cfg: cfg, engine: engine, log: log}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/payouts", s.handlePayouts).Methods(http.MethodGet)
	if registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	} else {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Name implements the service lifecycle.
func (s *Server) Name() string { return "httpapi" }

// Handler returns the configured router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving in the background. Listen errors after startup are
// logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	s.log.WithField("addr", s.server.Addr).Info("http api listening")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http api serve failed")
		}
	}()
	return nil
}

// Stop drains in-flight requests until the context expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePayouts lists payout documents. Filterable by payoutState,
// subjectCollection and userAddress; windowed by the standard pagination
// parameters.
func (s *Server) handlePayouts(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	filter := map[string]interface{}{}
	for _, field := range []string{"payoutState", "subjectCollection", "userAddress", "subjectSlug"} {
		if v := params.Get(field); v != "" {
			filter[field] = v
		}
	}

	q := query.NewQuery(filter)
	q.Sort = params.Get("sort")
	q.Order = query.Order(params.Get("order"))
	var err error
	if q.PageNumber, err = parseInt(params.Get("pageNumber")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pageNumber")
		return
	}
	if q.PageSize, err = parseInt(params.Get("pageSize")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pageSize")
		return
	}

	result, err := s.engine.FindWithTotal(r.Context(), q, payout.Collection)
	if err != nil {
		s.log.WithError(err).Error("payout listing failed")
		writeError(w, http.StatusInternalServerError, "payout listing failed")
		return
	}

	payouts := query.Map(result, payout.FromDocument)
	writeJSON(w, http.StatusOK, payouts)
}

func parseInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("not a positive integer: %q", raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
