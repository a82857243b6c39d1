package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/config"
	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/metrics"
)

// StatsFunc returns a JSON-encodable statistics snapshot for one component
type StatsFunc func() any

// Server exposes local monitoring endpoints while a practice session runs:
// /health, /stats (registered component snapshots), and /metrics (Prometheus).
type Server struct {
	server  *http.Server
	logger  *slog.Logger
	metrics *metrics.Metrics

	startTime time.Time

	sources map[string]StatsFunc
	mu      sync.RWMutex
}

// NewServer creates the monitor server
func NewServer(cfg config.MonitorConfig, logger *slog.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		logger:    logger,
		metrics:   m,
		startTime: time.Now(),
		sources:   make(map[string]StatsFunc),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// RegisterStats adds a named component snapshot to the /stats output.
// Registration after Start is safe.
func (s *Server) RegisterStats(name string, fn StatsFunc) {
	s.mu.Lock()
	s.sources[name] = fn
	s.mu.Unlock()
}

// setupRoutes configures monitoring routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("/stats", s.withMetrics("/stats", s.handleStats))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.withMetrics("/", s.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		s.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the monitor server
func (s *Server) Start() error {
	s.logger.Info("Starting monitor server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Monitor server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the monitor server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping monitor server...")

	return s.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	components := make([]string, 0, len(s.sources))
	for name := range s.sources {
		components = append(components, name)
	}
	s.mu.RUnlock()
	sort.Strings(components)

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
		"service": map[string]any{
			"name":    "mirrorplay-client",
			"version": "1.0.0",
		},
		"components": components,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]any{
		"uptime":    time.Since(s.startTime).String(),
		"timestamp": time.Now().UTC(),
	}

	s.mu.RLock()
	for name, fn := range s.sources {
		stats[name] = fn()
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with endpoint documentation
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]any{
		"service": "Mirror Play practice client",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"GET /":        "Endpoint documentation",
			"GET /health":  "Client health check",
			"GET /stats":   "Component statistics",
			"GET /metrics": "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
