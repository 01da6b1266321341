package reporting

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/seqrnn/pkg/constants"
)

// MetricsServer serves the metrics registry and a health endpoint while a
// run is in progress.
type MetricsServer struct {
	config    PrometheusConfig
	router    *mux.Router
	server    *http.Server
	logger    *logrus.Logger
	startTime time.Time
}

// NewMetricsServer builds the router; Start begins listening.
func NewMetricsServer(cfg PrometheusConfig, registry *prometheus.Registry, logger *logrus.Logger) *MetricsServer {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Addr == "" {
		cfg.Addr = constants.DefaultMetricsAddr
	}
	if cfg.Path == "" {
		cfg.Path = constants.DefaultMetricsPath
	}

	s := &MetricsServer{
		config:    cfg,
		router:    mux.NewRouter(),
		logger:    logger,
		startTime: time.Now(),
	}
	s.router.Handle(cfg.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router
func (s *MetricsServer) Handler() http.Handler {
	return s.router
}

// Start listens in the background. Listen errors are logged, not returned,
// so a busy port never stops training.
func (s *MetricsServer) Start() {
	s.logger.WithFields(logrus.Fields{
		"addr": s.config.Addr,
		"path": s.config.Path,
	}).Info("Starting metrics server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Metrics server failed")
		}
	}()
}

// Shutdown stops the server gracefully
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down metrics server")
	return s.server.Shutdown(ctx)
}

func (s *MetricsServer) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"service":   constants.AppName,
		"version":   constants.AppVersion,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
	})
}
