package server

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zgpcy/aws-tag-compliance-exporter/internal/collector"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/config"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/logger"
)

//go:embed templates/index.html
var indexTemplate string

// HTTP server timeout constants
const (
	DefaultReadTimeout  = 15 * time.Second // Maximum duration for reading the entire request
	DefaultWriteTimeout = 15 * time.Second // Maximum duration before timing out writes of the response
	DefaultIdleTimeout  = 60 * time.Second // Maximum amount of time to wait for the next request
)

// indexPageData holds template data for the index page
type indexPageData struct {
	StatusClass     string
	StatusText      string
	ScanInProgress  bool
	LastScan        string
	LastError       string
	ResourceCount   int
	RefreshInterval int
	AccountCount    int
}

// Server represents the HTTP server
type Server struct {
	server    *http.Server
	collector *collector.ComplianceCollector
	cfg       *config.Config
	logger    *logger.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, collector *collector.ComplianceCollector, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler:      mux,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
		},
		collector: collector,
		cfg:       cfg,
		logger:    log,
	}

	// Register handlers
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleIndex serves a human-readable status page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Parse template
	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		s.logger.Error("Failed to parse index template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Prepare template data
	ready := s.collector.IsReady()
	statusClass := "not-ready"
	statusText := "Not Ready"
	if ready {
		statusClass = "ready"
		statusText = "Ready"
	}

	lastScan := s.collector.LastScanTime()
	lastScanText := "Never"
	if !lastScan.IsZero() {
		lastScanText = lastScan.Format("2006-01-02 15:04:05 MST")
	}

	lastErrorText := ""
	if err := s.collector.LastError(); err != nil {
		lastErrorText = err.Error()
	}

	data := indexPageData{
		StatusClass:     statusClass,
		StatusText:      statusText,
		ScanInProgress:  s.collector.ScanInProgress(),
		LastScan:        lastScanText,
		LastError:       lastErrorText,
		ResourceCount:   s.collector.ResourceCount(),
		RefreshInterval: s.cfg.RefreshInterval,
		AccountCount:    len(s.cfg.Accounts),
	}

	// Execute template
	w.Header().Set("Content-Type", "text/html")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("Failed to execute index template", "error", err)
	}
}

// handleHealth handles health check requests. Returns 503 with the error
// text when the last scan failed; 200 otherwise, including before the
// first scan has run.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	if err := s.collector.LastError(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, writeErr := fmt.Fprintf(w, "Unhealthy: Last scan failed - %s\n", err.Error()); writeErr != nil {
			s.logger.Error("Failed to write health response", "error", writeErr)
		}
		return
	}

	lastScan := s.collector.LastScanTime()
	body := "OK - Initializing\n"
	if !lastScan.IsZero() {
		body = fmt.Sprintf("OK - Last scan: %s\n", lastScan.Format(time.RFC3339))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write health response", "error", err)
	}
}

// handleReady handles readiness check requests. Returns 200 once at
// least one scan has completed successfully.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	if !s.collector.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("Not ready: No successful scan yet\n")); err != nil {
			s.logger.Error("Failed to write ready response", "error", err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("Ready\n")); err != nil {
		s.logger.Error("Failed to write ready response", "error", err)
	}
}
