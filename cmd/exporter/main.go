package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zgpcy/aws-tag-compliance-exporter/internal/aws"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/collector"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/config"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/logger"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/provider"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/server"
)

const (
	// DefaultShutdownTimeout is the maximum time to wait for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
	once       = flag.Bool("once", false, "Run a single scan, print a summary, and exit")
	version    = "dev"
)

func main() {
	flag.Parse()

	// Load configuration first (need log level from config)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger := logger.New(cfg.LogLevel)
	logger.Info("AWS Tag Compliance Exporter starting",
		"version", version,
		"config_path", *configPath)

	logger.Info("Configuration loaded successfully",
		"accounts", len(cfg.Accounts),
		"required_tags", len(cfg.RequiredTags),
		"excluded_resource_types", len(cfg.ExcludedResourceTypes),
		"refresh_interval_seconds", cfg.RefreshInterval,
		"http_port", cfg.HTTPPort)

	// Create AWS scan client
	logger.Info("Initializing AWS scan client")
	scanner, err := aws.NewClient(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to create AWS client", "error", err)
		os.Exit(1)
	}
	logger.Info("AWS client initialized successfully")

	if *once {
		runOnce(scanner, logger)
		return
	}

	// Create compliance collector
	logger.Info("Creating Prometheus collector")
	complianceCollector := collector.NewComplianceCollector(scanner, cfg, logger)

	// Register collector with Prometheus
	if err := prometheus.Register(complianceCollector); err != nil {
		logger.Error("Failed to register collector", "error", err)
		os.Exit(1)
	}
	logger.Info("Collector registered with Prometheus")

	// Register Go runtime metrics (memory, goroutines, GC stats)
	if err := prometheus.Register(prometheus.NewGoCollector()); err != nil {
		logger.Warn("Failed to register Go collector", "error", err)
	} else {
		logger.Info("Go runtime metrics registered")
	}

	// Register process metrics (CPU, memory, file descriptors)
	if err := prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
		logger.Warn("Failed to register process collector", "error", err)
	} else {
		logger.Info("Process metrics registered")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background refresh; the first scan runs asynchronously so the
	// HTTP endpoints come up immediately
	logger.Info("Starting background compliance refresh")
	refreshDone := complianceCollector.StartBackgroundRefresh(ctx)

	// Create and start HTTP server
	logger.Info("Creating HTTP server", "port", cfg.HTTPPort)
	srv := server.NewServer(cfg, complianceCollector, logger)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		logger.Info("Received shutdown signal, starting graceful shutdown", "signal", sig.String())

		// Stop the refresh loop; a scan already in flight finishes
		cancel()

		// Shutdown server with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during server shutdown", "error", err)
			// Force shutdown
			os.Exit(1)
		}

		// Wait for the refresh goroutine so an in-flight scan completes
		<-refreshDone

		logger.Info("Server stopped gracefully")
	}
}

// runOnce executes a single scan and prints a per-account summary
func runOnce(scanner provider.ComplianceScanner, logger *logger.Logger) {
	snapshot, err := scanner.Scan(context.Background())
	if err != nil {
		logger.Error("Scan failed", "error", err)
		os.Exit(1)
	}

	for _, acct := range snapshot.Accounts {
		fmt.Printf("\nAccount: %s (%s)\n", acct.AccountName, acct.AccountID)
		if acct.Err != "" {
			fmt.Printf("  Error: %s\n", acct.Err)
			continue
		}
		for _, region := range acct.Regions {
			compliant := len(region.Compliant)
			pct := 0.0
			if region.Total > 0 {
				pct = float64(compliant) / float64(region.Total) * 100
			}
			fmt.Printf("  Region: %s\n", region.Region)
			fmt.Printf("    Total Resources: %d\n", region.Total)
			fmt.Printf("    Excluded: %d\n", region.Excluded)
			fmt.Printf("    Compliant: %d\n", compliant)
			fmt.Printf("    Non-Compliant: %d\n", len(region.NonCompliant))
			fmt.Printf("    Compliance: %.1f%%\n", pct)
			for _, msg := range region.Errors {
				fmt.Printf("    Error: %s\n", msg)
			}
		}
	}
}
