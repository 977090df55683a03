package collector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zgpcy/aws-tag-compliance-exporter/internal/clock"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/config"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/logger"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/provider"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/version"
)

// ComplianceCollector implements prometheus.Collector for tag compliance
// metrics. Gauge values are emitted as const metrics from the latest
// aggregated snapshot, so every refresh fully replaces the previous
// series set and stale label combinations never survive a scan cycle.
type ComplianceCollector struct {
	scanner provider.ComplianceScanner
	cfg     *config.Config
	logger  *logger.Logger
	clock   clock.Clock // Time provider for testing

	// Compliance metrics
	tagCompliantMetric        *prometheus.Desc
	tagNonCompliantMetric     *prometheus.Desc
	tagMissingDetailMetric    *prometheus.Desc
	resourcesScannedMetric    *prometheus.Desc
	compliancePctMetric       *prometheus.Desc
	tagCompliancePctMetric    *prometheus.Desc
	tagTypeCompliancePct      *prometheus.Desc
	fullyCompliantMetric      *prometheus.Desc
	fullyCompliantByTypeTotal *prometheus.Desc
	fullyCompliantByTypePct   *prometheus.Desc

	// Operational metrics
	upMetric           *prometheus.Desc
	scanDurationMetric *prometheus.Desc
	lastScanTimeMetric *prometheus.Desc
	scanErrorsTotal    prometheus.Counter
	buildInfo          *prometheus.GaugeVec // Build version information

	// State
	mu               sync.RWMutex
	metrics          *metricsSnapshot
	lastScanTime     time.Time
	lastScanErr      error
	lastScanDuration time.Duration
	isReady          bool
	refreshStarted   atomic.Bool   // Prevent multiple refresh goroutines
	refreshDone      chan struct{} // Closed when the refresh loop has exited
	scanInFlight     atomic.Bool   // Single-flight guard: at most one scan at a time
}

// NewComplianceCollector creates a new ComplianceCollector
func NewComplianceCollector(scanner provider.ComplianceScanner, cfg *config.Config, log *logger.Logger) *ComplianceCollector {
	scanErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tag_compliance_exporter_scan_errors_total",
		Help: "Total number of failed compliance scans since startup",
	})

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tag_compliance_exporter_build_info",
			Help: "Build version information",
		},
		[]string{"version", "git_commit", "build_date", "go_version"},
	)

	versionInfo := version.Info()
	buildInfo.With(prometheus.Labels{
		"version":    versionInfo["version"],
		"git_commit": versionInfo["git_commit"],
		"build_date": versionInfo["build_date"],
		"go_version": versionInfo["go_version"],
	}).Set(1)

	return &ComplianceCollector{
		scanner: scanner,
		cfg:     cfg,
		logger:  log,
		clock:   clock.RealClock{}, // Use real system time by default
		tagCompliantMetric: prometheus.NewDesc(
			"tag_compliant_total",
			"Number of resources carrying the tag",
			[]string{"tag", "account_name", "account_id", "region"},
			nil,
		),
		tagNonCompliantMetric: prometheus.NewDesc(
			"tag_non_compliant_total",
			"Number of resources missing the tag",
			[]string{"tag", "account_name", "account_id", "region"},
			nil,
		),
		// Higher-cardinality detail metric: one series per missing
		// tag/resource combination, rebuilt on every scan
		tagMissingDetailMetric: prometheus.NewDesc(
			"tag_missing_detail",
			"Set to 1 for each missing-tag/resource combination",
			[]string{"tag", "account_name", "account_id", "region", "resource_type", "resource_arn"},
			nil,
		),
		resourcesScannedMetric: prometheus.NewDesc(
			"resources_scanned_total",
			"Total number of resources scanned",
			[]string{"account_name", "account_id", "region"},
			nil,
		),
		compliancePctMetric: prometheus.NewDesc(
			"compliance_percentage",
			"Percentage of resources carrying every required tag",
			[]string{"account_name", "account_id", "region"},
			nil,
		),
		tagCompliancePctMetric: prometheus.NewDesc(
			"tag_compliance_percentage",
			"Per-tag compliance percentage",
			[]string{"tag", "account_name", "account_id", "region"},
			nil,
		),
		tagTypeCompliancePct: prometheus.NewDesc(
			"tag_resource_type_compliance_percentage",
			"Per-tag compliance percentage broken down by resource type",
			[]string{"tag", "resource_type", "account_name", "account_id", "region"},
			nil,
		),
		fullyCompliantMetric: prometheus.NewDesc(
			"resources_fully_compliant_total",
			"Number of resources carrying every required tag",
			[]string{"account_name", "account_id", "region"},
			nil,
		),
		fullyCompliantByTypeTotal: prometheus.NewDesc(
			"resources_fully_compliant_by_type_total",
			"Number of fully compliant resources per resource type",
			[]string{"resource_type", "account_name", "account_id", "region"},
			nil,
		),
		fullyCompliantByTypePct: prometheus.NewDesc(
			"resources_fully_compliant_by_type_percentage",
			"Percentage of fully compliant resources per resource type",
			[]string{"resource_type", "account_name", "account_id", "region"},
			nil,
		),
		upMetric: prometheus.NewDesc(
			"tag_compliance_exporter_up",
			"Was the last compliance scan successful (1 = success, 0 = failure)",
			nil,
			nil,
		),
		scanDurationMetric: prometheus.NewDesc(
			"tag_compliance_exporter_scan_duration_seconds",
			"Duration of the last compliance scan in seconds",
			nil,
			nil,
		),
		lastScanTimeMetric: prometheus.NewDesc(
			"tag_compliance_exporter_last_scan_timestamp_seconds",
			"Unix timestamp of the last successful scan",
			nil,
			nil,
		),
		scanErrorsTotal: scanErrorsTotal,
		buildInfo:       buildInfo,
	}
}

// Describe implements prometheus.Collector
func (c *ComplianceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tagCompliantMetric
	ch <- c.tagNonCompliantMetric
	ch <- c.tagMissingDetailMetric
	ch <- c.resourcesScannedMetric
	ch <- c.compliancePctMetric
	ch <- c.tagCompliancePctMetric
	ch <- c.tagTypeCompliancePct
	ch <- c.fullyCompliantMetric
	ch <- c.fullyCompliantByTypeTotal
	ch <- c.fullyCompliantByTypePct
	ch <- c.upMetric
	ch <- c.scanDurationMetric
	ch <- c.lastScanTimeMetric
	ch <- c.scanErrorsTotal.Desc()
	c.buildInfo.Describe(ch)
}

// Collect implements prometheus.Collector
func (c *ComplianceCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if m := c.metrics; m != nil {
		for k, v := range m.tagCompliant {
			ch <- prometheus.MustNewConstMetric(c.tagCompliantMetric, prometheus.GaugeValue, v,
				k.tag, k.accountName, k.accountID, k.region)
		}
		for k, v := range m.tagNonCompliant {
			ch <- prometheus.MustNewConstMetric(c.tagNonCompliantMetric, prometheus.GaugeValue, v,
				k.tag, k.accountName, k.accountID, k.region)
		}
		for _, k := range m.missingDetail {
			ch <- prometheus.MustNewConstMetric(c.tagMissingDetailMetric, prometheus.GaugeValue, 1,
				k.tag, k.accountName, k.accountID, k.region, k.resourceType, k.resourceARN)
		}
		for k, v := range m.scanned {
			ch <- prometheus.MustNewConstMetric(c.resourcesScannedMetric, prometheus.GaugeValue, v,
				k.accountName, k.accountID, k.region)
		}
		for k, v := range m.compliancePct {
			ch <- prometheus.MustNewConstMetric(c.compliancePctMetric, prometheus.GaugeValue, v,
				k.accountName, k.accountID, k.region)
		}
		for k, v := range m.tagCompliancePct {
			ch <- prometheus.MustNewConstMetric(c.tagCompliancePctMetric, prometheus.GaugeValue, v,
				k.tag, k.accountName, k.accountID, k.region)
		}
		for k, v := range m.tagTypePct {
			ch <- prometheus.MustNewConstMetric(c.tagTypeCompliancePct, prometheus.GaugeValue, v,
				k.tag, k.resourceType, k.accountName, k.accountID, k.region)
		}
		for k, v := range m.fullyCompliant {
			ch <- prometheus.MustNewConstMetric(c.fullyCompliantMetric, prometheus.GaugeValue, v,
				k.accountName, k.accountID, k.region)
		}
		for k, v := range m.typeCompliant {
			ch <- prometheus.MustNewConstMetric(c.fullyCompliantByTypeTotal, prometheus.GaugeValue, v,
				k.resourceType, k.accountName, k.accountID, k.region)
		}
		for k, v := range m.typeCompliancePct {
			ch <- prometheus.MustNewConstMetric(c.fullyCompliantByTypePct, prometheus.GaugeValue, v,
				k.resourceType, k.accountName, k.accountID, k.region)
		}
	}

	upValue := 0.0
	if c.isReady && c.lastScanErr == nil {
		upValue = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.upMetric, prometheus.GaugeValue, upValue)

	ch <- prometheus.MustNewConstMetric(c.scanDurationMetric, prometheus.GaugeValue, c.lastScanDuration.Seconds())

	if !c.lastScanTime.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastScanTimeMetric, prometheus.GaugeValue, float64(c.lastScanTime.Unix()))
	}

	ch <- c.scanErrorsTotal
	c.buildInfo.Collect(ch)
}

// StartBackgroundRefresh starts a goroutine that runs one scan
// immediately and then re-runs it on the refresh interval. The context
// interrupts the wait between scans; an in-flight scan runs to
// completion. The returned channel closes once the loop has exited and
// no scan is in flight.
func (c *ComplianceCollector) StartBackgroundRefresh(ctx context.Context) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Prevent multiple refresh goroutines
	if !c.refreshStarted.CompareAndSwap(false, true) {
		c.logger.Warn("Background refresh already started, skipping")
		return c.refreshDone
	}

	done := make(chan struct{})
	c.refreshDone = done

	go func() {
		defer close(done)
		defer c.refreshStarted.Store(false) // Reset on exit

		// Initial scan runs here rather than in the caller, so HTTP
		// serving is never delayed behind a long first scan
		c.RunScan(ctx)

		ticker := time.NewTicker(time.Duration(c.cfg.RefreshInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Stopping background refresh")
				return
			case <-ticker.C:
				c.RunScan(ctx)
			}
		}
	}()

	return done
}

// RunScan executes one full scan and swaps in the aggregated metrics.
// At most one scan runs at a time: a trigger while a scan is in flight
// is skipped entirely rather than queued.
func (c *ComplianceCollector) RunScan(ctx context.Context) {
	if !c.scanInFlight.CompareAndSwap(false, true) {
		c.logger.Warn("Scan already in progress, skipping this cycle")
		return
	}
	defer c.scanInFlight.Store(false)

	c.logger.Info("Starting compliance scan", "accounts", c.scanner.AccountCount())
	start := time.Now()

	// The context gates the wait between scans, not the scan itself: a
	// shutdown signal arriving mid-scan lets the scan run to completion
	snapshot, err := c.scanner.Scan(context.WithoutCancel(ctx))
	duration := time.Since(start)

	if err != nil {
		c.scanErrorsTotal.Inc()
		c.logger.Error("Compliance scan failed", "error", err, "duration_seconds", duration.Seconds())

		// Keep the previous metrics snapshot; record the failure
		c.mu.Lock()
		c.lastScanErr = err
		c.lastScanDuration = duration
		c.mu.Unlock()
		return
	}

	m := aggregate(snapshot)

	c.mu.Lock()
	c.metrics = m
	c.lastScanTime = c.clock.Now()
	c.lastScanErr = nil
	c.lastScanDuration = duration
	c.isReady = true
	c.mu.Unlock()

	c.logger.Info("Compliance scan complete",
		"resources", m.resourceCount,
		"detail_series", len(m.missingDetail),
		"duration_seconds", duration.Seconds())
}

// IsReady returns true once at least one scan has completed successfully
func (c *ComplianceCollector) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isReady
}

// LastError returns the error of the last scan, or nil if it succeeded
func (c *ComplianceCollector) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastScanErr
}

// LastScanTime returns the time of the last successful scan
func (c *ComplianceCollector) LastScanTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastScanTime
}

// ScanInProgress reports whether a scan is currently running
func (c *ComplianceCollector) ScanInProgress() bool {
	return c.scanInFlight.Load()
}

// ResourceCount returns the number of resources in the last snapshot
func (c *ComplianceCollector) ResourceCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.metrics == nil {
		return 0
	}
	return c.metrics.resourceCount
}
