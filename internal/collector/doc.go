// Package collector implements a Prometheus collector for AWS tag
// compliance metrics.
//
// This package aggregates compliance snapshots into labeled gauge values
// and exposes them via the prometheus.Collector interface. It also owns
// the background refresh scheduler and the scan status consumed by the
// HTTP health endpoints.
//
// The collector exposes the following metrics:
//   - tag_compliant_total / tag_non_compliant_total: per-tag resource counts
//   - tag_missing_detail: one series per missing-tag/resource combination
//   - resources_scanned_total, compliance_percentage
//   - tag_compliance_percentage, tag_resource_type_compliance_percentage
//   - resources_fully_compliant_total and the per-type total/percentage
//   - tag_compliance_exporter_up, _scan_duration_seconds,
//     _scan_errors_total, _last_scan_timestamp_seconds, _build_info
//
// The main type is ComplianceCollector, which:
//   - Runs the scan pipeline in the background at the configured interval
//   - Guarantees at most one scan in flight (compare-and-swap guard;
//     overlapping triggers are skipped, never queued)
//   - Rebuilds the full aggregated value set on every scan and swaps it
//     atomically, so stale series never survive a refresh
//   - Serves concurrent scrapes from the cached aggregate via RWMutex
//   - Tracks last scan time/error for the health and readiness endpoints
//
// Example usage:
//
//	scanner, _ := aws.NewClient(ctx, cfg, log)
//	collector := collector.NewComplianceCollector(scanner, cfg, log)
//
//	// Register with Prometheus
//	prometheus.MustRegister(collector)
//
//	// Start background refresh
//	collector.StartBackgroundRefresh(ctx)
//
//	// Check readiness
//	if collector.IsReady() {
//		fmt.Println("Collector is ready")
//	}
package collector
