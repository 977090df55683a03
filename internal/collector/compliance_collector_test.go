package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zgpcy/aws-tag-compliance-exporter/internal/config"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/logger"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/provider"
)

// testLogger creates a logger for testing (error level to suppress test output)
func testLogger() *logger.Logger {
	return logger.New("error")
}

// mockScanner is a mock implementation of the compliance scanner for testing
type mockScanner struct {
	mu        sync.Mutex
	snapshot  *provider.Snapshot
	err       error
	scanCalls int
	started   chan struct{} // closed when Scan begins, if set
	release   chan struct{} // Scan blocks until closed, if set
}

func (m *mockScanner) Scan(ctx context.Context) (*provider.Snapshot, error) {
	m.mu.Lock()
	m.scanCalls++
	started := m.started
	release := m.release
	m.mu.Unlock()

	if started != nil {
		close(started)
		m.mu.Lock()
		m.started = nil
		m.mu.Unlock()
	}
	if release != nil {
		<-release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, m.err
}

func (m *mockScanner) AccountCount() int {
	return 1
}

func (m *mockScanner) ScanCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanCalls
}

func (m *mockScanner) SetSnapshot(s *provider.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = s
}

func (m *mockScanner) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func testConfig() *config.Config {
	return &config.Config{
		Accounts:        []config.Account{{ID: "111111111111", Name: "prod", Regions: []string{"us-east-1"}}},
		RequiredTags:    []string{"Owner"},
		RefreshInterval: 60,
	}
}

// collectAll drains one Collect pass into a slice
func collectAll(c *ComplianceCollector) []prometheus.Metric {
	ch := make(chan prometheus.Metric, 1024)
	c.Collect(ch)
	close(ch)

	var metrics []prometheus.Metric
	for m := range ch {
		metrics = append(metrics, m)
	}
	return metrics
}

// countByDesc counts collected metrics belonging to one description
func countByDesc(metrics []prometheus.Metric, desc *prometheus.Desc) int {
	count := 0
	for _, m := range metrics {
		if m.Desc() == desc {
			count++
		}
	}
	return count
}

// TestNewComplianceCollector tests collector creation
func TestNewComplianceCollector(t *testing.T) {
	c := NewComplianceCollector(&mockScanner{}, testConfig(), testLogger())

	if c == nil {
		t.Fatal("NewComplianceCollector returned nil")
	}
	if c.scanner == nil {
		t.Error("scanner should not be nil")
	}
	if c.tagCompliantMetric == nil || c.tagMissingDetailMetric == nil {
		t.Error("metric descriptions should not be nil")
	}
	if c.IsReady() {
		t.Error("collector must not be ready before the first scan")
	}
}

// TestDescribe tests the Describe method
func TestDescribe(t *testing.T) {
	c := NewComplianceCollector(&mockScanner{}, testConfig(), testLogger())

	ch := make(chan *prometheus.Desc, 32)
	c.Describe(ch)
	close(ch)

	var descs []*prometheus.Desc
	for desc := range ch {
		descs = append(descs, desc)
	}

	// 10 compliance families + up + scan duration + last scan time +
	// scan errors counter + build info
	if len(descs) != 15 {
		t.Errorf("Describe produced %d descriptions, want 15", len(descs))
	}
}

// TestRunScanUpdatesStatus tests the status fields after a successful scan
func TestRunScanUpdatesStatus(t *testing.T) {
	scanner := &mockScanner{snapshot: testSnapshot(provider.RegionResult{
		Region: "us-east-1",
		Total:  2,
		Compliant: []provider.ResourceRecord{
			record("arn:aws:ec2:us-east-1:1:instance/i-1", "instance", []string{"Owner"}, nil),
		},
		NonCompliant: []provider.ResourceRecord{
			record("arn:aws:ec2:us-east-1:1:instance/i-2", "instance", nil, []string{"Owner"}),
		},
	})}
	c := NewComplianceCollector(scanner, testConfig(), testLogger())

	c.RunScan(context.Background())

	if !c.IsReady() {
		t.Error("collector should be ready after a successful scan")
	}
	if err := c.LastError(); err != nil {
		t.Errorf("LastError = %v, want nil", err)
	}
	if c.LastScanTime().IsZero() {
		t.Error("LastScanTime should be set")
	}
	if c.ScanInProgress() {
		t.Error("ScanInProgress should be false after the scan returns")
	}
	if got := c.ResourceCount(); got != 2 {
		t.Errorf("ResourceCount = %d, want 2", got)
	}

	metrics := collectAll(c)
	if got := countByDesc(metrics, c.resourcesScannedMetric); got != 1 {
		t.Errorf("resources_scanned_total series = %d, want 1", got)
	}
	if got := countByDesc(metrics, c.tagMissingDetailMetric); got != 1 {
		t.Errorf("tag_missing_detail series = %d, want 1", got)
	}
}

// TestRunScanFailureKeepsPreviousSnapshot tests that a failed scan
// records the error but does not discard the prior metrics
func TestRunScanFailureKeepsPreviousSnapshot(t *testing.T) {
	scanner := &mockScanner{snapshot: testSnapshot(provider.RegionResult{
		Region: "us-east-1",
		Total:  1,
		Compliant: []provider.ResourceRecord{
			record("arn:aws:ec2:us-east-1:1:instance/i-1", "instance", []string{"Owner"}, nil),
		},
	})}
	c := NewComplianceCollector(scanner, testConfig(), testLogger())

	c.RunScan(context.Background())
	if !c.IsReady() {
		t.Fatal("first scan should succeed")
	}

	scanner.SetError(errors.New("sts unavailable"))
	c.RunScan(context.Background())

	if err := c.LastError(); err == nil {
		t.Error("LastError should carry the scan failure")
	}
	if !c.IsReady() {
		t.Error("readiness must survive a later failed scan")
	}
	if got := c.ResourceCount(); got != 1 {
		t.Errorf("ResourceCount = %d, want 1 (previous snapshot kept)", got)
	}

	metrics := collectAll(c)
	if got := countByDesc(metrics, c.resourcesScannedMetric); got != 1 {
		t.Errorf("resources_scanned_total series = %d, want 1 (previous snapshot kept)", got)
	}
}

// TestDetailSeriesFullyReplaced tests that missing-tag detail series do
// not survive into the next scan once the resource becomes compliant
func TestDetailSeriesFullyReplaced(t *testing.T) {
	scanner := &mockScanner{snapshot: testSnapshot(provider.RegionResult{
		Region: "us-east-1",
		Total:  1,
		NonCompliant: []provider.ResourceRecord{
			record("arn:aws:ec2:us-east-1:1:instance/i-1", "instance", nil, []string{"Owner"}),
		},
	})}
	c := NewComplianceCollector(scanner, testConfig(), testLogger())

	c.RunScan(context.Background())
	if got := countByDesc(collectAll(c), c.tagMissingDetailMetric); got != 1 {
		t.Fatalf("tag_missing_detail series = %d, want 1 after first scan", got)
	}

	// The resource gained its Owner tag between scans
	scanner.SetSnapshot(testSnapshot(provider.RegionResult{
		Region: "us-east-1",
		Total:  1,
		Compliant: []provider.ResourceRecord{
			record("arn:aws:ec2:us-east-1:1:instance/i-1", "instance", []string{"Owner"}, nil),
		},
	}))
	c.RunScan(context.Background())

	if got := countByDesc(collectAll(c), c.tagMissingDetailMetric); got != 0 {
		t.Errorf("tag_missing_detail series = %d, want 0 after the resource became compliant", got)
	}
}

// TestSingleFlight tests that a scan triggered while one is in flight
// is skipped entirely
func TestSingleFlight(t *testing.T) {
	scanner := &mockScanner{
		snapshot: testSnapshot(provider.RegionResult{Region: "us-east-1"}),
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	c := NewComplianceCollector(scanner, testConfig(), testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.RunScan(context.Background())
	}()

	<-scanner.started
	if !c.ScanInProgress() {
		t.Error("ScanInProgress should be true while the scan is blocked")
	}

	// Second trigger while the first scan is blocked: must be skipped
	c.RunScan(context.Background())
	if got := scanner.ScanCallCount(); got != 1 {
		t.Errorf("Scan called %d times, want 1 (overlapping trigger skipped)", got)
	}

	close(scanner.release)
	wg.Wait()

	if c.ScanInProgress() {
		t.Error("ScanInProgress should be false after completion")
	}
	if got := scanner.ScanCallCount(); got != 1 {
		t.Errorf("Scan called %d times after completion, want 1", got)
	}
}

// TestCollectBeforeFirstScan tests that scraping before any scan
// produces only operational metrics
func TestCollectBeforeFirstScan(t *testing.T) {
	c := NewComplianceCollector(&mockScanner{}, testConfig(), testLogger())

	metrics := collectAll(c)

	if got := countByDesc(metrics, c.resourcesScannedMetric); got != 0 {
		t.Errorf("resources_scanned_total series = %d, want 0 before first scan", got)
	}
	if got := countByDesc(metrics, c.upMetric); got != 1 {
		t.Errorf("up series = %d, want 1", got)
	}
	// up + scan duration + errors counter + build info; last scan
	// timestamp is omitted while zero
	if len(metrics) != 4 {
		t.Errorf("collected %d metrics before first scan, want 4", len(metrics))
	}
}

// waitFor polls a condition until it holds or the deadline expires
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestStartBackgroundRefresh tests the refresh goroutine lifecycle
func TestStartBackgroundRefresh(t *testing.T) {
	scanner := &mockScanner{snapshot: testSnapshot(provider.RegionResult{Region: "us-east-1"})}
	c := NewComplianceCollector(scanner, testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := c.StartBackgroundRefresh(ctx)

	// The initial scan runs in the refresh goroutine
	waitFor(t, c.IsReady, "collector never became ready after start")
	if got := scanner.ScanCallCount(); got != 1 {
		t.Errorf("Scan called %d times after start, want 1 (initial scan)", got)
	}

	// Second start must be a no-op while the loop is running
	c.StartBackgroundRefresh(ctx)
	if got := scanner.ScanCallCount(); got != 1 {
		t.Errorf("Scan called %d times after double start, want 1", got)
	}

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh loop did not stop after context cancellation")
	}
	if c.refreshStarted.Load() {
		t.Error("started flag should reset after the loop exits")
	}
}

// TestStartBackgroundRefreshDoesNotBlockCaller tests that a slow first
// scan never delays the caller, so HTTP serving starts immediately
func TestStartBackgroundRefreshDoesNotBlockCaller(t *testing.T) {
	scanner := &mockScanner{
		snapshot: testSnapshot(provider.RegionResult{Region: "us-east-1"}),
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	c := NewComplianceCollector(scanner, testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Returns while the first scan is still blocked; a synchronous
	// initial scan would deadlock here because release is not yet closed
	done := c.StartBackgroundRefresh(ctx)

	<-scanner.started
	if c.IsReady() {
		t.Error("collector must not be ready while the first scan is in flight")
	}
	if !c.ScanInProgress() {
		t.Error("ScanInProgress should be true during the first scan")
	}

	close(scanner.release)
	waitFor(t, c.IsReady, "collector never became ready after the scan finished")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh loop did not stop after context cancellation")
	}
}

// ctxSensitiveScanner surfaces the scan context's error at completion,
// so a cancelled scan context shows up as a scan failure
type ctxSensitiveScanner struct {
	snapshot *provider.Snapshot
	started  chan struct{}
	release  chan struct{}
}

func (s *ctxSensitiveScanner) Scan(ctx context.Context) (*provider.Snapshot, error) {
	close(s.started)
	<-s.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.snapshot, nil
}

func (s *ctxSensitiveScanner) AccountCount() int {
	return 1
}

// TestShutdownDoesNotAbortInFlightScan tests that cancelling the refresh
// context while a scan is running lets the scan finish and its snapshot
// be recorded
func TestShutdownDoesNotAbortInFlightScan(t *testing.T) {
	scanner := &ctxSensitiveScanner{
		snapshot: testSnapshot(provider.RegionResult{Region: "us-east-1"}),
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	c := NewComplianceCollector(scanner, testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := c.StartBackgroundRefresh(ctx)

	<-scanner.started
	cancel() // shutdown arrives mid-scan
	close(scanner.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh loop did not stop after the scan finished")
	}

	if err := c.LastError(); err != nil {
		t.Errorf("LastError = %v, want nil (in-flight scan must run to completion)", err)
	}
	if !c.IsReady() {
		t.Error("collector should be ready from the completed scan")
	}
}

// TestConcurrentCollectDuringScan tests that scrapes never block on an
// in-flight scan
func TestConcurrentCollectDuringScan(t *testing.T) {
	scanner := &mockScanner{
		snapshot: testSnapshot(provider.RegionResult{Region: "us-east-1"}),
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	c := NewComplianceCollector(scanner, testConfig(), testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.RunScan(context.Background())
	}()
	<-scanner.started

	// Concurrent scrapes while the scan is blocked
	var scrapes sync.WaitGroup
	for i := 0; i < 8; i++ {
		scrapes.Add(1)
		go func() {
			defer scrapes.Done()
			collectAll(c)
		}()
	}
	scrapes.Wait()

	close(scanner.release)
	wg.Wait()
}
