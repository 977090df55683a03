package provider

import (
	"context"
)

// ComplianceScanner is the interface the collector uses to run a full
// compliance scan. The AWS implementation lives in internal/aws; tests
// substitute fakes.
type ComplianceScanner interface {
	// Scan discovers resources across all configured accounts and regions
	// and classifies their tags against the required-tag policy.
	Scan(ctx context.Context) (*Snapshot, error)

	// AccountCount returns the number of accounts being scanned
	AccountCount() int
}

// ResourceRecord represents a single discovered resource and its tag
// classification. Records are created once per scan cycle and never
// mutated afterwards.
type ResourceRecord struct {
	AccountID    string
	AccountName  string
	Region       string
	ResourceARN  string
	ResourceType string
	Service      string

	// PresentTags and MissingTags partition the required-tag list for
	// this resource: their union is the required list, their
	// intersection is empty.
	PresentTags []string
	MissingTags []string

	// RawTags holds the full tag set as returned by the API
	RawTags map[string]string
}

// Compliant reports whether the resource carries every required tag
func (r *ResourceRecord) Compliant() bool {
	return len(r.MissingTags) == 0
}

// RegionResult holds the outcome of scanning one region of one account.
// A non-empty Errors list means pagination was cut short; the partial
// results accumulated before the failure are kept.
type RegionResult struct {
	Region       string
	Total        int
	Excluded     int
	Compliant    []ResourceRecord
	NonCompliant []ResourceRecord
	Errors       []string
}

// AccountResult holds the outcome of scanning one account. A non-empty
// Err means credential resolution failed and no regions were scanned.
type AccountResult struct {
	AccountID   string
	AccountName string
	Err         string
	Regions     []RegionResult
}

// Snapshot is the full output of one scan cycle. Accounts and regions
// appear in configuration order for deterministic reporting; downstream
// aggregation does not depend on order.
type Snapshot struct {
	Accounts []AccountResult
}

// TotalResources returns the number of resources enumerated across all
// accounts and regions, including excluded ones.
func (s *Snapshot) TotalResources() int {
	total := 0
	for _, acct := range s.Accounts {
		for _, region := range acct.Regions {
			total += region.Total
		}
	}
	return total
}
