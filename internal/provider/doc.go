// Package provider defines the compliance scanner abstraction and the
// data model shared between the AWS scan pipeline and the metrics
// collector.
//
// The ComplianceScanner interface decouples the collector from the AWS
// SDK so the refresh and aggregation logic can be tested against fakes:
//
//	type ComplianceScanner interface {
//		Scan(ctx context.Context) (*Snapshot, error)
//		AccountCount() int
//	}
//
// A Snapshot is the complete result of one scan cycle:
//
//	Snapshot
//	  └── AccountResult (per account, in configuration order)
//	        ├── Err (set when credential resolution failed; no regions)
//	        └── RegionResult (per region, in configuration order)
//	              ├── Total / Excluded counters
//	              ├── Compliant / NonCompliant resource records
//	              └── Errors (pagination failures; partial results kept)
//
// Each ResourceRecord partitions the required-tag list into PresentTags
// and MissingTags based on key presence; tag values are irrelevant to
// compliance. A record is non-compliant iff MissingTags is non-empty.
//
// Failure isolation is carried in the data rather than as Go errors:
// one account's credential failure or one region's API failure degrades
// the snapshot's completeness but never discards the rest of the run.
package provider
