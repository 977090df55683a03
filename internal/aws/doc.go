// Package aws implements the AWS resource discovery and tag
// classification pipeline.
//
// This package drives the scan across the configured account matrix and
// produces the compliance snapshot consumed by the metrics collector.
// It handles:
//   - Per-account credential resolution (override role ARN, templated
//     role name, or ambient identity) via a single STS AssumeRole call
//   - Paginated resource discovery through the Resource Groups Tagging
//     API at 100 resources per page
//   - ARN classification into (service, resource type)
//   - Exclusion filtering of resource types by pattern
//   - Required-tag validation by key presence
//
// The main type is Client, which implements provider.ComplianceScanner:
//
//	client, err := aws.NewClient(ctx, cfg, log)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	snapshot, err := client.Scan(ctx)
//	for _, acct := range snapshot.Accounts {
//		for _, region := range acct.Regions {
//			fmt.Printf("%s/%s: %d scanned, %d non-compliant\n",
//				acct.AccountID, region.Region,
//				region.Total, len(region.NonCompliant))
//		}
//	}
//
// Failure isolation: a credential failure is recorded on the account and
// the scan moves to the next account; a discovery failure is recorded on
// the region, keeps the partial results, and the scan moves to the next
// region. Retry policy lives in the SDK's standard retryer (5 attempts,
// 10s connect / 60s request timeouts); nothing here retries on top of it.
package aws
