package collector

import (
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/provider"
)

// MaxARNLabelLength bounds the resource_arn label value. Longer ARNs are
// truncated; a deliberate accuracy/cardinality trade-off.
const MaxARNLabelLength = 200

// Label key tuples for the gauge families. Aggregation uses maps keyed
// by these so every series is computed exactly once per pass.
type regionKey struct {
	accountName string
	accountID   string
	region      string
}

type tagKey struct {
	tag string
	regionKey
}

type tagTypeKey struct {
	tag          string
	resourceType string
	regionKey
}

type typeKey struct {
	resourceType string
	regionKey
}

type detailKey struct {
	tag          string
	resourceType string
	resourceARN  string
	regionKey
}

// metricsSnapshot is the fully aggregated label/value set for one scan
// cycle. It is rebuilt from scratch on every aggregation pass and swapped
// in whole, so series from a prior pass can never survive into the next.
type metricsSnapshot struct {
	scanned           map[regionKey]float64
	compliancePct     map[regionKey]float64
	fullyCompliant    map[regionKey]float64
	tagCompliant      map[tagKey]float64
	tagNonCompliant   map[tagKey]float64
	tagCompliancePct  map[tagKey]float64
	tagTypePct        map[tagTypeKey]float64
	typeCompliant     map[typeKey]float64
	typeCompliancePct map[typeKey]float64
	missingDetail     []detailKey
	resourceCount     int
}

// aggregate converts a compliance snapshot into the full metrics value
// set. Accounts with a top-level error are skipped entirely rather than
// reported as zero.
func aggregate(snapshot *provider.Snapshot) *metricsSnapshot {
	m := &metricsSnapshot{
		scanned:           make(map[regionKey]float64),
		compliancePct:     make(map[regionKey]float64),
		fullyCompliant:    make(map[regionKey]float64),
		tagCompliant:      make(map[tagKey]float64),
		tagNonCompliant:   make(map[tagKey]float64),
		tagCompliancePct:  make(map[tagKey]float64),
		tagTypePct:        make(map[tagTypeKey]float64),
		typeCompliant:     make(map[typeKey]float64),
		typeCompliancePct: make(map[typeKey]float64),
	}
	if snapshot == nil {
		return m
	}

	for _, acct := range snapshot.Accounts {
		if acct.Err != "" {
			continue
		}
		for _, region := range acct.Regions {
			rk := regionKey{
				accountName: acct.AccountName,
				accountID:   acct.AccountID,
				region:      region.Region,
			}
			aggregateRegion(m, rk, &region)
			m.resourceCount += region.Total
		}
	}

	return m
}

// aggregateRegion computes all series for one (account, region) pair
func aggregateRegion(m *metricsSnapshot, rk regionKey, region *provider.RegionResult) {
	compliantCount := len(region.Compliant)

	m.scanned[rk] = float64(region.Total)
	m.fullyCompliant[rk] = float64(compliantCount)
	m.compliancePct[rk] = percentage(compliantCount, region.Total)

	// Per-tag and per-type tallies, local to this region. A resource
	// contributes to a tag's compliant count whenever the tag is present,
	// regardless of whether the resource is compliant overall.
	tagPresent := make(map[tagKey]int)
	tagMissing := make(map[tagKey]int)
	tagTypeMissing := make(map[tagTypeKey]int)
	tagTypePresent := make(map[tagTypeKey]int)
	typeTotal := make(map[typeKey]int)

	for i := range region.NonCompliant {
		rec := &region.NonCompliant[i]
		tk := typeKey{resourceType: rec.ResourceType, regionKey: rk}
		typeTotal[tk]++

		for _, tag := range rec.MissingTags {
			tagMissing[tagKey{tag: tag, regionKey: rk}]++
			tagTypeMissing[tagTypeKey{tag: tag, resourceType: rec.ResourceType, regionKey: rk}]++
			m.missingDetail = append(m.missingDetail, detailKey{
				tag:          tag,
				resourceType: rec.ResourceType,
				resourceARN:  truncateARN(rec.ResourceARN),
				regionKey:    rk,
			})
		}
		for _, tag := range rec.PresentTags {
			tagPresent[tagKey{tag: tag, regionKey: rk}]++
			tagTypePresent[tagTypeKey{tag: tag, resourceType: rec.ResourceType, regionKey: rk}]++
		}
	}

	for i := range region.Compliant {
		rec := &region.Compliant[i]
		tk := typeKey{resourceType: rec.ResourceType, regionKey: rk}
		typeTotal[tk]++
		m.typeCompliant[tk]++

		for _, tag := range rec.PresentTags {
			tagPresent[tagKey{tag: tag, regionKey: rk}]++
			tagTypePresent[tagTypeKey{tag: tag, resourceType: rec.ResourceType, regionKey: rk}]++
		}
	}

	// Per-tag counts and compliance percentage over every tag seen in
	// this region
	for tk, present := range tagPresent {
		m.tagCompliant[tk] = float64(present)
		m.tagCompliancePct[tk] = percentage(present, present+tagMissing[tk])
	}
	for tk, missing := range tagMissing {
		m.tagNonCompliant[tk] = float64(missing)
		if _, ok := m.tagCompliancePct[tk]; !ok {
			m.tagCompliancePct[tk] = percentage(0, missing)
		}
	}

	// Per-(tag, resource type) compliance percentage
	for ttk, present := range tagTypePresent {
		m.tagTypePct[ttk] = percentage(present, present+tagTypeMissing[ttk])
	}
	for ttk, missing := range tagTypeMissing {
		if _, ok := m.tagTypePct[ttk]; !ok {
			m.tagTypePct[ttk] = percentage(0, missing)
		}
	}

	// Per-resource-type fully-compliant count and percentage
	for tk, total := range typeTotal {
		m.typeCompliancePct[tk] = percentage(int(m.typeCompliant[tk]), total)
		if _, ok := m.typeCompliant[tk]; !ok {
			m.typeCompliant[tk] = 0
		}
	}
}

// percentage returns count/total*100, and 0 when total is 0
func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

// truncateARN bounds an ARN used as a label value to MaxARNLabelLength
func truncateARN(arn string) string {
	if len(arn) > MaxARNLabelLength {
		return arn[:MaxARNLabelLength]
	}
	return arn
}
