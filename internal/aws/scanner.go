package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"

	"github.com/zgpcy/aws-tag-compliance-exporter/internal/logger"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/provider"
)

// ResourcesPerPage is the discovery page size. Small enough to bound
// per-call payload, large enough to bound the call count.
const ResourcesPerPage = 100

// taggingAPI is the subset of the Resource Groups Tagging API client
// used for discovery. It is satisfied by *resourcegroupstaggingapi.Client
// and by the SDK paginator's client requirement.
type taggingAPI interface {
	GetResources(ctx context.Context, params *resourcegroupstaggingapi.GetResourcesInput, optFns ...func(*resourcegroupstaggingapi.Options)) (*resourcegroupstaggingapi.GetResourcesOutput, error)
}

// regionScanner enumerates every resource visible to the tagging API in
// one region of one account and classifies each against the required-tag
// policy.
type regionScanner struct {
	client        taggingAPI
	region        string
	requiredTags  []string
	excludedTypes []string
	logger        *logger.Logger
}

// scan drives paginated discovery and returns the region result. A page
// error aborts further pagination for this region only; the partial
// results accumulated so far are kept and the error is recorded.
func (s *regionScanner) scan(ctx context.Context, accountID, accountName string) provider.RegionResult {
	result := provider.RegionResult{Region: s.region}

	paginator := resourcegroupstaggingapi.NewGetResourcesPaginator(s.client, &resourcegroupstaggingapi.GetResourcesInput{
		ResourcesPerPage: aws.Int32(ResourcesPerPage),
	})

	pageNum := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			errMsg := fmt.Sprintf("AWS API error in region %s: %v", s.region, err)
			s.logger.Error("Resource discovery failed, keeping partial results",
				"account_id", accountID,
				"region", s.region,
				"page", pageNum+1,
				"error", err)
			result.Errors = append(result.Errors, errMsg)
			break
		}

		pageNum++
		s.logger.Debug("Processing discovery page",
			"region", s.region,
			"page", pageNum,
			"resources", len(page.ResourceTagMappingList))

		for _, mapping := range page.ResourceTagMappingList {
			result.Total++

			arn := aws.ToString(mapping.ResourceARN)
			service, resourceType := parseResourceARN(arn)

			if excludedResourceType(resourceType, s.excludedTypes) {
				result.Excluded++
				continue
			}

			tags := extractTags(mapping.Tags)
			present, missing := validateTags(tags, s.requiredTags)

			record := provider.ResourceRecord{
				AccountID:    accountID,
				AccountName:  accountName,
				Region:       s.region,
				ResourceARN:  arn,
				ResourceType: resourceType,
				Service:      service,
				PresentTags:  present,
				MissingTags:  missing,
				RawTags:      tags,
			}

			if len(missing) > 0 {
				result.NonCompliant = append(result.NonCompliant, record)
			} else {
				result.Compliant = append(result.Compliant, record)
			}
		}
	}

	s.logger.Info("Region scan finished",
		"account_id", accountID,
		"region", s.region,
		"total", result.Total,
		"excluded", result.Excluded,
		"compliant", len(result.Compliant),
		"non_compliant", len(result.NonCompliant),
		"errors", len(result.Errors))

	return result
}

// extractTags converts the API tag list to a key/value map
func extractTags(tagList []types.Tag) map[string]string {
	tags := make(map[string]string, len(tagList))
	for _, tag := range tagList {
		if tag.Key == nil {
			continue
		}
		tags[*tag.Key] = aws.ToString(tag.Value)
	}
	return tags
}
