package aws

import (
	"strings"
)

// unknownValue is used when an ARN cannot be parsed
const unknownValue = "unknown"

// parseResourceARN extracts the service and resource type from an ARN.
//
// ARN format: arn:partition:service:region:account:resource[/sub-resource]
// The resource type is the text before the first "/" of the resource
// segment; when the resource segment has no "/" (or is absent) it falls
// back to the service name. Malformed input never panics.
func parseResourceARN(arn string) (service, resourceType string) {
	if arn == "" || !strings.Contains(arn, ":") {
		return unknownValue, unknownValue
	}

	parts := strings.SplitN(arn, ":", 6)
	if len(parts) <= 2 {
		return unknownValue, unknownValue
	}
	service = parts[2]
	if service == "" {
		service = unknownValue
	}

	resourcePart := ""
	if len(parts) > 5 {
		resourcePart = parts[5]
	}
	if idx := strings.Index(resourcePart, "/"); idx >= 0 {
		return service, resourcePart[:idx]
	}
	return service, service
}

// excludedResourceType reports whether a resource type matches any of the
// exclusion patterns. Matching is case-insensitive; "*" characters are
// stripped and the remaining text must occur anywhere in the resource
// type. The first matching pattern short-circuits.
func excludedResourceType(resourceType string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	lowered := strings.ToLower(resourceType)
	for _, pattern := range patterns {
		needle := strings.ToLower(strings.ReplaceAll(pattern, "*", ""))
		if needle == "" {
			continue
		}
		if strings.Contains(lowered, needle) {
			return true
		}
	}
	return false
}

// validateTags partitions the required-tag list into tags present as
// keys of the resource's tag set and tags absent from it, preserving
// required-tag order. Tag values are irrelevant; only key presence
// matters. The caller deduplicates the required list up front.
func validateTags(rawTags map[string]string, requiredTags []string) (present, missing []string) {
	for _, tag := range requiredTags {
		if _, ok := rawTags[tag]; ok {
			present = append(present, tag)
		} else {
			missing = append(missing, tag)
		}
	}
	return present, missing
}
