package indexname

import "strings"

// ClassifyEnvironment buckets a data stream or index name into a
// deployment tier by keyword. Matching is case-insensitive and ordered:
// "nonprod" is tested before "prod" because every nonprod name contains
// prod as a substring. Names matching no keyword classify as "other".
func ClassifyEnvironment(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "nonprod"):
		return "nonprod"
	case strings.Contains(lower, "prod"):
		return "prod"
	case strings.Contains(lower, "dev"):
		return "dev"
	case strings.Contains(lower, "default"):
		return "default"
	case strings.Contains(lower, "operations"):
		return "operations"
	default:
		return "other"
	}
}
