// Package indexname decomposes raw index and backing-index names into
// their logical parts: dataset, namespace, environment, application,
// creation date and rollover iteration.
//
// Names on the platform follow several conventions that accumulated over
// time. Parse recognizes which convention a name follows and extracts
// fields accordingly; each convention is its own extraction function so
// its rules stay independently testable. Parse is pure and total: it
// never fails, holds no state, and is safe to call from any number of
// goroutines.
package indexname

import (
	"regexp"
	"strings"
)

// Scheme identifies which naming convention a name was classified under.
type Scheme string

// The four recognized schemes. Exactly one applies per name.
const (
	// SchemeLegacyDotted covers plain dot-separated names that predate
	// data streams, such as "metrics.payments.prod".
	SchemeLegacyDotted Scheme = "legacy-dotted"

	// SchemeStructured covers platform-generated backing index names,
	// ".ds-<type>-<dataset>[.<namespace>]-<yyyy.MM.dd>-<iteration>".
	SchemeStructured Scheme = "datastream-structured"

	// SchemeTextualFallback covers names carrying the ".ds-" marker
	// that fail both structured grammars and are salvaged token-wise.
	SchemeTextualFallback Scheme = "datastream-textual-fallback"

	// SchemeUnrecognized is the total-function escape hatch: no
	// convention matched, every other field is nil.
	SchemeUnrecognized Scheme = "unrecognized"
)

// Parsed is the decomposed form of a single index name. Every field
// except Scheme is optional; nil means the convention carries no such
// token for that name. Parsed is a value object: once returned it is
// never mutated.
type Parsed struct {
	Scheme      Scheme  `json:"scheme"`
	Type        *string `json:"type"`
	Dataset     *string `json:"dataset"`
	Namespace   *string `json:"namespace"`
	Environment *string `json:"environment"`
	Application *string `json:"application"`
	Date        *string `json:"date"`
	Iteration   *string `json:"iteration"`
}

var (
	// versionSuffix recognizes a trailing three-part version number in
	// legacy dotted names.
	versionSuffix = regexp.MustCompile(`^\d+\.\d+\.\d+`)

	// datePrefix accepts tokens that open with a yyyy.MM.dd shape. Only
	// the shape is checked, not calendar validity.
	datePrefix = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}`)

	numericToken = regexp.MustCompile(`^\d+$`)

	// The primary grammar allows a dotted, multi-segment namespace; the
	// secondary accepts a single plain token joined by hyphens instead.
	structuredPrimary = regexp.MustCompile(
		`^\.ds-(?P<type>\w+)-(?P<dataset>\w+)(?:\.(?P<namespace>[\w.-]+))?` +
			`-(?P<created_date>\d{4}\.\d{2}\.\d{2})-(?P<iteration>\d+)`)
	structuredSecondary = regexp.MustCompile(
		`^\.ds-(?P<type>\w+)-(?P<dataset>\w+)-(?P<namespace>\w+)` +
			`-(?P<created_date>\d{4}\.\d{2}\.\d{2})-(?P<iteration>\d+)`)
)

// Parse classifies a raw index name and extracts its fields. The guard
// chain is ordered and first match wins: dotted names that do not open
// with the data stream marker go to the legacy convention, names
// carrying the marker try the structured grammars and degrade to the
// textual fallback, everything else is unrecognized.
func Parse(raw string) Parsed {
	switch {
	case strings.Contains(raw, ".") && !strings.HasPrefix(raw, ".ds-"):
		return parseLegacyDotted(raw)
	case strings.Contains(raw, ".ds-"):
		if parsed, ok := parseStructured(raw); ok {
			return parsed
		}
		return parseTextualFallback(raw)
	default:
		return Parsed{Scheme: SchemeUnrecognized}
	}
}

// parseLegacyDotted splits a dotted name into dataset, middle namespace
// segments and a trailing suffix. A suffix shaped like a three-part
// version number shifts the environment to the segment before it and
// shortens the namespace accordingly; otherwise the environment stays
// "default".
func parseLegacyDotted(raw string) Parsed {
	parts := strings.Split(raw, ".")

	dataset := parts[0]
	var namespace *string
	if len(parts) > 2 {
		namespace = strPtr(strings.Join(parts[1:len(parts)-1], "."))
	}
	suffix := parts[len(parts)-1]

	environment := "default"
	if versionSuffix.MatchString(suffix) {
		namespace = nil
		if len(parts) > 3 {
			namespace = strPtr(strings.Join(parts[1:len(parts)-2], "."))
		}
		if len(parts) > 2 {
			environment = parts[len(parts)-2]
		}
	}

	application := applicationFor(dataset, namespace)
	return Parsed{
		Scheme:      SchemeLegacyDotted,
		Type:        strPtr("logs"),
		Dataset:     &dataset,
		Namespace:   namespace,
		Environment: &environment,
		Application: &application,
	}
}

// parseStructured tries the two anchored grammars in order and reports
// whether either matched.
func parseStructured(raw string) (Parsed, bool) {
	pattern := structuredPrimary
	match := pattern.FindStringSubmatch(raw)
	if match == nil {
		pattern = structuredSecondary
		match = pattern.FindStringSubmatch(raw)
	}
	if match == nil {
		return Parsed{}, false
	}

	group := func(name string) string {
		return match[pattern.SubexpIndex(name)]
	}

	dataset := group("dataset")
	var namespace *string
	if ns := group("namespace"); ns != "" {
		namespace = &ns
	}

	// Environment is only ever split off a hyphenated namespace, and
	// only a missing namespace defaults it. A single-token namespace
	// leaves it nil.
	var environment *string
	if namespace == nil {
		environment = strPtr("default")
	} else if i := strings.LastIndex(*namespace, "-"); i >= 0 {
		environment = strPtr((*namespace)[i+1:])
		namespace = strPtr((*namespace)[:i])
	}

	application := applicationFor(dataset, namespace)
	date := strings.ReplaceAll(group("created_date"), ".", "-")
	return Parsed{
		Scheme:      SchemeStructured,
		Type:        strPtr(group("type")),
		Dataset:     &dataset,
		Namespace:   namespace,
		Environment: environment,
		Application: &application,
		Date:        &date,
		Iteration:   strPtr(group("iteration")),
	}, true
}

// parseTextualFallback salvages names carrying the data stream marker
// that fail both structured grammars. The marker is removed as a
// character-class trim, not a literal prefix: every leading '.', 'd',
// 's' and '-' goes, so a dataset name that begins with one of those
// letters loses characters. Historical exports depend on exactly this
// trim; changing it reshuffles dataset and application for affected
// names.
func parseTextualFallback(raw string) Parsed {
	stripped := strings.TrimLeft(raw, ".ds-")
	parts := strings.Split(stripped, "-")

	dataset := parts[0]
	var namespace *string
	if len(parts) > 2 {
		namespace = strPtr(strings.Join(parts[1:len(parts)-2], "-"))
	}

	var date *string
	if len(parts) > 1 && datePrefix.MatchString(parts[len(parts)-2]) {
		date = strPtr(strings.ReplaceAll(parts[len(parts)-2], ".", "-"))
	}
	var iteration *string
	if len(parts) > 1 && numericToken.MatchString(parts[len(parts)-1]) {
		iteration = strPtr(parts[len(parts)-1])
	}

	// Wider salvage, applied only when the narrow slice produced
	// nothing: every token after the dataset becomes namespace.
	if namespace == nil && len(parts) > 1 {
		namespace = strPtr(strings.Join(parts[1:], "-"))
	}

	// The token after the last hyphen reads as an environment, but
	// records from this convention carry the application value in the
	// environment column, not the trimmed suffix. The split still
	// shortens the namespace.
	if namespace != nil {
		if i := strings.LastIndex(*namespace, "-"); i >= 0 {
			namespace = strPtr((*namespace)[:i])
		}
	}

	application := applicationFor(dataset, namespace)
	return Parsed{
		Scheme:      SchemeTextualFallback,
		Type:        strPtr("logs"),
		Dataset:     &dataset,
		Namespace:   namespace,
		Date:        date,
		Iteration:   iteration,
		Environment: strPtr(application),
		Application: &application,
	}
}

// applicationFor joins dataset and namespace with a dot. An absent or
// empty namespace yields the dataset alone.
func applicationFor(dataset string, namespace *string) string {
	if namespace != nil && *namespace != "" {
		return dataset + "." + *namespace
	}
	return dataset
}

func strPtr(s string) *string { return &s }
