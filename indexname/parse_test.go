package indexname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Parsed
	}{
		{
			name: "legacy dotted with namespace",
			raw:  "metrics.payments.prod",
			want: Parsed{
				Scheme:      SchemeLegacyDotted,
				Type:        strPtr("logs"),
				Dataset:     strPtr("metrics"),
				Namespace:   strPtr("payments"),
				Environment: strPtr("default"),
				Application: strPtr("metrics.payments"),
			},
		},
		{
			name: "legacy dotted two segments has no namespace",
			raw:  "metrics.payments",
			want: Parsed{
				Scheme:      SchemeLegacyDotted,
				Type:        strPtr("logs"),
				Dataset:     strPtr("metrics"),
				Environment: strPtr("default"),
				Application: strPtr("metrics"),
			},
		},
		{
			name: "legacy dotted deep namespace excludes suffix",
			raw:  "logs.team.svc.prod",
			want: Parsed{
				Scheme:      SchemeLegacyDotted,
				Type:        strPtr("logs"),
				Dataset:     strPtr("logs"),
				Namespace:   strPtr("team.svc"),
				Environment: strPtr("default"),
				Application: strPtr("logs.team.svc"),
			},
		},
		{
			name: "marker mid-name still parses as legacy dotted",
			raw:  "foo.ds-bar",
			want: Parsed{
				Scheme:      SchemeLegacyDotted,
				Type:        strPtr("logs"),
				Dataset:     strPtr("foo"),
				Environment: strPtr("default"),
				Application: strPtr("foo"),
			},
		},
		{
			name: "hidden system index has empty dataset",
			raw:  ".kibana",
			want: Parsed{
				Scheme:      SchemeLegacyDotted,
				Type:        strPtr("logs"),
				Dataset:     strPtr(""),
				Environment: strPtr("default"),
				Application: strPtr(""),
			},
		},
		{
			name: "empty middle segment keeps empty namespace out of application",
			raw:  "a..b",
			want: Parsed{
				Scheme:      SchemeLegacyDotted,
				Type:        strPtr("logs"),
				Dataset:     strPtr("a"),
				Namespace:   strPtr(""),
				Environment: strPtr("default"),
				Application: strPtr("a"),
			},
		},
		{
			name: "structured primary with dotted namespace leaves environment unset",
			raw:  ".ds-logs-nginx.access-2024.01.15-000003",
			want: Parsed{
				Scheme:      SchemeStructured,
				Type:        strPtr("logs"),
				Dataset:     strPtr("nginx"),
				Namespace:   strPtr("access"),
				Application: strPtr("nginx.access"),
				Date:        strPtr("2024-01-15"),
				Iteration:   strPtr("000003"),
			},
		},
		{
			name: "structured primary without namespace defaults environment",
			raw:  ".ds-logs-nginx-2024.01.15-000003",
			want: Parsed{
				Scheme:      SchemeStructured,
				Type:        strPtr("logs"),
				Dataset:     strPtr("nginx"),
				Environment: strPtr("default"),
				Application: strPtr("nginx"),
				Date:        strPtr("2024-01-15"),
				Iteration:   strPtr("000003"),
			},
		},
		{
			name: "structured hyphenated namespace splits off environment",
			raw:  ".ds-metrics-app.team-prod-2024.01.15-000001",
			want: Parsed{
				Scheme:      SchemeStructured,
				Type:        strPtr("metrics"),
				Dataset:     strPtr("app"),
				Namespace:   strPtr("team"),
				Environment: strPtr("prod"),
				Application: strPtr("app.team"),
				Date:        strPtr("2024-01-15"),
				Iteration:   strPtr("000001"),
			},
		},
		{
			name: "structured secondary single-token namespace leaves environment unset",
			raw:  ".ds-logs-nginx-access-2024.01.15-000042",
			want: Parsed{
				Scheme:      SchemeStructured,
				Type:        strPtr("logs"),
				Dataset:     strPtr("nginx"),
				Namespace:   strPtr("access"),
				Application: strPtr("nginx.access"),
				Date:        strPtr("2024-01-15"),
				Iteration:   strPtr("000042"),
			},
		},
		{
			name: "fallback mirrors application into environment",
			raw:  ".ds-logs-payments-gateway-2024.13.45-abc",
			want: Parsed{
				Scheme:      SchemeTextualFallback,
				Type:        strPtr("logs"),
				Dataset:     strPtr("logs"),
				Namespace:   strPtr("payments"),
				Environment: strPtr("logs.payments"),
				Application: strPtr("logs.payments"),
				Date:        strPtr("2024-13-45"),
			},
		},
		{
			name: "fallback trim eats leading dataset letters",
			raw:  ".ds-dataset-2024.01.15-000001",
			want: Parsed{
				Scheme:      SchemeTextualFallback,
				Type:        strPtr("logs"),
				Dataset:     strPtr("ataset"),
				Namespace:   strPtr(""),
				Environment: strPtr("ataset"),
				Application: strPtr("ataset"),
				Date:        strPtr("2024-01-15"),
				Iteration:   strPtr("000001"),
			},
		},
		{
			name: "fallback wide salvage uses the remaining token as namespace",
			raw:  ".ds-logs-apache",
			want: Parsed{
				Scheme:      SchemeTextualFallback,
				Type:        strPtr("logs"),
				Dataset:     strPtr("logs"),
				Namespace:   strPtr("apache"),
				Environment: strPtr("logs.apache"),
				Application: strPtr("logs.apache"),
			},
		},
		{
			name: "fallback keeps date but drops non-numeric iteration",
			raw:  ".ds-my_app-prod-2024.01.15-abc",
			want: Parsed{
				Scheme:      SchemeTextualFallback,
				Type:        strPtr("logs"),
				Dataset:     strPtr("my_app"),
				Namespace:   strPtr("prod"),
				Environment: strPtr("my_app.prod"),
				Application: strPtr("my_app.prod"),
				Date:        strPtr("2024-01-15"),
			},
		},
		{
			name: "bare marker yields empty fallback record",
			raw:  ".ds-",
			want: Parsed{
				Scheme:      SchemeTextualFallback,
				Type:        strPtr("logs"),
				Dataset:     strPtr(""),
				Environment: strPtr(""),
				Application: strPtr(""),
			},
		},
		{
			name: "undotted name is unrecognized",
			raw:  "randomname123",
			want: Parsed{Scheme: SchemeUnrecognized},
		},
		{
			name: "empty input is unrecognized",
			raw:  "",
			want: Parsed{Scheme: SchemeUnrecognized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestParse_ApplicationInvariant checks that for every classified name
// the application field equals dataset, or dataset "." namespace when a
// non-empty namespace is present.
func TestParse_ApplicationInvariant(t *testing.T) {
	inputs := []string{
		"metrics.payments.prod",
		"metrics.payments",
		"logs.team.svc.prod",
		".kibana",
		"a..b",
		".ds-logs-nginx.access-2024.01.15-000003",
		".ds-logs-nginx-2024.01.15-000003",
		".ds-metrics-app.team-prod-2024.01.15-000001",
		".ds-logs-nginx-access-2024.01.15-000042",
		".ds-logs-payments-gateway-2024.13.45-abc",
		".ds-dataset-2024.01.15-000001",
		".ds-logs-apache",
		".ds-",
	}

	for _, raw := range inputs {
		got := Parse(raw)
		require.NotEqual(t, SchemeUnrecognized, got.Scheme, "input %q", raw)
		require.NotNil(t, got.Dataset, "input %q", raw)
		require.NotNil(t, got.Application, "input %q", raw)

		expected := *got.Dataset
		if got.Namespace != nil && *got.Namespace != "" {
			expected += "." + *got.Namespace
		}
		assert.Equal(t, expected, *got.Application, "input %q", raw)
	}
}

func TestParse_Deterministic(t *testing.T) {
	inputs := []string{
		"metrics.payments.prod",
		".ds-logs-nginx.access-2024.01.15-000003",
		".ds-logs-payments-gateway-2024.13.45-abc",
		"randomname123",
	}
	for _, raw := range inputs {
		first := Parse(raw)
		second := Parse(raw)
		assert.Equal(t, first, second, "input %q", raw)
	}
}

func TestClassifyEnvironment(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"nonprod wins over prod substring", "logs-payments-nonprod", "nonprod"},
		{"prod", "logs-payments-prod", "prod"},
		{"case insensitive", "LOGS-PAYMENTS-PROD", "prod"},
		{"dev", "metrics-devteam", "dev"},
		{"default namespace", "logs-nginx-default", "default"},
		{"operations", "traces-operations", "operations"},
		{"no keyword", "logs-nginx-access", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyEnvironment(tt.in))
		})
	}
}
