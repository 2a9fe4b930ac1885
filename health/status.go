package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/component"
)

// Sanitization patterns, compiled once. Order matters: URLs before paths,
// since a URL contains a path.
var (
	httpURLRegex = regexp.MustCompile(`https?://[^\s]+`)
	natsURLRegex = regexp.MustCompile(`nats://[^\s]+`)
	wsURLRegex   = regexp.MustCompile(`wss?://[^\s]+`)

	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)

	ipAddrRegex = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex   = regexp.MustCompile(`:\d{2,5}\b`)

	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one component or an aggregate of them. It is a
// value type; the With* methods return copies.
type Status struct {
	Component string    `json:"component"`
	Status    string    `json:"status"`  // "healthy", "unhealthy", "degraded"
	Healthy   bool      `json:"healthy"` // true if status is "healthy"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	Metrics     *Metrics `json:"metrics,omitempty"`
	SubStatuses []Status `json:"sub_statuses,omitempty"`
}

// Metrics carries the numbers behind a status.
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	MessagesProcessed int64         `json:"messages_processed,omitempty"`
	LastActivity      time.Time     `json:"last_activity,omitempty"`
	ErrorCount        int           `json:"error_count"`
}

func (s Status) IsHealthy() bool   { return s.Status == "healthy" }
func (s Status) IsDegraded() bool  { return s.Status == "degraded" }
func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// WithMetrics returns a copy with metrics attached.
func (s Status) WithMetrics(m *Metrics) Status {
	s.Metrics = m
	return s
}

// WithSubStatus returns a copy with sub appended. The slice is
// reallocated so two copies never share a backing array.
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, sub)
	return s
}

// sanitizeErrorMessage scrubs cluster URLs, file paths, IPs, ports, and
// credential-shaped substrings from an error before it reaches a /health
// payload. Scan errors routinely embed the Elasticsearch endpoint and an
// API key; neither belongs on a dashboard.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	rules := []struct {
		re          *regexp.Regexp
		replacement string
	}{
		{httpURLRegex, "[URL]"},
		{natsURLRegex, "[URL]"},
		{wsURLRegex, "[URL]"},
		{unixPathRegex, "[PATH]"},
		{windowsPathRegex, "[PATH]"},
		{ipAddrRegex, "[IP]"},
		{portRegex, "[PORT]"},
	}
	msg := err
	for _, rule := range rules {
		msg = rule.re.ReplaceAllString(msg, rule.replacement)
	}

	// Match case-insensitively, replace in the original casing.
	lower := strings.ToLower(msg)
	for _, keyword := range []string{"password", "token", "key", "secret", "credential"} {
		if strings.Contains(lower, keyword) {
			msg = credentialRegex.ReplaceAllString(msg, "[REDACTED]")
			break
		}
	}
	return msg
}

// FromComponentHealth converts a component.HealthStatus into a Status,
// sanitizing the last error message on the way.
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	status := "unhealthy"
	message := "Component unhealthy"
	if ch.Healthy {
		status = "healthy"
		message = "Component healthy"
	}
	if ch.LastError != "" {
		message = sanitizeErrorMessage(ch.LastError)
	}

	return Status{
		Component: name,
		Status:    status,
		Healthy:   ch.Healthy,
		Message:   message,
		Timestamp: time.Now(),
		Metrics: &Metrics{
			Uptime:       ch.Uptime,
			LastActivity: ch.LastCheck,
			ErrorCount:   ch.ErrorCount,
		},
	}
}
