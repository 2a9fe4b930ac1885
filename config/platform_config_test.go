package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformConfig_OrgValidation(t *testing.T) {
	// The org becomes a NATS subject segment, so Validate enforces the
	// subject grammar on it.
	tests := []struct {
		name      string
		org       string
		wantError string
	}{
		{"valid org", "platform-ops", ""},
		{"org normalized to lowercase", "PLATFORM-OPS", ""},
		{"missing org", "", "platform.org is required"},
		{"org with invalid characters", "platform-ops@corp", "platform.org 'platform-ops@corp' is not valid for NATS subjects"},
		{"org with spaces", "platform ops", "platform.org 'platform ops' is not valid for NATS subjects"},
		{"valid org with dots and dashes", "platform-ops.dev", ""},
		{"valid org with underscores", "platform_ops", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Platform: PlatformConfig{Org: tt.org, ID: "ingest-calc-1"}}
			err := cfg.Validate()
			if tt.wantError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

func TestPlatformConfig_OrgLowercased(t *testing.T) {
	cfg := &Config{Platform: PlatformConfig{Org: "PLATFORM-OPS", ID: "ingest-calc-1"}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "platform-ops", cfg.Platform.Org)
}

func TestIsValidNATSSubjectPart(t *testing.T) {
	valid := []string{"platform-ops", "PLATFORM-OPS", "platform-ops-x", "platform_ops", "platform.ops", "123org"}
	for _, s := range valid {
		assert.True(t, isValidNATSSubjectPart(s), "%q should be a valid subject part", s)
	}

	// NATS wildcards and shell-ish punctuation never belong in a subject.
	invalid := []string{"", "platform-ops@corp", "platform ops", "platform#ops", "platform!ops", "platform*", "platform>"}
	for _, s := range invalid {
		assert.False(t, isValidNATSSubjectPart(s), "%q should be rejected", s)
	}
}
