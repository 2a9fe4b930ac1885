package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var _ Meta = (*DefaultMeta)(nil)

func TestNewDefaultMeta(t *testing.T) {
	created := time.Now().Add(-45 * time.Minute)
	meta := NewDefaultMeta(created, "input.clusterscan")

	assert.Equal(t, "input.clusterscan", meta.Source())
	// Millisecond storage drops the nanoseconds.
	assert.WithinDuration(t, created, meta.CreatedAt(), time.Millisecond)
	assert.WithinDuration(t, time.Now(), meta.ReceivedAt(), 200*time.Millisecond)
}

func TestNewDefaultMetaWithReceivedAt(t *testing.T) {
	created, received := time.Now().Add(-2*time.Hour), time.Now().Add(-45*time.Minute)
	meta := NewDefaultMetaWithReceivedAt(created, received, "processor.classify")

	assert.Equal(t, "processor.classify", meta.Source())
	assert.WithinDuration(t, created, meta.CreatedAt(), time.Millisecond)
	assert.WithinDuration(t, received, meta.ReceivedAt(), time.Millisecond)
}
