package message

import (
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/pkg/timestamp"
)

// DefaultMeta is the standard Meta implementation. Times are stored as
// Unix milliseconds, matching the wire format.
type DefaultMeta struct {
	createdAt  int64
	receivedAt int64
	source     string
}

// NewDefaultMeta stamps the received time with now; createdAt is when the
// event itself occurred, e.g. the scan timestamp on an index row.
func NewDefaultMeta(createdAt time.Time, source string) *DefaultMeta {
	return &DefaultMeta{
		createdAt:  timestamp.ToUnixMs(createdAt),
		receivedAt: timestamp.Now(),
		source:     source,
	}
}

// NewDefaultMetaWithReceivedAt sets both times explicitly, for replaying
// historical scans or tests.
func NewDefaultMetaWithReceivedAt(createdAt, receivedAt time.Time, source string) *DefaultMeta {
	meta := NewDefaultMeta(createdAt, source)
	meta.receivedAt = timestamp.ToUnixMs(receivedAt)
	return meta
}

func (m *DefaultMeta) CreatedAt() time.Time  { return timestamp.ToTime(m.createdAt) }
func (m *DefaultMeta) ReceivedAt() time.Time { return timestamp.ToTime(m.receivedAt) }
func (m *DefaultMeta) Source() string        { return m.source }
