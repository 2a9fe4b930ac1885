package message

import "time"

// Meta carries lifecycle metadata alongside a payload: when the row was
// produced, when it entered the pipeline, and which component emitted it.
//
// It is an interface rather than a concrete type so tests can stub it and
// components can attach extra fields without touching the envelope.
type Meta interface {
	// CreatedAt returns when the underlying observation was made. For a
	// scan row this is when the input read the index stats.
	CreatedAt() time.Time

	// ReceivedAt returns when the message entered the pipeline. The gap
	// to CreatedAt measures ingestion latency.
	ReceivedAt() time.Time

	// Source identifies the emitting component, e.g. "clusterscan-input"
	// or "classify-processor". Used in logs and error context.
	Source() string
}
