package message

// Message is the unit of data that moves through the pipeline: an index
// row leaving the scanner, a classified name, an aggregated data stream
// total. A message is pure data with typed payload and metadata; routing
// and persistence live in the components, never here.
//
//	msg := NewBaseMessage(
//	    Type{Domain: "inventory", Category: "index", Version: "v1"},
//	    rowPayload,
//	    "clusterscan-input",
//	)
type Message interface {
	// ID is the immutable, globally unique identifier of this instance.
	ID() string

	// Type carries the domain, category, and version used for routing.
	Type() Type

	// Payload is the typed body. Payload schemas are registered so the
	// codec can recreate the concrete type on unmarshal.
	Payload() Payload

	// Meta reports lifecycle data: creation time, receipt time, and the
	// service that produced the message.
	Meta() Meta

	// Hash is a content hash over type and payload, used for
	// deduplication.
	Hash() string

	// Validate checks the type, payload presence, and the payload's own
	// validation.
	Validate() error
}
