package component

import "fmt"

// NATSPort declares a pub/sub subject a component reads or writes, e.g. the
// scan input publishing rows on "inventory.rows.v1" and the classifier
// subscribing to the same subject.
type NATSPort struct {
	Subject   string             `json:"subject"`
	Queue     string             `json:"queue,omitempty"`
	Interface *InterfaceContract `json:"interface,omitempty"`
}

// ResourceID identifies the port for conflict detection.
func (n NATSPort) ResourceID() string { return fmt.Sprintf("nats:%s", n.Subject) }

// IsExclusive is false; any number of components may share a subject.
func (n NATSPort) IsExclusive() bool { return false }

// Type reports the port kind.
func (n NATSPort) Type() string { return "nats" }

// NATSRequestPort declares a request/reply subject for synchronous lookups,
// such as querying the snapshot store for the previous scan's totals.
type NATSRequestPort struct {
	Subject   string             `json:"subject"`
	Timeout   string             `json:"timeout,omitempty"` // duration string, e.g. "1s"
	Retries   int                `json:"retries,omitempty"`
	Interface *InterfaceContract `json:"interface,omitempty"`
}

// ResourceID identifies the port for conflict detection.
func (n NATSRequestPort) ResourceID() string { return fmt.Sprintf("nats-request:%s", n.Subject) }

// IsExclusive is false; multiple responders may serve a subject.
func (n NATSRequestPort) IsExclusive() bool { return false }

// Type reports the port kind.
func (n NATSRequestPort) Type() string { return "nats-request" }
