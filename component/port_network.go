package component

import "fmt"

// NetworkPort describes a TCP or UDP listener a component binds, such as
// the metrics scrape port.
type NetworkPort struct {
	Protocol string `json:"protocol"` // "tcp" or "udp"
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// ResourceID identifies the binding for conflict detection.
func (n NetworkPort) ResourceID() string { return fmt.Sprintf("%s:%s:%d", n.Protocol, n.Host, n.Port) }

// IsExclusive is always true; two components cannot share a listener.
func (n NetworkPort) IsExclusive() bool { return true }

// Type reports the port kind.
func (n NetworkPort) Type() string { return "network" }
