package message

import "fmt"

// Keyable is anything that renders as a dotted key. Dotted keys drive
// NATS subject construction and payload registry lookups.
type Keyable interface {
	// Key returns the dotted form, e.g. "inventory.index.v1".
	Key() string
}

// Type identifies a message schema by domain, category, and version.
// Domain packages own their constants; this package only defines the
// shape:
//
//	var IndexInventoryMessage = message.Type{
//	    Domain:   "inventory",
//	    Category: "index",
//	    Version:  "v1",
//	}
//
// The version segment lets a consumer keep handling v1 rows while a v2
// producer rolls out.
type Type struct {
	Domain   string // e.g. "inventory", "core"
	Category string // e.g. "index", "classified", "datastream", "json"
	Version  string // "v1", "v2", ...
}

// Key renders the dotted form: "domain.category.version".
func (mt Type) Key() string {
	return fmt.Sprintf("%s.%s.%s", mt.Domain, mt.Category, mt.Version)
}

func (mt Type) String() string { return mt.Key() }

// IsValid reports whether all three segments are set.
func (mt Type) IsValid() bool {
	return mt.Domain != "" && mt.Category != "" && mt.Version != ""
}

// Equal reports whether both types name the same schema.
func (mt Type) Equal(other Type) bool {
	return mt == other
}
