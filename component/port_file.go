package component

import "fmt"

// FilePort declares filesystem access, used by the CSV inputs and the
// report writer (Path is a directory or file, Pattern an optional glob).
type FilePort struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern,omitempty"`
}

// ResourceID identifies the port for conflict detection.
func (f FilePort) ResourceID() string { return fmt.Sprintf("file:%s", f.Path) }

// IsExclusive is false; readers may share a path.
func (f FilePort) IsExclusive() bool { return false }

// Type reports the port kind.
func (f FilePort) Type() string { return "file" }
