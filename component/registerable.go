package component

// Registerable is implemented by components that self-describe to the
// registry instead of being registered by hand.
type Registerable interface {
	Registration() Registration
}
