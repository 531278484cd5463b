package types

// Spec is a common interface implemented by all resource specs
// that can be validated and identify themselves by name/kind.
type Spec interface {
	// Validate ensures the spec is structurally and semantically valid.
	Validate() error
	// GetName returns the resource name declared in the spec.
	GetName() string
	// Kind returns the logical resource kind (e.g., "Pipeline").
	Kind() string
}
