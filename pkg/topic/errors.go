package topic

import "errors"

// Sentinel errors for topic parsing. Use errors.Is() to check for these in calling code.
var (
	// ErrShapeMismatch is returned when a topic does not match the grammar an extractor expects.
	ErrShapeMismatch = errors.New("topic: shape mismatch")

	// ErrDuplicateProperty is returned when a property segment repeats a key.
	ErrDuplicateProperty = errors.New("topic: duplicate property key")

	// ErrInvalidEncoding is returned when a segment holds a malformed percent escape.
	ErrInvalidEncoding = errors.New("topic: invalid percent encoding")

	// ErrMissingProperty is returned when a required property is absent from a topic.
	ErrMissingProperty = errors.New("topic: missing property")
)
