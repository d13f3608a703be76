package ontology

import (
	"fmt"

	"github.com/reusee/sym/storage"
)

// MissingTripleError reports a guaranteed lookup that found nothing,
// or more than one value where exactly one was required.
type MissingTripleError struct {
	Entity    storage.Symbol
	Attribute storage.Symbol
}

func (e MissingTripleError) Error() string {
	return fmt.Sprintf("nonexistent or ambiguous triple: entity %d, attribute %d", e.Entity, e.Attribute)
}

// TypeMismatchError reports a failed blob type assertion.
type TypeMismatchError struct {
	Symbol   storage.Symbol
	Expected storage.Symbol
}

func (e TypeMismatchError) Error() string {
	return "invalid blob type"
}
