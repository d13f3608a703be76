package hrl

import (
	"fmt"
)

// PosError wraps an error with the 1-based source position it was
// raised at, so Go callers can recover the location with errors.As
// while the wrapped error keeps its own message.
type PosError struct {
	Err    error
	Row    uint64
	Column uint64
}

func (p *PosError) Error() string {
	return fmt.Sprintf("%s at %d:%d", p.Err.Error(), p.Row, p.Column)
}

func (p *PosError) Unwrap() error {
	return p.Err
}
