package tasks

import (
	"github.com/reusee/sym/storage"
)

// Raise is an error that carries extra triples for the exception
// block, such as Row and Column positions from the deserializer.
type Raise struct {
	Message string
	Attrs   [][2]storage.Symbol
}

func (r *Raise) Error() string {
	return r.Message
}
