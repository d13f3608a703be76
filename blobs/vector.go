package blobs

import (
	"github.com/reusee/sym/storage"
)

// Vector is a dense sequence of fixed-width elements stored inside one
// blob. It is the building block for the sorted sets the layers above
// keep in blob space.
type Vector struct {
	Store    *Store
	Symbol   storage.Symbol
	ElemBits uint64
}

func (v *Vector) Count() uint64 {
	return v.Store.GetSize(v.Symbol) / v.ElemBits
}

func (v *Vector) Get(i uint64) uint64 {
	return v.Store.ReadBitsAt(v.Symbol, i*v.ElemBits, v.ElemBits)
}

func (v *Vector) Set(i, value uint64) {
	v.Store.WriteBitsAt(v.Symbol, i*v.ElemBits, v.ElemBits, value)
}

func (v *Vector) Insert(i, value uint64) {
	if !v.Store.IncreaseSize(v.Symbol, i*v.ElemBits, v.ElemBits) {
		panic("vector insert out of range")
	}
	v.Set(i, value)
}

func (v *Vector) Erase(i uint64) {
	if !v.Store.EraseRange(v.Symbol, i*v.ElemBits, (i+1)*v.ElemBits) {
		panic("vector erase out of range")
	}
}

func (v *Vector) Push(value uint64) {
	v.Insert(v.Count(), value)
}

func (v *Vector) Pop() uint64 {
	i := v.Count() - 1
	value := v.Get(i)
	v.Erase(i)
	return value
}
