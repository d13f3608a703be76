package ontology

import (
	"github.com/reusee/sym/storage"
)

// Predefined symbols occupy a fixed leading range of the symbol space;
// their numeric values are part of the on-disk format and must never
// be reordered. Each named one carries its name as a Text blob so
// source code can refer to it, and is registered in the content index.
const (
	VoidSymbol storage.Symbol = iota
	HoldsSymbol
	EntitySymbol
	AttributeSymbol
	ValueSymbol
	PackageSymbol
	InputSymbol
	OutputSymbol
	TargetSymbol
	BlobTypeSymbol
	NaturalSymbol
	IntegerSymbol
	FloatSymbol
	TextSymbol
	FrameSymbol
	BlockSymbol
	ProcedureSymbol
	StaticSymbol
	DynamicSymbol
	NextSymbol
	ExecuteSymbol
	CatchSymbol
	ParentSymbol
	StatusSymbol
	RunSymbol
	DoneSymbol
	ExceptionSymbol
	RowSymbol
	ColumnSymbol
	QueueSymbol
	UnnestEntitySymbol
	UnnestAttributeSymbol
	MessageSymbol
	VictimSymbol
	CountSymbol
	ContentIndexSymbol // carries the content index vector, no name

	// built-in procedures
	DeserializeSymbol
	SerializeSymbol
	CreateSymbol
	DestroySymbol
	LinkSymbol
	UnlinkSymbol
	PushSymbol
	PopSymbol
	BranchSymbol
	GetBlobSizeSymbol
	AddSymbol
	SubtractSymbol
	MultiplySymbol
	DivideSymbol

	PreDefSymbolCount
)

var preDefNames = map[storage.Symbol]string{
	VoidSymbol:            "Void",
	HoldsSymbol:           "Holds",
	EntitySymbol:          "Entity",
	AttributeSymbol:       "Attribute",
	ValueSymbol:           "Value",
	PackageSymbol:         "Package",
	InputSymbol:           "Input",
	OutputSymbol:          "Output",
	TargetSymbol:          "Target",
	BlobTypeSymbol:        "BlobType",
	NaturalSymbol:         "Natural",
	IntegerSymbol:         "Integer",
	FloatSymbol:           "Float",
	TextSymbol:            "Text",
	FrameSymbol:           "Frame",
	BlockSymbol:           "Block",
	ProcedureSymbol:       "Procedure",
	StaticSymbol:          "Static",
	DynamicSymbol:         "Dynamic",
	NextSymbol:            "Next",
	ExecuteSymbol:         "Execute",
	CatchSymbol:           "Catch",
	ParentSymbol:          "Parent",
	StatusSymbol:          "Status",
	RunSymbol:             "Run",
	DoneSymbol:            "Done",
	ExceptionSymbol:       "Exception",
	RowSymbol:             "Row",
	ColumnSymbol:          "Column",
	QueueSymbol:           "Queue",
	UnnestEntitySymbol:    "UnnestEntity",
	UnnestAttributeSymbol: "UnnestAttribute",
	MessageSymbol:         "Message",
	VictimSymbol:          "Victim",
	CountSymbol:           "Count",
	DeserializeSymbol:     "Deserialize",
	SerializeSymbol:       "Serialize",
	CreateSymbol:          "Create",
	DestroySymbol:         "Destroy",
	LinkSymbol:            "Link",
	UnlinkSymbol:          "Unlink",
	PushSymbol:            "Push",
	PopSymbol:             "Pop",
	BranchSymbol:          "Branch",
	GetBlobSizeSymbol:     "GetBlobSize",
	AddSymbol:             "Add",
	SubtractSymbol:        "Subtract",
	MultiplySymbol:        "Multiply",
	DivideSymbol:          "Divide",
}

// PreDefName resolves a predefined symbol to its name, "" otherwise.
func PreDefName(sym storage.Symbol) string {
	return preDefNames[sym]
}

func (s *Store) fillPreDefined() {
	if s.Space.Super().SymbolCount >= PreDefSymbolCount {
		return
	}
	if s.Space.Super().SymbolCount != 0 {
		panic("partially initialized symbol space")
	}
	for range PreDefSymbolCount {
		s.Space.CreateSymbol()
	}
	for sym := VoidSymbol; sym < PreDefSymbolCount; sym++ {
		name, ok := preDefNames[sym]
		if !ok {
			continue
		}
		s.Blobs.WriteBytes(sym, []byte(name))
		s.Link(Triple{sym, BlobTypeSymbol, TextSymbol})
		at, found := s.indexFind(sym)
		if !found {
			v := s.internIndex()
			v.Insert(at, uint64(sym))
		}
	}
}
