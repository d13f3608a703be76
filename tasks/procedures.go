package tasks

import (
	"github.com/reusee/sym/ontology"
	"github.com/reusee/sym/storage"
)

// Procedure is the body of a predefined procedure. It runs with the
// freshly pushed frame current and its parameters copied into the
// block.
type Procedure func(*Task) error

var procedures = map[storage.Symbol]Procedure{}

// RegisterProcedure binds a predefined symbol to a built-in body.
// Packages that contribute procedures do so from init.
func RegisterProcedure(sym storage.Symbol, fn Procedure) {
	procedures[sym] = fn
}

func (t *Task) runPreDef(procedure storage.Symbol) (bool, error) {
	fn, ok := procedures[procedure]
	if !ok {
		return false, nil
	}
	return true, fn(t)
}

func init() {
	RegisterProcedure(ontology.ExceptionSymbol, procException)
	RegisterProcedure(ontology.CreateSymbol, procCreate)
	RegisterProcedure(ontology.DestroySymbol, procDestroy)
	RegisterProcedure(ontology.LinkSymbol, procLink)
	RegisterProcedure(ontology.UnlinkSymbol, procUnlink)
	RegisterProcedure(ontology.PushSymbol, procPush)
	RegisterProcedure(ontology.PopSymbol, procPop)
	RegisterProcedure(ontology.BranchSymbol, procBranch)
	RegisterProcedure(ontology.GetBlobSizeSymbol, procGetBlobSize)
	RegisterProcedure(ontology.AddSymbol, procAdd)
	RegisterProcedure(ontology.SubtractSymbol, procSubtract)
	RegisterProcedure(ontology.MultiplySymbol, procMultiply)
	RegisterProcedure(ontology.DivideSymbol, procDivide)
}

// parameter access helpers

func (t *Task) blockGet(attr storage.Symbol) (storage.Symbol, error) {
	return t.Store.GetGuaranteed(t.block, attr)
}

func (t *Task) blockNatural(attr storage.Symbol) (uint64, error) {
	sym, err := t.blockGet(attr)
	if err != nil {
		return 0, err
	}
	return t.Store.ReadNatural(sym)
}

// targetSymbol resolves where results go: the block's Target, or the
// calling frame's block.
func (t *Task) targetSymbol() (storage.Symbol, error) {
	if target, ok := t.Store.GetUncertain(t.block, ontology.TargetSymbol); ok {
		return target, nil
	}
	parent, err := t.Store.GetGuaranteed(t.frame, ontology.ParentSymbol)
	if err != nil {
		return ontology.VoidSymbol, err
	}
	return t.Store.GetGuaranteed(parent, ontology.BlockSymbol)
}

func (t *Task) WriteOutput(value storage.Symbol) error {
	target, err := t.targetSymbol()
	if err != nil {
		return err
	}
	attr, ok := t.Store.GetUncertain(t.block, ontology.OutputSymbol)
	if !ok {
		attr = ontology.OutputSymbol
	}
	t.Store.Link(ontology.Triple{target, attr, value})
	return nil
}

// procException walks the Catch chain upward from the faulting frame.
// The first handler found gets the current frame unwound to it, its
// Execute rebound to the handler, the Catch edge consumed, and the
// exception block linked into its block. Without a handler the task
// status becomes Exception.
func procException(t *Task) error {
	store := t.Store
	exBlock := t.block
	store.Link(ontology.Triple{t.task, ontology.HoldsSymbol, exBlock})

	frame := t.frame
	for {
		parent, ok := store.GetUncertain(frame, ontology.ParentSymbol)
		if !ok {
			break
		}
		frame = parent
		catcher, ok := store.GetUncertain(frame, ontology.CatchSymbol)
		if !ok {
			continue
		}
		for t.frame != frame {
			if !t.PopCallStack() {
				break
			}
		}
		store.SetSolitary(ontology.Triple{t.frame, ontology.ExecuteSymbol, catcher})
		store.Unlink(ontology.Triple{t.frame, ontology.CatchSymbol, catcher})
		store.Link(ontology.Triple{t.block, ontology.ExceptionSymbol, exBlock})
		store.Unlink(ontology.Triple{t.task, ontology.HoldsSymbol, exBlock})
		t.setStatus(ontology.RunSymbol)
		return nil
	}
	t.setStatus(ontology.ExceptionSymbol)
	return nil
}

func procCreate(t *Task) error {
	return t.WriteOutput(t.Store.Create())
}

func procDestroy(t *Task) error {
	victim, err := t.blockGet(ontology.VictimSymbol)
	if err != nil {
		return err
	}
	t.Store.Destroy(victim)
	return nil
}

func procLink(t *Task) error {
	triple, err := t.blockTriple()
	if err != nil {
		return err
	}
	t.Store.Link(triple)
	return nil
}

func procUnlink(t *Task) error {
	triple, err := t.blockTriple()
	if err != nil {
		return err
	}
	t.Store.Unlink(triple)
	return nil
}

func (t *Task) blockTriple() (ontology.Triple, error) {
	entity, err := t.blockGet(ontology.EntitySymbol)
	if err != nil {
		return ontology.Triple{}, err
	}
	attribute, err := t.blockGet(ontology.AttributeSymbol)
	if err != nil {
		return ontology.Triple{}, err
	}
	value, err := t.blockGet(ontology.ValueSymbol)
	if err != nil {
		return ontology.Triple{}, err
	}
	return ontology.Triple{entity, attribute, value}, nil
}

// procPush reruns the current frame with the given Execute chain; the
// next step enters it with this block as the parameter source.
func procPush(t *Task) error {
	body, err := t.blockGet(ontology.ExecuteSymbol)
	if err != nil {
		return err
	}
	t.Store.SetSolitary(ontology.Triple{t.frame, ontology.ExecuteSymbol, body})
	return nil
}

func procPop(t *Task) error {
	count, err := t.blockNatural(ontology.CountSymbol)
	if err != nil {
		return err
	}
	for range count {
		if !t.PopCallStack() {
			break
		}
	}
	return nil
}

// procBranch rebinds the caller's Execute to the Branch body when the
// Input natural is non-zero.
func procBranch(t *Task) error {
	input, err := t.blockNatural(ontology.InputSymbol)
	if err != nil {
		return err
	}
	if input == 0 {
		return nil
	}
	body, err := t.blockGet(ontology.BranchSymbol)
	if err != nil {
		return err
	}
	parent, err := t.Store.GetGuaranteed(t.frame, ontology.ParentSymbol)
	if err != nil {
		return err
	}
	t.Store.SetSolitary(ontology.Triple{parent, ontology.ExecuteSymbol, body})
	return nil
}

func procGetBlobSize(t *Task) error {
	input, err := t.blockGet(ontology.InputSymbol)
	if err != nil {
		return err
	}
	return t.WriteOutput(t.Store.CreateFromNatural(t.Store.Blobs.GetSize(input)))
}

func (t *Task) foldNaturals(fold func(acc, v uint64) uint64) error {
	var values []storage.Symbol
	t.Store.Query(ontology.MaskMMV, ontology.Triple{t.block, ontology.InputSymbol, ontology.VoidSymbol}, func(result ontology.Triple) {
		values = append(values, result[2])
	})
	if len(values) == 0 {
		return &Raise{Message: "Expected Input"}
	}
	var acc uint64
	first := true
	for _, sym := range values {
		v, err := t.Store.ReadNatural(sym)
		if err != nil {
			return err
		}
		if first {
			acc = v
			first = false
			continue
		}
		acc = fold(acc, v)
	}
	return t.WriteOutput(t.Store.CreateFromNatural(acc))
}

func procAdd(t *Task) error {
	return t.foldNaturals(func(acc, v uint64) uint64 { return acc + v })
}

func procMultiply(t *Task) error {
	return t.foldNaturals(func(acc, v uint64) uint64 { return acc * v })
}

func (t *Task) binaryNaturals() (uint64, uint64, error) {
	a, err := t.blockNatural(ontology.InputSymbol)
	if err != nil {
		return 0, 0, err
	}
	b, err := t.blockNatural(ontology.ValueSymbol)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func procSubtract(t *Task) error {
	a, b, err := t.binaryNaturals()
	if err != nil {
		return err
	}
	return t.WriteOutput(t.Store.CreateFromNatural(a - b))
}

func procDivide(t *Task) error {
	a, b, err := t.binaryNaturals()
	if err != nil {
		return err
	}
	if b == 0 {
		return &Raise{Message: "Division by zero"}
	}
	return t.WriteOutput(t.Store.CreateFromNatural(a / b))
}
