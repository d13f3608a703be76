package tasks

import (
	"errors"

	"github.com/reusee/sym/ontology"
	"github.com/reusee/sym/storage"
)

// Task drives one cooperative execution. All of its state lives in the
// triple store: the task symbol carries Status and Frame edges, frames
// chain through Parent, and pending calls hang off Execute. The struct
// fields only cache the symbols of the current task, frame and block.
type Task struct {
	Store *ontology.Store

	task   storage.Symbol
	status storage.Symbol
	frame  storage.Symbol
	block  storage.Symbol
}

func NewTask(store *ontology.Store) *Task {
	return &Task{
		Store:  store,
		task:   ontology.VoidSymbol,
		status: ontology.VoidSymbol,
		frame:  ontology.VoidSymbol,
		block:  ontology.VoidSymbol,
	}
}

func (t *Task) Block() storage.Symbol {
	return t.block
}

func (t *Task) Frame() storage.Symbol {
	return t.frame
}

func (t *Task) setStatus(status storage.Symbol) {
	t.status = status
	t.Store.SetSolitary(ontology.Triple{t.task, ontology.StatusSymbol, status})
}

func (t *Task) setFrame(unlinkHolds, setBlock bool, frame storage.Symbol) {
	old := t.frame
	if frame == ontology.VoidSymbol {
		t.block = ontology.VoidSymbol
	} else {
		t.Store.Link(ontology.Triple{t.task, ontology.HoldsSymbol, frame})
		t.Store.SetSolitary(ontology.Triple{t.task, ontology.FrameSymbol, frame})
		if setBlock {
			block, ok := t.Store.GetUncertain(frame, ontology.BlockSymbol)
			if !ok {
				block = ontology.VoidSymbol
			}
			t.block = block
		}
	}
	if unlinkHolds {
		t.Store.Unlink(ontology.Triple{t.task, ontology.HoldsSymbol, old})
	}
	if old != ontology.VoidSymbol {
		t.Store.ScrutinizeExistence(old)
	}
	t.frame = frame
}

// PopCallStack drops the current frame. When no parent frame remains
// the task status becomes Done and false is returned.
func (t *Task) PopCallStack() bool {
	if t.task == ontology.VoidSymbol || t.frame == ontology.VoidSymbol {
		return false
	}
	parent, ok := t.Store.GetUncertain(t.frame, ontology.ParentSymbol)
	if !ok {
		parent = ontology.VoidSymbol
		t.setStatus(ontology.DoneSymbol)
	}
	t.setFrame(true, true, parent)
	return ok
}

// PopCallStackTarget pops and returns the block's Target if it has
// one, falling back to the then-current block.
func (t *Task) PopCallStackTarget() storage.Symbol {
	target, ok := t.Store.GetUncertain(t.block, ontology.TargetSymbol)
	t.PopCallStack()
	if ok {
		return target
	}
	return t.block
}

// Clear tears the task down from any state.
func (t *Task) Clear() {
	if t.task == ontology.VoidSymbol {
		return
	}
	for t.PopCallStack() {
	}
	t.Store.Destroy(t.task)
	t.task = ontology.VoidSymbol
	t.status = ontology.VoidSymbol
	t.frame = ontology.VoidSymbol
	t.block = ontology.VoidSymbol
}

func (t *Task) Running() bool {
	return t.Store.TripleExists(ontology.Triple{t.task, ontology.StatusSymbol, ontology.RunSymbol})
}

func (t *Task) UncaughtException() bool {
	return t.Store.TripleExists(ontology.Triple{t.task, ontology.StatusSymbol, ontology.ExceptionSymbol})
}

// Step executes one call record of the current frame, or pops the
// frame when it has none left. A failing step synthesises an exception
// frame instead of propagating an error.
func (t *Task) Step() bool {
	if !t.Running() {
		return false
	}
	parentBlock, parentFrame := t.block, t.frame
	execute, ok := t.Store.GetUncertain(parentFrame, ontology.ExecuteSymbol)
	if !ok {
		t.PopCallStack()
		return true
	}
	if err := t.stepExecute(parentBlock, parentFrame, execute); err != nil {
		t.raise(err)
	}
	return true
}

func (t *Task) stepExecute(parentBlock, parentFrame, execute storage.Symbol) error {
	store := t.Store

	procedure, err := store.GetGuaranteed(execute, ontology.ProcedureSymbol)
	if err != nil {
		return err
	}

	block := store.Create()
	t.block = block
	t.setFrame(true, false, store.Create(
		[2]storage.Symbol{ontology.HoldsSymbol, parentFrame},
		[2]storage.Symbol{ontology.ParentSymbol, parentFrame},
		[2]storage.Symbol{ontology.HoldsSymbol, block},
		[2]storage.Symbol{ontology.BlockSymbol, block},
		[2]storage.Symbol{ontology.ProcedureSymbol, procedure},
	))

	if staticParams, ok := store.GetUncertain(execute, ontology.StaticSymbol); ok {
		var params []ontology.Triple
		store.Query(ontology.MaskMVV, ontology.Triple{staticParams, ontology.VoidSymbol, ontology.VoidSymbol}, func(result ontology.Triple) {
			params = append(params, result)
		})
		for _, p := range params {
			store.Link(ontology.Triple{block, p[1], p[2]})
		}
	}

	if dynamicParams, ok := store.GetUncertain(execute, ontology.DynamicSymbol); ok {
		var params []ontology.Triple
		store.Query(ontology.MaskMVV, ontology.Triple{dynamicParams, ontology.VoidSymbol, ontology.VoidSymbol}, func(result ontology.Triple) {
			params = append(params, result)
		})
		for _, p := range params {
			attrSrc, attrDst := p[1], p[2]
			var values []storage.Symbol
			store.Query(ontology.MaskMMV, ontology.Triple{parentBlock, attrSrc, ontology.VoidSymbol}, func(result ontology.Triple) {
				values = append(values, result[2])
			})
			for _, v := range values {
				store.Link(ontology.Triple{block, attrDst, v})
			}
		}
	}

	if next, ok := store.GetUncertain(execute, ontology.NextSymbol); ok {
		store.SetSolitary(ontology.Triple{parentFrame, ontology.ExecuteSymbol, next})
	} else {
		store.UnlinkAttribute(parentFrame, ontology.ExecuteSymbol)
	}

	if catcher, ok := store.GetUncertain(execute, ontology.CatchSymbol); ok {
		store.Link(ontology.Triple{t.frame, ontology.CatchSymbol, catcher})
	}

	ran, err := t.runPreDef(procedure)
	if err != nil {
		return err
	}
	if !ran {
		body, err := store.GetGuaranteed(procedure, ontology.ExecuteSymbol)
		if err != nil {
			return err
		}
		store.Link(ontology.Triple{t.frame, ontology.ExecuteSymbol, body})
	}
	return nil
}

// raise turns a step failure into an exception frame and runs the
// Exception procedure over it. A Raise anywhere in the wrap chain
// supplies the message and extra block triples; position wrappers stay
// out of the Message blob.
func (t *Task) raise(err error) {
	store := t.Store
	parentFrame := t.frame

	message := err.Error()
	var attrs [][2]storage.Symbol
	var r *Raise
	if errors.As(err, &r) {
		message = r.Message
		attrs = r.Attrs
	}
	pairs := [][2]storage.Symbol{
		{ontology.MessageSymbol, store.CreateFromText(message)},
	}
	pairs = append(pairs, attrs...)
	block := store.Create(pairs...)
	t.block = block
	t.setFrame(true, false, store.Create(
		[2]storage.Symbol{ontology.HoldsSymbol, parentFrame},
		[2]storage.Symbol{ontology.ParentSymbol, parentFrame},
		[2]storage.Symbol{ontology.HoldsSymbol, block},
		[2]storage.Symbol{ontology.BlockSymbol, block},
		[2]storage.Symbol{ontology.ProcedureSymbol, ontology.ExceptionSymbol},
	))
	t.runPreDef(ontology.ExceptionSymbol)
}

// ExecuteFinite drives at most n steps.
func (t *Task) ExecuteFinite(n uint64) {
	if t.task == ontology.VoidSymbol {
		return
	}
	t.setStatus(ontology.RunSymbol)
	for i := uint64(0); i < n && t.Step(); i++ {
	}
}

// ExecuteInfinite drives steps until the task stops running.
func (t *Task) ExecuteInfinite() {
	if t.task == ontology.VoidSymbol {
		return
	}
	t.setStatus(ontology.RunSymbol)
	for t.Step() {
	}
}

// DeserializationTask sets the task up to deserialize the input blob
// into the given package and runs the single deserialization step.
func (t *Task) DeserializationTask(input, pkg storage.Symbol) {
	t.Clear()
	store := t.Store

	block := store.Create(
		[2]storage.Symbol{ontology.HoldsSymbol, input},
	)
	if pkg == ontology.VoidSymbol {
		pkg = block
	}
	staticParams := store.Create(
		[2]storage.Symbol{ontology.PackageSymbol, pkg},
		[2]storage.Symbol{ontology.InputSymbol, input},
		[2]storage.Symbol{ontology.TargetSymbol, block},
		[2]storage.Symbol{ontology.OutputSymbol, ontology.OutputSymbol},
	)
	execute := store.Create(
		[2]storage.Symbol{ontology.ProcedureSymbol, ontology.DeserializeSymbol},
		[2]storage.Symbol{ontology.StaticSymbol, staticParams},
	)
	t.task = store.Create()
	t.block = block
	t.setFrame(false, false, store.Create(
		[2]storage.Symbol{ontology.HoldsSymbol, staticParams},
		[2]storage.Symbol{ontology.HoldsSymbol, execute},
		[2]storage.Symbol{ontology.HoldsSymbol, block},
		[2]storage.Symbol{ontology.BlockSymbol, block},
		[2]storage.Symbol{ontology.ExecuteSymbol, execute},
	))
	t.ExecuteFinite(1)
}

// ExecuteDeserialized runs every Output clause the deserialization
// collected, reporting false when there was nothing to execute.
func (t *Task) ExecuteDeserialized() bool {
	store := t.Store
	var outputs []storage.Symbol
	store.Query(ontology.MaskMMV, ontology.Triple{t.block, ontology.OutputSymbol, ontology.VoidSymbol}, func(result ontology.Triple) {
		outputs = append(outputs, result[2])
	})
	if len(outputs) == 0 {
		return false
	}
	prev := ontology.VoidSymbol
	for _, out := range outputs {
		next := store.Create(
			[2]storage.Symbol{ontology.ProcedureSymbol, out},
		)
		if prev == ontology.VoidSymbol {
			store.SetSolitary(ontology.Triple{t.frame, ontology.ExecuteSymbol, next})
		} else {
			store.Link(ontology.Triple{prev, ontology.NextSymbol, next})
		}
		prev = next
	}
	t.ExecuteInfinite()
	return true
}
