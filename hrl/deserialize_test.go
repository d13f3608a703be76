package hrl

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/reusee/sym/ontology"
	"github.com/reusee/sym/storage"
	"github.com/reusee/sym/tasks"
)

type testEnv struct {
	store *ontology.Store
	task  *tasks.Task
	pkg   storage.Symbol
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := ontology.NewStore(storage.NewSpace(storage.DefaultPageBits))
	pkg := store.Create()
	store.Link(ontology.Triple{pkg, ontology.HoldsSymbol, pkg})
	return &testEnv{
		store: store,
		task:  tasks.NewTask(store),
		pkg:   pkg,
	}
}

func (e *testEnv) deserialize(t *testing.T, input string) {
	t.Helper()
	sym := e.store.Blobs.CreateSymbol()
	e.store.Link(ontology.Triple{sym, ontology.BlobTypeSymbol, ontology.TextSymbol})
	e.store.Blobs.WriteBytes(sym, []byte(input))
	e.task.DeserializationTask(sym, e.pkg)
}

// exception returns the message, row and column of the uncaught
// exception, if any.
func (e *testEnv) exception(t *testing.T) (string, uint64, uint64, bool) {
	t.Helper()
	if !e.task.UncaughtException() {
		return "", 0, 0, false
	}
	block := e.task.Block()
	msgSym, err := e.store.GetGuaranteed(block, ontology.MessageSymbol)
	if err != nil {
		t.Fatalf("exception without message: %v", err)
	}
	message := string(e.store.Blobs.ReadBytes(msgSym))
	var row, column uint64
	if sym, ok := e.store.GetUncertain(block, ontology.RowSymbol); ok {
		row = e.store.Blobs.ReadBitsAt(sym, 0, 64)
	}
	if sym, ok := e.store.GetUncertain(block, ontology.ColumnSymbol); ok {
		column = e.store.Blobs.ReadBitsAt(sym, 0, 64)
	}
	return message, row, column, true
}

func (e *testEnv) text(t *testing.T, s string) storage.Symbol {
	t.Helper()
	return e.store.CreateFromText(s)
}

func TestDeserializeTwoClauses(t *testing.T) {
	env := newTestEnv(t)
	env.deserialize(t, "(a b c; d e)")
	if msg, _, _, ok := env.exception(t); ok {
		t.Fatalf("unexpected exception %q", msg)
	}
	store := env.store
	a, b, c := env.text(t, "a"), env.text(t, "b"), env.text(t, "c")
	d, e := env.text(t, "d"), env.text(t, "e")

	if !store.TripleExists(ontology.Triple{a, b, c}) {
		t.Fatal("(a, b, c) missing")
	}
	// the second clause hangs off an anonymous entity
	var anon storage.Symbol
	count := store.Query(ontology.MaskVMM, ontology.Triple{ontology.VoidSymbol, d, e}, func(result ontology.Triple) {
		anon = result[0]
	})
	if count != 1 {
		t.Fatalf("found %d (·, d, e) triples", count)
	}
	if anon == a || anon == b || anon == c || anon == d || anon == e {
		t.Fatal("second clause entity not anonymous")
	}
	for _, sym := range []storage.Symbol{a, b, c, d, e, anon} {
		if !store.TripleExists(ontology.Triple{env.pkg, ontology.HoldsSymbol, sym}) {
			t.Fatalf("package does not hold %d", sym)
		}
	}
}

func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		input   string
		message string
		row     uint64
		column  uint64
	}{
		{"(;)", "Pointless semicolon", 1, 2},
		{"(", "Missing closing bracket", 1, 2},
		{")", "Unmatched closing bracket", 1, 1},
		{";", "Semicolon outside of any brackets", 1, 1},
		{`"open`, "Unterminated text", 1, 1},
		{"", "Empty Input", 1, 1},
		{"   ", "Empty Input", 1, 4},
		{"()", "Nothing declared", 1, 2},
		{"(raw:XY)", "Non hex characters", 1, 8},
		{"(raw:)", "Empty raw data", 1, 6},
		{"(a b c c)", "Triple defined twice", 1, 9},
		{"(a b c; a b c)", "Triple defined twice", 1, 14},
		{"(\n;)", "Pointless semicolon", 2, 1},
		{"((a b c);)", "Unnesting failed", 1, 9},
	}
	for _, test := range tests {
		env := newTestEnv(t)
		env.deserialize(t, test.input)
		message, row, column, ok := env.exception(t)
		if !ok {
			t.Fatalf("%q: expected exception %q", test.input, test.message)
		}
		if message != test.message {
			t.Fatalf("%q: got %q, want %q", test.input, message, test.message)
		}
		if row != test.row || column != test.column {
			t.Fatalf("%q: at %d:%d, want %d:%d", test.input, row, column, test.row, test.column)
		}
	}
}

func TestDeserializeLiterals(t *testing.T) {
	env := newTestEnv(t)
	env.deserialize(t, `(a b 42 -7 4.5 "two words" raw:0F)`)
	if msg, _, _, ok := env.exception(t); ok {
		t.Fatalf("unexpected exception %q", msg)
	}
	store := env.store
	a, b := env.text(t, "a"), env.text(t, "b")

	var values []storage.Symbol
	store.Query(ontology.MaskMMV, ontology.Triple{a, b, ontology.VoidSymbol}, func(result ontology.Triple) {
		values = append(values, result[2])
	})
	if len(values) != 5 {
		t.Fatalf("got %d values", len(values))
	}

	natural := store.CreateFromNatural(42)
	if !store.TripleExists(ontology.Triple{a, b, natural}) {
		t.Fatal("natural literal not shared")
	}
	integer := store.CreateFromInteger(-7)
	if !store.TripleExists(ontology.Triple{a, b, integer}) {
		t.Fatal("integer literal not shared")
	}
	float := store.CreateFromFloat(4.5)
	if !store.TripleExists(ontology.Triple{a, b, float}) {
		t.Fatal("float literal not shared")
	}
	if got := math.Float64frombits(store.Blobs.ReadBitsAt(float, 0, 64)); got != 4.5 {
		t.Fatalf("float blob %v", got)
	}
	text := env.text(t, "two words")
	if !store.TripleExists(ontology.Triple{a, b, text}) {
		t.Fatal("quoted text not shared")
	}

	var raw storage.Symbol
	for _, v := range values {
		if v != natural && v != integer && v != float && v != text {
			raw = v
		}
	}
	if store.Blobs.GetSize(raw) != 8 {
		t.Fatalf("raw size %d", store.Blobs.GetSize(raw))
	}
	if store.Blobs.ReadBitsAt(raw, 0, 8) != 0xF0 {
		t.Fatalf("raw content %x", store.Blobs.ReadBitsAt(raw, 0, 8))
	}
}

func TestDeserializeLocals(t *testing.T) {
	env := newTestEnv(t)
	env.deserialize(t, "(#x a b; #x c d)")
	if msg, _, _, ok := env.exception(t); ok {
		t.Fatalf("unexpected exception %q", msg)
	}
	store := env.store
	a, b := env.text(t, "a"), env.text(t, "b")
	c, d := env.text(t, "c"), env.text(t, "d")

	var e1, e2 storage.Symbol
	if store.Query(ontology.MaskVMM, ontology.Triple{ontology.VoidSymbol, a, b}, func(result ontology.Triple) {
		e1 = result[0]
	}) != 1 {
		t.Fatal("first local clause missing")
	}
	if store.Query(ontology.MaskVMM, ontology.Triple{ontology.VoidSymbol, c, d}, func(result ontology.Triple) {
		e2 = result[0]
	}) != 1 {
		t.Fatal("second local clause missing")
	}
	if e1 != e2 {
		t.Fatalf("local #x interned twice: %d vs %d", e1, e2)
	}

	// locals are scoped per deserialize call
	env.deserialize(t, "(#x e f)")
	e, f := env.text(t, "e"), env.text(t, "f")
	var e3 storage.Symbol
	store.Query(ontology.MaskVMM, ontology.Triple{ontology.VoidSymbol, e, f}, func(result ontology.Triple) {
		e3 = result[0]
	})
	if e3 == e1 {
		t.Fatal("local leaked across calls")
	}
}

func TestDeserializeEntityDeclaration(t *testing.T) {
	env := newTestEnv(t)
	env.deserialize(t, "(x; a b; c d)")
	if msg, _, _, ok := env.exception(t); ok {
		t.Fatalf("unexpected exception %q", msg)
	}
	store := env.store
	x := env.text(t, "x")
	a, b := env.text(t, "a"), env.text(t, "b")
	c, d := env.text(t, "c"), env.text(t, "d")
	if !store.TripleExists(ontology.Triple{x, a, b}) {
		t.Fatal("(x, a, b) missing")
	}
	if !store.TripleExists(ontology.Triple{x, c, d}) {
		t.Fatal("(x, c, d) missing")
	}
}

func TestDeserializeOutput(t *testing.T) {
	env := newTestEnv(t)
	env.deserialize(t, "(a b c; d e)")
	store := env.store
	block := env.task.Block()
	count := store.Query(ontology.MaskMMV, ontology.Triple{block, ontology.OutputSymbol, ontology.VoidSymbol}, nil)
	if count != 2 {
		t.Fatalf("collected %d outputs", count)
	}
}

func TestPosError(t *testing.T) {
	env := newTestEnv(t)
	d := &deserializer{
		store:  env.store,
		row:    3,
		column: 7,
	}
	err := d.raise("boom")
	if err.Error() != "boom at 3:7" {
		t.Fatalf("message %q", err.Error())
	}
	var pos *PosError
	if !errors.As(err, &pos) || pos.Row != 3 || pos.Column != 7 {
		t.Fatalf("position not recoverable: %v", err)
	}
	var raise *tasks.Raise
	if !errors.As(err, &raise) || raise.Message != "boom" {
		t.Fatalf("wrapped raise lost: %v", err)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	store := env.store

	entity := store.CreateFromText("thing")
	attr := store.CreateFromText("weight")
	store.Link(ontology.Triple{entity, attr, store.CreateFromNatural(42)})
	store.Link(ontology.Triple{entity, attr, store.CreateFromText("heavy stuff")})
	color := store.CreateFromText("color")
	store.Link(ontology.Triple{entity, color, store.CreateFromText("red")})

	text := Serialize(store, entity)
	if !strings.Contains(text, "thing") {
		t.Fatalf("serialized form %q", text)
	}

	// parse the rendering into a fresh store and compare structure
	env2 := newTestEnv(t)
	env2.deserialize(t, text)
	if msg, _, _, ok := env2.exception(t); ok {
		t.Fatalf("reparse failed: %q of %q", msg, text)
	}
	store2 := env2.store
	entity2 := env2.text(t, "thing")
	for _, want := range []ontology.Triple{
		{entity2, env2.text(t, "weight"), store2.CreateFromNatural(42)},
		{entity2, env2.text(t, "weight"), store2.CreateFromText("heavy stuff")},
		{entity2, env2.text(t, "color"), store2.CreateFromText("red")},
	} {
		if !store2.TripleExists(want) {
			t.Fatalf("triple lost in round trip of %q", text)
		}
	}
}
