package cmds

import (
	"errors"
	"testing"
)

func TestExecute(t *testing.T) {
	e := NewExecutor()
	var flag bool
	var name string
	e.Define("-f", Func(func() {
		flag = true
	}).Desc("set a flag"))
	e.Define("-name", Func(func(value string) {
		name = value
	}).Desc("set a name").Alias("-n"))

	rest, err := e.Execute([]string{"a", "-f", "-n", "joe", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if !flag || name != "joe" {
		t.Fatalf("flag %v name %q", flag, name)
	}
	if len(rest) != 2 || rest[0] != "a" || rest[1] != "b" {
		t.Fatalf("rest %v", rest)
	}
}

func TestExecuteMissingArgument(t *testing.T) {
	e := NewExecutor()
	e.Define("-name", Func(func(value string) {}))
	if _, err := e.Execute([]string{"-name"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestExecuteError(t *testing.T) {
	e := NewExecutor()
	boom := errors.New("boom")
	e.Define("-x", Func(func() error {
		return boom
	}))
	if _, err := e.Execute([]string{"-x"}); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}

func TestDuplicateDefinition(t *testing.T) {
	e := NewExecutor()
	e.Define("-x", Func(func() {}))
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	e.Define("-x", Func(func() {}))
}
