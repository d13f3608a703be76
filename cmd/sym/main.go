package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/reusee/dscope"
	"github.com/reusee/sym/cmds"
	"github.com/reusee/sym/engines"
	"github.com/reusee/sym/logs"
	"github.com/reusee/sym/ontology"
	"github.com/reusee/sym/storage"
	"github.com/reusee/sym/tasks"
)

var executeOutputs bool

func init() {
	cmds.Define("-e", cmds.Func(func() {
		executeOutputs = true
	}).Desc("execute the Output clauses of every loaded file"))
	cmds.Define("-h", cmds.Func(func() {
		fmt.Fprintln(os.Stderr, "usage: sym [-e] path...")
		cmds.PrintUsage()
		os.Exit(4)
	}).Desc("print usage"))
}

func main() {
	paths, err := cmds.Execute(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	dscope.New(new(engines.Module)).Call(func(
		space *storage.Space,
		store *ontology.Store,
		task *tasks.Task,
		logger logs.Logger,
	) {
		l := &loader{
			store:  store,
			task:   task,
			logger: logger,
		}
		for _, path := range paths {
			l.loadFromPath(ontology.VoidSymbol, executeOutputs, path)
		}
		task.Clear()

		stats := space.Stats()
		logger.Info("storage",
			"pages", stats.PageCount,
			"freePages", stats.FreePages,
			"symbols", stats.SymbolCount,
			"blobs", stats.BlobCount,
			"blobBits", stats.BlobBits,
		)
		if err := space.Unload(); err != nil {
			logger.Error("unload storage", "error", err)
			os.Exit(1)
		}
	})
}

type loader struct {
	store  *ontology.Store
	task   *tasks.Task
	logger logs.Logger
}

func (l *loader) createFromFile(path string) (storage.Symbol, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		l.logger.Error("read file", "path", path, "error", err)
		return ontology.VoidSymbol, false
	}
	sym := l.store.Blobs.CreateSymbol()
	l.store.Link(ontology.Triple{sym, ontology.BlobTypeSymbol, ontology.TextSymbol})
	l.store.Blobs.WriteBytes(sym, content)
	return sym, true
}

// loadFromPath mirrors the package layout onto the triple store:
// directories become package symbols that hold their parent package
// (a top-level directory holds itself), .sym files are deserialized
// into their directory's package.
func (l *loader) loadFromPath(parentPackage storage.Symbol, execute bool, path string) {
	path = strings.TrimSuffix(path, "/")
	info, err := os.Stat(path)
	if err != nil {
		l.logger.Warn("stat", "path", path, "error", err)
		return
	}

	if info.IsDir() {
		pkg := l.store.CreateFromText(filepath.Base(path))
		if parentPackage == ontology.VoidSymbol {
			parentPackage = pkg
		}
		l.store.Link(ontology.Triple{pkg, ontology.HoldsSymbol, parentPackage})
		entries, err := os.ReadDir(path)
		if err != nil {
			l.logger.Error("read directory", "path", path, "error", err)
			return
		}
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			l.loadFromPath(pkg, execute, filepath.Join(path, entry.Name()))
		}
		return
	}

	if !info.Mode().IsRegular() || !strings.HasSuffix(path, ".sym") {
		return
	}
	file, ok := l.createFromFile(path)
	if !ok {
		return
	}
	l.task.DeserializationTask(file, parentPackage)
	if l.task.UncaughtException() {
		l.logger.Error("exception while deserializing", "path", path)
		os.Exit(2)
	}
	if !execute {
		return
	}
	if !l.task.ExecuteDeserialized() {
		l.logger.Error("nothing to execute", "path", path)
		os.Exit(3)
	}
	if l.task.UncaughtException() {
		l.logger.Error("exception while executing", "path", path)
		os.Exit(4)
	}
}
