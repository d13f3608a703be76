package engines

import (
	"github.com/reusee/dscope"
	"github.com/reusee/sym/configs"
	"github.com/reusee/sym/logs"
	"github.com/reusee/sym/ontology"
	"github.com/reusee/sym/storage"
	"github.com/reusee/sym/tasks"

	// predefined procedure bodies
	_ "github.com/reusee/sym/hrl"
)

type Module struct {
	dscope.Module
	Configs configs.Module
	Logs    logs.Module
}

func (Module) Space(
	config configs.Config,
	logger logs.Logger,
) *storage.Space {
	if config.Data == "" {
		return storage.NewSpace(config.PageBits)
	}
	space, err := storage.LoadSpace(config.Data, config.PageBits)
	if err != nil {
		logger.Error("load storage", "path", config.Data, "error", err)
		panic(err)
	}
	return space
}

func (Module) Ontology(
	space *storage.Space,
) *ontology.Store {
	return ontology.NewStore(space)
}

func (Module) Task(
	store *ontology.Store,
) *tasks.Task {
	return tasks.NewTask(store)
}
