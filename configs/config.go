package configs

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/reusee/dscope"
)

type Module struct {
	dscope.Module
}

// Config is the engine configuration. Every field has a default, so
// running without any config file works.
type Config struct {
	// Data is the storage directory; empty keeps everything in memory.
	Data string
	// Listen is the wire protocol address.
	Listen string
	// PageBits is log2 of the page size in bits. Baked into the
	// storage file on first use.
	PageBits uint64
}

const configSchema = `
data?: string
listen?: string
pageBits?: int & >=10 & <=24
`

func configPaths() []string {
	paths := []string{"sym.cue"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sym", "config.cue"))
	}
	paths = append(paths, "/etc/sym/config.cue")
	return paths
}

func (Module) Config() Config {
	config := Config{
		Data:     "./data",
		Listen:   "[::]:1337",
		PageBits: 13,
	}
	loader := NewLoader(configPaths(), configSchema)
	for path, target := range map[string]any{
		"data":     &config.Data,
		"listen":   &config.Listen,
		"pageBits": &config.PageBits,
	} {
		if err := loader.AssignFirst(path, target); err != nil {
			if errors.Is(err, ErrValueNotFound) {
				continue
			}
			panic(err)
		}
	}
	return config
}
