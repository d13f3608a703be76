package main

import (
	"fmt"
	"net"
	"os"

	"github.com/reusee/dscope"
	"github.com/reusee/sym/cmds"
	"github.com/reusee/sym/configs"
	"github.com/reusee/sym/logs"
	"github.com/reusee/sym/rpc"
	"github.com/reusee/sym/storage"
)

func main() {
	if _, err := cmds.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	dscope.New(new(rpc.Module)).Call(func(
		server *rpc.Server,
		config configs.Config,
		space *storage.Space,
		logger logs.Logger,
	) {
		ln, err := net.Listen("tcp", config.Listen)
		if err != nil {
			logger.Error("listen", "address", config.Listen, "error", err)
			os.Exit(1)
		}
		logger.Info("listening", "address", config.Listen)
		err = server.Serve(ln)
		logger.Error("serve", "error", err)
		if err := space.Unload(); err != nil {
			logger.Error("unload storage", "error", err)
		}
	})
}
