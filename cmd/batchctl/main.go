package main

import (
	"os"

	"github.com/G-Research/batchproc/cmd/batchctl/cmd"
	"github.com/G-Research/batchproc/internal/common"
	"github.com/G-Research/batchproc/internal/common/app"
)

func main() {
	common.ConfigureCommandLineLogging()
	if err := cmd.RootCmd().ExecuteContext(app.CreateContextWithShutdown()); err != nil {
		os.Exit(1)
	}
}
