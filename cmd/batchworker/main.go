package main

import (
	"os"

	"github.com/G-Research/batchproc/cmd/batchworker/cmd"
	"github.com/G-Research/batchproc/internal/common"
)

func main() {
	common.ConfigureLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
