package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/G-Research/batchproc/internal/common"
	"github.com/G-Research/batchproc/internal/common/app"
	"github.com/G-Research/batchproc/internal/worker"
	"github.com/G-Research/batchproc/internal/worker/configuration"
)

const customConfigLocation = "config"

// RootCmd is the batchworker root command. Both sub-commands read config/batchworker.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batchworker",
		Short: "batchworker processes jobs from the batch queue and serves the chunk executor pool.",
	}
	cmd.PersistentFlags().StringSlice(
		customConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")

	cmd.AddCommand(
		serviceCmd("run", "Consume jobs from the queue", worker.Run),
		serviceCmd("chunks", "Execute chunks dispatched through the redis executor pool", worker.RunChunkExecutor),
	)
	return cmd
}

func serviceCmd(use string, short string, run func(context.Context, *configuration.WorkerConfiguration) error) *cobra.Command {
	return &cobra.Command{
		Use:          use,
		Short:        short,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := cmd.Flags().GetStringSlice(customConfigLocation)
			if err != nil {
				return err
			}
			var config configuration.WorkerConfiguration
			common.LoadConfig(&config, "./config/batchworker", configs)
			return run(app.CreateContextWithShutdown(), &config)
		},
	}
}
