package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/batchproc/internal/batchctl"
	"github.com/G-Research/batchproc/internal/common"
	"github.com/G-Research/batchproc/internal/common/config"
)

const customConfigLocation = "config"

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "batchctl",
		Short:        "batchctl runs processing flows and talks to the batch API.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringSlice(customConfigLocation, []string{}, "Fully qualified path to a batchctl configuration file")

	cmd.AddCommand(
		flowCmd(),
		enqueueCmd(),
		statusCmd(),
	)
	return cmd
}

// newApp loads config/batchctl plus any --config overrides.
func newApp(cmd *cobra.Command) (*batchctl.App, error) {
	configs, err := cmd.Flags().GetStringSlice(customConfigLocation)
	if err != nil {
		return nil, err
	}
	params := &batchctl.Params{}
	common.LoadConfig(params, "./config/batchctl", configs)
	if err := config.Validate(params); err != nil {
		return nil, err
	}
	a := batchctl.New(params)
	a.Out = cmd.OutOrStdout()
	return a, nil
}
