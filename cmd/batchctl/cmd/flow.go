package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/G-Research/batchproc/internal/batchctl"
)

func flowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Run a processing flow locally",
	}
	cmd.AddCommand(
		flowRunCmd("data", "Fetch, preprocess, process and save a data mapping", (*batchctl.App).DataFlow),
		flowRunCmd("text", "Fetch, process and save a text", (*batchctl.App).TextFlow),
	)
	return cmd
}

func flowRunCmd(use string, short string, run func(*batchctl.App, context.Context, string, string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " ./path/to/flow.yaml",
		Short: short,
		Long: short + `.

Example flow.yaml:

  source_url: https://example.com/input.json
  options:
    auth_token: secret
    skip_keys: [internal_id]
    lowercase_strings: true
    batch_size: 5
  destination: s3://results-bucket/run.json?region=eu-west-1
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			destination, err := cmd.Flags().GetString("destination")
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			return run(a, cmd.Context(), args[0], destination)
		},
	}
	cmd.Flags().String("destination", "", "Where to save results (file://, s3://, gs://, mem:// or redis://), overriding the flow file")
	return cmd
}
