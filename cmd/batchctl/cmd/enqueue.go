package cmd

import (
	"github.com/spf13/cobra"
)

func enqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <job_type> <json data>",
		Short: "Submit a job to the batch API",
		Example: `  batchctl enqueue data_processing '{"a": 1, "b": 2}' --options '{"batch_size": 1}'
  batchctl enqueue text_processing '"some text"'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := cmd.Flags().GetString("options")
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			return a.Enqueue(cmd.Context(), args[0], args[1], options)
		},
	}
	cmd.Flags().String("options", "", "Job options as a JSON object")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Show the status and result of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			return a.Status(cmd.Context(), args[0])
		},
	}
}
