package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"encodesync/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id> [source-key]",
		Short: "Submit (or resubmit a failed) asset for encoding",
		Long: "Submit starts a MediaConvert job for a draft or failed asset. " +
			"Without a source key the key recorded on the asset is reused.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceKey := ""
			if len(args) == 2 {
				sourceKey = args[1]
			}
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Submit(cmd.Context(), args[0], sourceKey)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted asset %s as job %s\n", job.AssetID, job.JobID)
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel the asset's running encoding job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancel requested for job %s; the asset fails once MediaConvert confirms\n", job.JobID)
				return nil
			})
		},
	}
}
