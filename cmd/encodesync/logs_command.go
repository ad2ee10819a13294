package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"encodesync/internal/api"
	"encodesync/internal/logs"
)

const followWait = 20 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var raw bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			emit := func(line string) {
				if !raw {
					line = logs.FormatLine(line)
				}
				fmt.Fprintln(stdout, line)
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.TailLogs(cmd.Context(), -1, lines, 0)
				if err != nil {
					return err
				}
				for _, line := range resp.Lines {
					emit(line)
				}
				offset := resp.Offset
				for follow {
					resp, err := client.TailLogs(cmd.Context(), offset, 0, followWait)
					if err != nil {
						if errors.Is(cmd.Context().Err(), context.Canceled) {
							return nil
						}
						return err
					}
					for _, line := range resp.Lines {
						emit(line)
					}
					offset = resp.Offset
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines as they are written")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print raw JSON records")
	return cmd
}
