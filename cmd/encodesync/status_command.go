package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"encodesync/internal/api"
	"encodesync/internal/assets"
	"encodesync/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, asset and polling status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			check := preflight.CheckDaemon(cmd.Context(), ctx.apiBaseURL(), ctx.apiToken())
			if !check.Passed {
				if jsonOutput {
					return writeJSON(cmd, api.DaemonStatus{})
				}
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine(check.Name, statusError, check.Detail, colorize))
				return nil
			}

			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("API", statusOK, check.Detail, colorize))
				fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Broadcast", statusInfo, status.Broadcast, colorize))
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Assets", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, s := range assets.AllStatuses() {
					name := string(s)
					fmt.Fprintln(stdout, renderStatusLine(statusLabel(name, false), assetStatusKind(name), strconv.Itoa(status.Counts[name]), colorize))
				}
				attention := statusOK
				if status.Attention > 0 {
					attention = statusWarn
				}
				fmt.Fprintln(stdout, renderStatusLine("Needs attention", attention, strconv.Itoa(status.Attention), colorize))
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Polling", colorize) {
					fmt.Fprintln(stdout, line)
				}
				if len(status.Watching) == 0 {
					fmt.Fprintln(stdout, "No jobs being polled")
					return nil
				}
				fmt.Fprintln(stdout, renderWatchTable(status.Watching))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderWatchTable(watches []api.Watch) string {
	rows := make([][]string, 0, len(watches))
	for _, w := range watches {
		rows = append(rows, []string{
			w.AssetID,
			w.JobID,
			strconv.Itoa(w.Attempts),
			fallback(w.LastStatus, "-"),
			fallback(w.NextCheck, "-"),
		})
	}
	return renderTable([]column{
		{title: "Asset"},
		{title: "Job"},
		{title: "Attempts", right: true},
		{title: "Last Status"},
		{title: "Next Check"},
	}, rows)
}

func fallback(value, alt string) string {
	if value == "" {
		return alt
	}
	return value
}
