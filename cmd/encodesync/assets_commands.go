package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"encodesync/internal/api"
	"encodesync/internal/broadcast"
)

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	assetsCmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect and create asset records",
	}
	assetsCmd.AddCommand(newAssetsListCommand(ctx))
	assetsCmd.AddCommand(newAssetsShowCommand(ctx))
	assetsCmd.AddCommand(newAssetsCreateCommand(ctx))
	assetsCmd.AddCommand(newAssetsWatchCommand(ctx))
	return assetsCmd
}

func newAssetsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				list, err := client.ListAssets(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, list)
				}
				stdout := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(stdout, "No assets")
					return nil
				}
				fmt.Fprintln(stdout, renderAssetTable(list, shouldColorize(stdout)))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (draft, processing, ready, failed)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderAssetTable(list []api.Asset, colorize bool) string {
	rows := make([][]string, 0, len(list))
	for _, a := range list {
		flag := ""
		if a.NeedsAttention {
			flag = "!"
		}
		rows = append(rows, []string{
			a.ID,
			a.Title,
			statusLabel(a.Status, colorize),
			strconv.Itoa(a.Progress) + "%",
			fallback(a.JobID, "-"),
			flag,
		})
	}
	return renderTable([]column{
		{title: "ID"},
		{title: "Title"},
		{title: "Status"},
		{title: "Progress", right: true},
		{title: "Job"},
		{title: "Attn"},
	}, rows)
}

func newAssetsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				asset, err := client.GetAsset(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, asset)
				}
				writeAssetDetails(cmd.OutOrStdout(), *asset, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func writeAssetDetails(w io.Writer, a api.Asset, colorize bool) {
	fields := [][2]string{
		{"ID", a.ID},
		{"Title", a.Title},
		{"Status", statusLabel(a.Status, colorize)},
		{"Progress", strconv.Itoa(a.Progress) + "%"},
		{"Job", a.JobID},
		{"Attempt", strconv.Itoa(a.Generation)},
		{"Source", a.SourceKey},
		{"Submitted", a.SubmittedAt},
		{"Updated", a.UpdatedAt},
	}
	if a.Outputs != nil {
		fields = append(fields,
			[2]string{"Stream", a.Outputs.Stream},
			[2]string{"Thumbnail", a.Outputs.Thumbnail},
			[2]string{"Preview", a.Outputs.Preview},
			[2]string{"Sprite", a.Outputs.Sprite},
		)
	}
	if a.DurationSeconds > 0 {
		fields = append(fields, [2]string{"Duration", strconv.Itoa(a.DurationSeconds) + "s"})
	}
	if a.FailureReason != "" {
		fields = append(fields, [2]string{"Failure", a.FailureReason})
	}
	fields = append(fields, [2]string{"Needs attention", yesNo(a.NeedsAttention)})
	if a.AttentionReason != "" {
		fields = append(fields, [2]string{"Attention", a.AttentionReason})
	}
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			continue
		}
		fmt.Fprintf(w, "%-16s %s\n", f[0]+":", f[1])
	}
}

func newAssetsCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateAssetRequest
	var submitNow bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				asset, err := client.CreateAsset(cmd.Context(), req)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Created asset %s\n", asset.ID)
				if !submitNow {
					return nil
				}
				job, err := client.Submit(cmd.Context(), asset.ID, "")
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Submitted job %s\n", job.JobID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.ID, "id", "", "Asset id (generated when empty)")
	cmd.Flags().StringVar(&req.Title, "title", "", "Display title")
	cmd.Flags().StringVar(&req.SourceKey, "source", "", "Source object key in the uploads bucket")
	cmd.Flags().BoolVar(&submitNow, "submit", false, "Submit the asset right after creating it")
	return cmd
}

var errStreamDone = errors.New("asset reached a terminal state")

func newAssetsWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow live status updates until the asset is ready or failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			return ctx.withClient(func(client *api.Client) error {
				err := client.Follow(cmd.Context(), args[0], func(s broadcast.Snapshot) error {
					line := fmt.Sprintf("%s  %-12s %3d%%", s.UpdatedAt.Local().Format("15:04:05"), statusLabel(string(s.Status), colorize), s.Progress)
					if s.OutputLocations != nil {
						line += "  " + s.OutputLocations.Stream
					}
					if s.FailureReason != "" {
						line += "  " + s.FailureReason
					}
					fmt.Fprintln(stdout, line)
					if s.Status.IsTerminal() {
						return errStreamDone
					}
					return nil
				})
				if errors.Is(err, errStreamDone) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}
