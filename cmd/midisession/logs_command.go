package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"midisession/internal/ipc"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		follow    bool
		component string
		tag       string
		event     string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon log output",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				req := ipc.LogTailRequest{Offset: -1, Limit: lines, Component: component, EventType: event, Tag: tag}
				for {
					resp, err := client.LogTail(req)
					if err != nil {
						return err
					}
					for _, line := range resp.Lines {
						fmt.Fprintln(stdout, line)
					}
					if !follow || runCtx.Err() != nil {
						return nil
					}
					req = ipc.LogTailRequest{Offset: resp.Offset, Follow: true, WaitMillis: 1000, Component: component, EventType: event, Tag: tag}
				}
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&component, "component", "", "Only lines from this component")
	cmd.Flags().StringVar(&tag, "tag", "", "Only lines about this resource tag")
	cmd.Flags().StringVar(&event, "event", "", "Only lines with this event_type")
	return cmd
}
