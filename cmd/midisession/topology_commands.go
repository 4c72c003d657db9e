package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"midisession/internal/ipc"
	"midisession/internal/notify"
	"midisession/internal/transport"
)

func newTopologyCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newDevicesCommand(ctx),
		newEndpointsCommand(ctx),
		newWatchCommand(ctx),
	}
}

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List MIDI devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			session, err := openLocalSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			devices := session.Devices()
			if asJSON {
				return writeJSON(cmd, devices)
			}
			stdout := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(stdout, "No MIDI devices found")
				return nil
			}
			rows := make([][]string, 0, len(devices))
			for _, dev := range devices {
				rows = append(rows, []string{
					dev.Name,
					dev.Manufacturer,
					dev.Model,
					strconv.Itoa(int(dev.UniqueID)),
					strconv.Itoa(len(dev.Entities)),
					yesNo(!dev.Offline),
				})
			}
			fmt.Fprint(stdout, renderTable(
				[]string{"Name", "Manufacturer", "Model", "Unique ID", "Entities", "Online"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newEndpointsCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON  bool
		owned   bool
		unowned bool
	)
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List MIDI sources and destinations",
		Long: "List MIDI sources and destinations. When the daemon is running the listing\n" +
			"comes from its session, so --owned shows the daemon's virtual ports.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owned && unowned {
				return errors.New("--owned and --unowned are mutually exclusive")
			}
			endpoints, err := listEndpoints(cmd.Context(), ctx, ipc.EndpointsRequest{Owned: owned, Unowned: unowned})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, endpoints)
			}
			stdout := cmd.OutOrStdout()
			if len(endpoints) == 0 {
				fmt.Fprintln(stdout, "No MIDI endpoints found")
				return nil
			}
			rows := make([][]string, 0, len(endpoints))
			for _, ep := range endpoints {
				rows = append(rows, []string{
					ep.DisplayName,
					directionLabel(ep.Direction),
					strconv.Itoa(int(ep.UniqueID)),
					yesNo(ep.Owned),
					yesNo(!ep.Offline),
				})
			}
			fmt.Fprint(stdout, renderTable(
				[]string{"Endpoint", "Kind", "Unique ID", "Owned", "Online"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&owned, "owned", false, "Only endpoints created by the session")
	cmd.Flags().BoolVar(&unowned, "unowned", false, "Only endpoints not created by the session")
	return cmd
}

// listEndpoints asks the daemon and falls back to a local session when no
// daemon is reachable.
func listEndpoints(cmdCtx context.Context, ctx *commandContext, req ipc.EndpointsRequest) ([]ipc.Endpoint, error) {
	if client, err := ipc.Dial(ctx.socketPath()); err == nil {
		defer client.Close()
		resp, err := client.Endpoints(req)
		if err == nil {
			return resp.Endpoints, nil
		}
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	session, err := openLocalSession(cmdCtx, cfg)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	snap := session.Snapshot()
	owned := make(map[transport.Handle]bool)
	for _, list := range [][]transport.EndpointRecord{snap.OutputsOwned, snap.InputsOwned} {
		for _, ep := range list {
			owned[ep.Handle] = true
		}
	}
	all := make([]transport.EndpointRecord, 0, len(snap.Outputs)+len(snap.Inputs))
	all = append(all, snap.Outputs...)
	all = append(all, snap.Inputs...)
	var out []ipc.Endpoint
	for _, ep := range all {
		isOwned := owned[ep.Handle]
		if (req.Owned && !isOwned) || (req.Unowned && isOwned) {
			continue
		}
		out = append(out, ipc.Endpoint{
			Handle:      uint32(ep.Handle),
			UniqueID:    int32(ep.UniqueID),
			Name:        ep.Name,
			DisplayName: ep.DisplayName,
			Direction:   ep.Direction.String(),
			Offline:     ep.Offline,
			Owned:       isOwned,
		})
	}
	return out, nil
}

func directionLabel(direction string) string {
	if direction == transport.Output.String() {
		return "source"
	}
	return "destination"
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print topology notifications as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, duration)
				defer cancel()
			}

			session, err := openLocalSession(runCtx, cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			stdout := cmd.OutOrStdout()
			lines := make(chan string, 64)
			session.SetNotificationHandler(func(n notify.Notification) {
				select {
				case lines <- fmt.Sprintf("%s %-18s %s", time.Now().Format(time.TimeOnly), n.Kind(), n):
				default:
				}
			})
			fmt.Fprintf(stdout, "Watching %d devices; press Ctrl+C to stop\n", len(session.Devices()))
			for {
				select {
				case <-runCtx.Done():
					return nil
				case line := <-lines:
					fmt.Fprintln(stdout, line)
				}
			}
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 watches until interrupted)")
	return cmd
}
