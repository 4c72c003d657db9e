package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"midisession/internal/ipc"
	"midisession/internal/manager"
	"midisession/internal/transport"
)

func newResourcesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List resources managed by the daemon session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resources()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Resources)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Resources) == 0 {
					fmt.Fprintln(stdout, "No managed resources")
					return nil
				}
				rows := make([][]string, 0, len(resp.Resources))
				for _, r := range resp.Resources {
					rows = append(rows, []string{r.Kind.String(), r.Tag, yesNo(r.Realized), resourceDetail(r)})
				}
				fmt.Fprint(stdout, renderTable([]string{"Kind", "Tag", "Realized", "Detail"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func resourceDetail(r manager.ResourceInfo) string {
	var detail string
	switch r.Kind {
	case manager.KindVirtualInput, manager.KindVirtualOutput:
		detail = fmt.Sprintf("%s (id %d)", r.Name, r.UniqueID)
	case manager.KindInputConnection, manager.KindOutputConnection:
		detail = fmt.Sprintf("%s: %s", r.Mode, endpointNames(r.Bound))
	case manager.KindThruConnection:
		detail = fmt.Sprintf("%s -> %s", endpointNames(r.Sources), endpointNames(r.Destinations))
	}
	if r.LastError != "" {
		detail += " [" + r.LastError + "]"
	}
	return detail
}

func endpointNames(eps []transport.EndpointRecord) string {
	if len(eps) == 0 {
		return "-"
	}
	names := make([]string, len(eps))
	for i, ep := range eps {
		names[i] = ep.DisplayName
	}
	return strings.Join(names, ", ")
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "remove <kind> [tag]",
		Short: "Remove a managed resource from the daemon session",
		Long: "Remove a managed resource. kind is one of virtual_input, virtual_output,\n" +
			"input_connection, output_connection or thru_connection. Pass --all instead\n" +
			"of a tag to remove every resource of that kind.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := manager.ParseResourceKind(args[0])
			if err != nil {
				return err
			}
			tag := ""
			if len(args) == 2 {
				tag = strings.TrimSpace(args[1])
			}
			if (tag == "") == !all {
				return fmt.Errorf("specify either a tag or --all")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Remove(kind.String(), tag)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s resource(s)\n", resp.Removed, kind)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every resource of the kind")
	return cmd
}
