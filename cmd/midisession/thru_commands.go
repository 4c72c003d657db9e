package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"midisession/internal/transport"
)

func newThruCommand(ctx *commandContext) *cobra.Command {
	thruCmd := &cobra.Command{
		Use:   "thru",
		Short: "Inspect persistent thru connections",
	}

	var listOwner string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List persistent thru connections owned by an id",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := requireOwner(listOwner)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			session, err := openLocalSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			handles, err := session.PersistentThruConnections(cmd.Context(), owner)
			if errors.Is(err, transport.ErrNotSupported) {
				return fmt.Errorf("the %s backend does not support persistent thru connections", cfg.Transport.Backend)
			}
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if len(handles) == 0 {
				fmt.Fprintf(stdout, "No persistent thru connections for %s\n", owner)
				return nil
			}
			for _, h := range handles {
				fmt.Fprintf(stdout, "%s%d\n", statusIndent, h)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&listOwner, "owner", "", "Owner id the connections were created with")

	var clearOwner string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Dispose every persistent thru connection owned by an id",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := requireOwner(clearOwner)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			session, err := openLocalSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			removed, err := session.RemovePersistentThruConnections(cmd.Context(), owner)
			if errors.Is(err, transport.ErrNotSupported) {
				return fmt.Errorf("the %s backend does not support persistent thru connections", cfg.Transport.Backend)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d persistent thru connection(s)\n", removed)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&clearOwner, "owner", "", "Owner id the connections were created with")

	thruCmd.AddCommand(listCmd, clearCmd)
	return thruCmd
}

func requireOwner(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", errors.New("--owner is required")
	}
	return owner, nil
}
