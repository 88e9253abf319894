package standard

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRoutersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routers",
		Short: "List router backends known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			routers, err := api.ListRouters(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-16s %-18s %-12s %-10s %-10s %s\n", "NAME", "BINARY", "VERSION", "PREFERRED", "ACTIVE", "HEALTH")
			for _, r := range routers {
				version := r.Version
				if version == "" {
					version = "-"
				}
				fmt.Fprintf(out, "%-16s %-18s %-12s %-10s %-10s %s\n", r.Name, r.BinaryName, version, yesNo(r.Preferred), yesNo(r.Active), healthLabel(out, r.Healthy))
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "prefer <name>",
		Short: "Set the preferred router backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := api.SetPreferredRouter(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Preferred router set to %s\n", args[0])
			return nil
		},
	})
	return cmd
}
