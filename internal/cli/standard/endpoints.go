package standard

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

func newEndpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Manage subordinate endpoints",
	}
	cmd.AddCommand(newEndpointsListCmd())
	cmd.AddCommand(newEndpointsAddCmd())
	cmd.AddCommand(newEndpointsRemoveCmd())
	return cmd
}

func newEndpointsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			eps, err := api.ListEndpoints(ctx)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return encodeAsJSON(cmd.OutOrStdout(), eps)
			}
			if len(eps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No endpoints configured")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-36s %-10s %-10s %s\n", "NAME", "ENDPOINT", "ENABLED", "PERSIST", "PROTECTED")
			for _, e := range eps {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-36s %-10s %-10s %s\n", e.Name, e.String(), yesNo(e.Enabled), yesNo(e.Persistent), yesNo(e.Protected))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print endpoints as JSON")
	return cmd
}

func newEndpointsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name> <type:place:argument>",
		Short: "Add an endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := endpoint.Parse(args[0], args[1])
			if err != nil {
				return err
			}
			e.Owner, _ = cmd.Flags().GetString("owner")
			e.Persistent, _ = cmd.Flags().GetBool("persistent")
			if disabled, _ := cmd.Flags().GetBool("disabled"); disabled {
				e.Enabled = false
			}

			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			created, err := api.AddEndpoint(ctx, e)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Endpoint %s added (%s)\n", created.Name, created.String())
			return nil
		},
	}
	cmd.Flags().String("owner", "mavctl", "Owner recorded on the endpoint")
	cmd.Flags().Bool("persistent", true, "Keep the endpoint across daemon restarts")
	cmd.Flags().Bool("disabled", false, "Store the endpoint without routing to it")
	return cmd
}

func newEndpointsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove an endpoint",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := api.RemoveEndpoint(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Endpoint %s removed\n", args[0])
			return nil
		},
	}
}

func newMasterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Show or change the master endpoint",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the master endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			master, err := api.GetMaster(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), master.String())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <type:place:argument>",
		Short: "Replace the master endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			master, err := endpoint.Parse("master", args[0])
			if err != nil {
				return err
			}
			master.Protected = true
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			updated, err := api.SetMaster(ctx, master)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Master set to %s\n", updated.String())
			return nil
		},
	})
	return cmd
}
