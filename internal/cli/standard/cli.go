package standard

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/volantvm/mavproxy/internal/cli/client"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Execute runs the Cobra-based CLI entry point.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mavctl",
		Short:         "mavproxy command-line interface",
		Long:          "mavctl manages the MAVLink router supervised by mavproxyd and probes router binaries locally.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringP("api", "a", envOrDefault("MAVCTL_API", envOrDefault("MAVPROXY_API", "http://127.0.0.1:6040")), "mavproxyd base URL")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRoutersCmd())
	cmd.AddCommand(newEndpointsCmd())
	cmd.AddCommand(newMasterCmd())
	cmd.AddCommand(newRouterCmd())
	cmd.AddCommand(newAssembleCmd())
	cmd.AddCommand(newEventsCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mavctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mavctl %s\n", Version)
		},
	}
}

func clientFromCmd(cmd *cobra.Command) (*client.Client, error) {
	base, err := cmd.Flags().GetString("api")
	if err != nil {
		return nil, err
	}
	return client.New(base)
}
