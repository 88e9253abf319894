package standard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
	"github.com/volantvm/mavproxy/internal/mavproxy/router"
)

// routerOptions builds backend options for local probes. Tests replace it.
var routerOptions = func(logDir string) router.Options {
	return router.Options{LogDir: logDir}
}

func newAssembleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Probe local router binaries and print the command line they would run",
		Long: "assemble runs without the daemon. It picks the first healthy router backend " +
			"(or the one named by --router), registers the given endpoints and prints the " +
			"resulting command line.",
		RunE: func(cmd *cobra.Command, args []string) error {
			masterSpec, _ := cmd.Flags().GetString("master")
			endpointSpecs, _ := cmd.Flags().GetStringArray("endpoint")
			name, _ := cmd.Flags().GetString("router")
			logDir, _ := cmd.Flags().GetString("log-dir")
			binary, _ := cmd.Flags().GetString("binary")

			master, err := endpoint.Parse("master", masterSpec)
			if err != nil {
				return fmt.Errorf("master: %w", err)
			}

			registry := router.NewRegistry(routerOptions(logDir))
			if name != "" && binary != "" {
				if err := registry.SetBinaryPath(name, binary); err != nil {
					return err
				}
			}

			var backend router.Backend
			if name != "" {
				backend, err = registry.New(name)
				if err != nil {
					return err
				}
				if !backend.IsOk(cmd.Context()) {
					return fmt.Errorf("router %s is not available", name)
				}
			} else {
				var ok bool
				backend, ok = registry.SelectHealthy(cmd.Context())
				if !ok {
					return router.ErrNoHealthyBackend
				}
			}

			for i, raw := range endpointSpecs {
				e, err := parseNamedEndpoint(raw, i)
				if err != nil {
					return err
				}
				if err := backend.AddEndpoint(e); err != nil {
					if errors.Is(err, router.ErrUnsupportedEndpoint) {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipping %s: %v\n", e.Name, err)
						continue
					}
					return fmt.Errorf("endpoint %s: %w", e.Name, err)
				}
			}

			command, err := backend.AssembleCommand(master)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return encodeAsJSON(cmd.OutOrStdout(), command)
			}
			fmt.Fprintln(cmd.OutOrStdout(), command.String())
			return nil
		},
	}
	cmd.Flags().String("master", "udp_server:0.0.0.0:14550", "Master endpoint as type:place:argument")
	cmd.Flags().StringArray("endpoint", nil, "Subordinate endpoint as [name=]type:place:argument (repeatable)")
	cmd.Flags().String("router", "", "Router backend name (default: first healthy)")
	cmd.Flags().String("binary", "", "Pin the router binary path (requires --router)")
	cmd.Flags().String("log-dir", envOrDefault("MAVPROXY_LOG_DIR", "."), "Directory handed to routers that write telemetry logs")
	cmd.Flags().Bool("json", false, "Print the command as JSON")
	return cmd
}

func parseNamedEndpoint(raw string, index int) (endpoint.Endpoint, error) {
	name := fmt.Sprintf("endpoint-%d", index+1)
	if before, after, ok := strings.Cut(raw, "="); ok {
		name, raw = before, after
	}
	return endpoint.Parse(name, raw)
}
