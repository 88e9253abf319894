package standard

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/volantvm/mavproxy/internal/cli/client"
)

func newRouterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "router",
		Short: "Control the supervised router process",
	}
	for _, action := range []string{"start", "stop", "restart"} {
		cmd.AddCommand(newRouterControlCmd(action))
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show router process status",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			st, err := api.Status(ctx)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "command",
		Short: "Print the command line the daemon would launch",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			resp, err := api.Command(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n", resp.Router, resp.Line)
			return nil
		},
	})
	return cmd
}

func newRouterControlCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: fmt.Sprintf("%s the router process", capitalize(action)),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			st, err := api.Control(ctx, action)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printStatus(out io.Writer, st *client.Status) {
	if !st.Running {
		fmt.Fprintf(out, "Running: no\nMaster: %s\n", st.Master.String())
		return
	}
	fmt.Fprintf(out, "Running: yes\nRouter: %s\nPID: %d\nMaster: %s\nCommand: %s\n", st.Router, st.PID, st.Master.String(), st.Command)
	if st.StartedAt != nil {
		fmt.Fprintf(out, "Started: %s\n", st.StartedAt.Format(time.RFC3339))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
