package standard

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/volantvm/mavproxy/internal/cli/client"
)

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Stream router lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			err = api.WatchEvents(ctx, func(evt client.RouterEvent) {
				line := fmt.Sprintf("%s %-8s %s", evt.Timestamp.Format(time.RFC3339), evt.Type, evt.Router)
				if evt.PID != 0 {
					line += fmt.Sprintf(" pid=%d", evt.PID)
				}
				if evt.Error != "" {
					line += " error=" + evt.Error
				}
				fmt.Fprintln(out, line)
			})
			if err != nil && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
