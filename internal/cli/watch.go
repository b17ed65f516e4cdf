package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newWatchCmd(app func() *app) *cobra.Command {
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the stored session alive until interrupted",
		Long: `Hold the session open: the token is refreshed before it expires and
changes made by other fleetctl processes are picked up from disk.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if every <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", every)
			}
			a := app()
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			printf(cmd, "Watching session of %s, Ctrl+C to stop\n", a.role())

			ticker := time.NewTicker(every)
			defer ticker.Stop()
			last := a.manager.Token()
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-ticker.C:
				}
				if target := a.manager.Redirect(); target != "" {
					printf(cmd, "Session ended, log in again\n")
					return nil
				}
				if tok := a.manager.Token(); tok != last {
					last = tok
					printf(cmd, "%s token renewed\n", time.Now().Format(time.TimeOnly))
				}
			}
		},
	}
	cmd.Flags().DurationVar(&every, "interval", time.Second, "how often to report session changes")
	return cmd
}
