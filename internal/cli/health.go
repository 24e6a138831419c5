package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health and live connection counts",
		Long: `Check server health. The result includes the number of rooms with live
connections and the number of connected sessions.

With --wait the check is retried until the server answers or the duration
runs out, which is useful right after starting a server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := checkHealth(wait)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(*result)
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Keep retrying for up to this long")

	return cmd
}

func checkHealth(wait time.Duration) (*HealthResult, error) {
	deadline := time.Now().Add(wait)
	for {
		var result HealthResult
		err := client.Get("/api/v1/health", &result)
		if err == nil {
			return &result, nil
		}
		if time.Now().After(deadline) {
			if wait > 0 {
				return nil, fmt.Errorf("server not healthy after %s: %w", wait, err)
			}
			return nil, err
		}
		time.Sleep(200 * time.Millisecond)
	}
}
