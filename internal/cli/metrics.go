package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nudge-project/nudge/pkg/metrics"
	"github.com/nudge-project/nudge/pkg/model"
	"github.com/nudge-project/nudge/pkg/nudge"
)

func newMetricsCmd() *cobra.Command {
	var addr, textfile string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve Prometheus metrics",
		Long: `Evaluate the deadline every tick_interval and expose the nudge metrics
on a /metrics endpoint until interrupted:
- nudge_days_remaining
- nudge_deferrals_recorded_total
- nudge_enforcement_blocked_total
- nudge_update_launches_total
- nudge_persistence_retries_total
- nudge_events_dropped_total

With --textfile, evaluate once and write the metrics to a file for the
node exporter textfile collector instead.

Examples:
  nudge metrics                          # serve on :2112
  nudge metrics --addr 127.0.0.1:9090    # serve on a custom address
  nudge metrics --textfile /var/lib/node_exporter/nudge.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			if textfile != "" {
				client.Status()
				if err := metrics.WriteTextfile(textfile, metricsGatherer); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
				if !jsonOutput {
					fmt.Printf("Metrics written to %s\n", textfile)
				}
				return outputJSON(map[string]string{"textfile": textfile})
			}

			fmt.Printf("Metrics available at http://%s/metrics\n", addr)
			fmt.Println("Press Ctrl+C to stop")
			return runServingMetrics(cmd.Context(), client, addr, nil)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", ":2112", "address to listen on")
	cmd.Flags().StringVar(&textfile, "textfile", "", "write metrics to this file once and exit")
	return cmd
}

// runServingMetrics runs the client loop and the metrics server together.
// Whichever stops first stops the other.
func runServingMetrics(ctx context.Context, client *nudge.Client, addr string, observe func(model.EnforcementState)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- metrics.Serve(ctx, addr, metricsGatherer) }()
	ran := make(chan error, 1)
	go func() { ran <- client.Run(ctx, observe) }()

	var runErr, serveErr error
	select {
	case serveErr = <-served:
		cancel()
		runErr = <-ran
	case runErr = <-ran:
		cancel()
		serveErr = <-served
	}
	if serveErr != nil {
		return fmt.Errorf("metrics server: %w", serveErr)
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
