package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nudge-project/nudge/pkg/model"
)

func newRunCmd() *cobra.Command {
	var (
		once        bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Re-evaluate the deadline every tick interval",
		Long: `Evaluate the enforcement state every tick_interval and print it, until
interrupted. With --once, print a single evaluation and exit. With
--metrics-addr, also serve Prometheus metrics while running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			p := newPrinter(client.Config().Language)
			show := func(st model.EnforcementState) {
				if jsonOutput {
					outputJSON(st)
					return
				}
				printState(p, st)
				fmt.Println()
			}
			if once {
				show(client.Status())
				return nil
			}

			if metricsAddr != "" {
				return runServingMetrics(cmd.Context(), client, metricsAddr, show)
			}
			err = client.Run(cmd.Context(), show)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "evaluate once and exit")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	return cmd
}
