package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nudge-project/nudge/pkg/color"
)

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or reset the persisted deferral count",
	}
	cmd.AddCommand(newLedgerShowCmd(), newLedgerResetCmd())
	return cmd
}

func newLedgerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the quit deferral count for the configured deadline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			l := client.Ledger()
			counters := l.Counters()
			until := l.DeferredUntil()
			degraded := l.Degraded()

			if jsonOutput {
				out := map[string]any{
					"timeline":   l.Timeline(),
					"quit_count": counters.Quit,
				}
				if !until.IsZero() {
					out["deferred_until"] = until.UTC().Format(time.RFC3339)
				}
				if degraded != nil {
					out["degraded"] = degraded.Error()
				}
				return outputJSON(out)
			}

			p := newPrinter(client.Config().Language)
			fmt.Printf("%s %s\n", p.Sprintf("Timeline:"), l.Timeline())
			fmt.Printf("%s %d\n", p.Sprintf("Quit deferrals:"), counters.Quit)
			if !until.IsZero() {
				fmt.Printf("%s %s\n", p.Sprintf("Deferred until:"), until.UTC().Format(time.RFC3339))
			}
			if degraded != nil {
				fmt.Printf("%s %s\n", p.Sprintf("Ledger unreadable:"), color.Error(degraded.Error()))
			}
			return nil
		},
	}
}

func newLedgerResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the quit deferral count for the configured deadline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			st, err := client.ResetLedger()
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(st)
			}
			fmt.Println(color.Success(newPrinter(client.Config().Language).Sprintf("Ledger reset for %s", client.Ledger().Timeline())))
			return nil
		},
	}
}
