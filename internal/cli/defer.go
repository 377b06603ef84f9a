package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nudge-project/nudge/internal/enforce"
	"github.com/nudge-project/nudge/pkg/clock"
	"github.com/nudge-project/nudge/pkg/color"
	"github.com/nudge-project/nudge/pkg/model"
)

func newDeferCmd() *cobra.Command {
	var (
		quit  bool
		until string
		days  int
	)
	cmd := &cobra.Command{
		Use:   "defer",
		Short: "Defer the update",
		Long: `Record a deferral. Without --quit the deferral lasts for this session only;
with --quit it is persisted and counts across restarts. --until or --days
sets the reminder time, which must fall inside the allowed deferral range.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("until") && cmd.Flags().Changed("days") {
				return fmt.Errorf("--until and --days are mutually exclusive")
			}
			if cmd.Flags().Changed("days") && days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}

			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			req := enforce.DeferralRequest{Kind: model.DeferralSession}
			if quit {
				req.Kind = model.DeferralQuit
			}
			switch {
			case until != "":
				t, err := time.Parse(time.RFC3339, until)
				if err != nil {
					return fmt.Errorf("parse --until: %w", err)
				}
				req.Until = t
			case cmd.Flags().Changed("days"):
				req.Until = clock.AddDays(client.Status().EvaluatedAt, days)
			}

			st, err := client.Defer(req)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(st)
			}
			p := newPrinter(client.Config().Language)
			count := st.Counters.Session
			if req.Kind == model.DeferralQuit {
				count = st.Counters.Quit
			}
			fmt.Println(color.Success(p.Sprintf("Deferral recorded (%s, total %d)", req.Kind, count)))
			printState(p, st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&quit, "quit", false, "persist the deferral across restarts")
	cmd.Flags().StringVar(&until, "until", "", "reminder time (RFC 3339)")
	cmd.Flags().IntVar(&days, "days", 0, "reminder in whole days from now")
	return cmd
}
