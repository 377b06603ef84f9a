package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/nudge-project/nudge/pkg/color"
	"github.com/nudge-project/nudge/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current enforcement state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			st := client.Status()
			if jsonOutput {
				return outputJSON(st)
			}
			printState(newPrinter(client.Config().Language), st)
			return nil
		},
	}
}

func printState(p *message.Printer, st model.EnforcementState) {
	row := func(label, value string) {
		fmt.Printf("%s %s\n", p.Sprintf(label), value)
	}

	row("Deadline:", st.Deadline.UTC().Format(time.RFC3339))
	row("Days Remaining To Update:", color.Days(st.DaysRemaining, st.UpdateRequired, st.Imminent))
	row("Deferred Count:", fmt.Sprint(st.TotalDeferrals))
	row("Mode:", string(st.Mode))
	if st.Deferred() {
		row("Deferred until:", st.DeferredUntil.UTC().Format(time.RFC3339))
	}
	if st.QuitExposed && st.DeferralRange.Latest.After(st.DeferralRange.Earliest) {
		row("Defer until at most:", st.DeferralRange.Latest.UTC().Format(time.RFC3339))
	}

	switch {
	case st.Mode == model.ModeDemo:
		fmt.Println(color.Info(p.Sprintf("Demo mode: enforcement suspended.")))
	case st.UpdateRequired:
		fmt.Println(color.Error(p.Sprintf("Your device requires an update.")))
	case st.Imminent:
		fmt.Println(color.Warning(p.Sprintf("The update deadline is imminent.")))
	}
	if st.DeferralsExhausted {
		fmt.Println(color.Warning(p.Sprintf("No deferrals remain.")))
	}
}
