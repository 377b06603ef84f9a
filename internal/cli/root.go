package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nudge-project/nudge/pkg/color"
	"github.com/nudge-project/nudge/pkg/errclass"
)

var (
	jsonOutput bool
	noColor    bool
	configPath string
	stateDir   string
)

func newRootCmd() *cobra.Command {
	jsonOutput, noColor, configPath, stateDir = false, false, "", ""

	cmd := &cobra.Command{
		Use:   "nudge",
		Short: "nudge - software update deferral and enforcement",
		Long: `nudge tracks a required update deadline, lets the user defer the update
within the allowed window, and refuses further deferrals once the deadline
has passed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/nudge/config.yaml)")
	cmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "ledger and audit directory (default $XDG_STATE_HOME/nudge)")

	cmd.AddCommand(
		newStatusCmd(),
		newDeferCmd(),
		newUpdateCmd(),
		newRunCmd(),
		newLedgerCmd(),
		newConfigCmd(),
		newAuditCmd(),
		newDoctorCmd(),
		newMetricsCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmtErr("%v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates refusals and bad config from other failures so
// wrapper scripts can tell them apart.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errclass.ErrConfigurationInvalid):
		return 3
	case errors.Is(err, errclass.ErrUpdateLaunchFailed):
		return 4
	case errors.Is(err, errclass.ErrInvalidDeferral):
		return 2
	}
	return 1
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtErr(format string, args ...any) {
	prefix := "nudge: "
	if color.Enabled() {
		prefix = color.Error("nudge:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
