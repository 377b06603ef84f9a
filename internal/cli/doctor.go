package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nudge-project/nudge/internal/doctor"
	"github.com/nudge-project/nudge/pkg/color"
)

var errUnhealthy = errors.New("installation unhealthy")

func newDoctorCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check installation health",
		Long: `Check installation health.

Validates the configuration, reads the ledger for the configured deadline
and checks that the updater command exists. Use --strict to also verify
the audit log hash chain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			result, err := doctor.NewDoctor(cfg, resolveStateDir()).Check(strict)
			if err != nil {
				return fmt.Errorf("doctor: %w", err)
			}

			if jsonOutput {
				if err := outputJSON(result); err != nil {
					return err
				}
			} else if len(result.Findings) == 0 {
				fmt.Println(color.Success("Installation is healthy."))
			} else {
				fmt.Printf("Findings (%d):\n", len(result.Findings))
				for _, f := range result.Findings {
					fmt.Printf("  %s %s: %s\n", severity(f.Severity), f.Category, f.Description)
				}
			}

			if !result.Healthy {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "also verify the audit log hash chain")
	return cmd
}

func severity(s string) string {
	label := "[" + s + "]"
	switch s {
	case "critical", "error":
		return color.Error(label)
	case "warning":
		return color.Warning(label)
	}
	return color.Dim(label)
}
