package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nudge-project/nudge/internal/audit"
	"github.com/nudge-project/nudge/pkg/color"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the enforcement audit log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			appender := audit.NewFileAppender(cfg.AuditPath(resolveStateDir()))
			n, err := appender.Verify()
			if err != nil {
				return fmt.Errorf("%s: %w", appender.Path(), err)
			}
			if jsonOutput {
				return outputJSON(map[string]any{"path": appender.Path(), "records": n})
			}
			fmt.Println(color.Success(newPrinter(cfg.Language).Sprintf("Audit log intact: %d records", n)))
			return nil
		},
	})
	return cmd
}
