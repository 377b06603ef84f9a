package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nudge-project/nudge/pkg/color"
	"github.com/nudge-project/nudge/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config <command>",
		Short: "Manage nudge configuration",
		Long: `Manage the nudge configuration file. NUDGE_* environment variables
override values from the file.

Configuration options:
  deadline               - Required update deadline (RFC 3339)
  imminent_window_hours  - Hours before the deadline in which deferrals stop
  demo_mode              - Suspend enforcement (true, false)
  allow_buttons          - Expose defer and quit controls (true, false)
  allowed_deferrals      - Deferrals allowed before controls hide; 0 = unlimited
  imminent_rounding      - Hours-to-days rounding (floor, ceil)
  ledger.backend         - Deferral ledger storage (file, sqlite)`,
		DisableFlagsInUseLine: true,
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd(), newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Println("# nudge configuration")
			fmt.Printf("# Location: %s\n\n", resolveConfigPath())
			os.Stdout.Write(data)
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(map[string]any{"valid": true})
			}
			fmt.Println(color.Success(newPrinter(cfg.Language).Sprintf("Configuration valid")))
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var (
		deadline string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.Default()
			if deadline != "" {
				t, err := time.Parse(time.RFC3339, deadline)
				if err != nil {
					return fmt.Errorf("parse --deadline: %w", err)
				}
				cfg.Deadline = t
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&deadline, "deadline", "", "required update deadline (RFC 3339)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
