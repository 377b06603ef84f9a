package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nudge-project/nudge/pkg/color"
)

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Launch the software update now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.UpdateNow(cmd.Context()); err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(map[string]any{"launched": true})
			}
			fmt.Println(color.Success(newPrinter(client.Config().Language).Sprintf("Update launched")))
			return nil
		},
	}
}
