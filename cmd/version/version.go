package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/racephotos/bibfinder/internal/app"
)

// Command prints build metadata.
func Command(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "bibfinder %s (built %s)\n",
				ctx.Build.GetVersion(), ctx.Build.GetBuildDate())
			return err
		},
	}
}
