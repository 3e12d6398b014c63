package cmd

import (
	"fmt"

	"github.com/luxfi/erc20-processor/pkg/application"
	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command
func NewVersionCmd(app *application.Processor) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(app.Stdout, "erc20_processor %s\n", versionString())
			return err
		},
	}
}
