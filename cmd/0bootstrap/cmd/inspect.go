package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/service/inspector"
)

// newInspectCommand prints the customizations embedded in a bootstrapper.
func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the configuration, resources and version strings of a bootstrapper",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return apperr.InvalidArguments("arguments", err)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspector.Run(cmd.Context(), &inspector.Options{
				Path: args[0],
				Out:  cmd.OutOrStdout(),
			})
		},
	}
}
