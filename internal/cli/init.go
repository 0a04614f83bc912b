package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/scoped-eventstore-go/internal/storefactory"
)

// NewInitCommand creates the init command.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the events table and its indexes",
		Long: `Create the events table and its indexes if they do not exist yet.

Running init again is a no-op.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd.Context(), func(store *storefactory.Store) error {
				if err := store.InitializeDatabase(cmd.Context()); err != nil {
					return WrapExitError(ExitFailure, "initializing the database failed", err)
				}

				_, err := fmt.Fprintf(cmd.OutOrStdout(), "initialized table %q (%s)\n", opts.Config.Table, store.Dialect())
				return err
			})
		},
	}
}
