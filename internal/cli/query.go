package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/storefactory"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/wire"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Filter      string
	Output      string
	Consistency string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the events matching a query",
		Long: `Print the events matching a query, in insertion order, and their max sequence number.

Without --filter the whole log is printed, '{"filters":[]}' matches nothing.
With --consistency eventual the query may be served by the read replica (--replica-dsn).

Example:
  eventstore query --filter '{"filters":[{"eventTypes":["BookCopyLentToReader"],"payloadPredicates":[{"ReaderID":"r1"}]}]}' --output yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return queryEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", `query document, e.g. '{"filters":[...]}'`)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", OutputText, "output format (text|json|yaml)")
	cmd.Flags().StringVar(&opts.Consistency, "consistency", "strong", "where the query is served from (strong|eventual)")

	return cmd
}

func queryEvents(opts *QueryOptions, cmd *cobra.Command) error {
	if !isValidOutput(opts.Output) {
		return NewExitError(ExitUsage, fmt.Sprintf("invalid output %q: must be one of %v", opts.Output, ValidOutputs))
	}

	level, err := eventstore.ParseConsistencyLevel(opts.Consistency)
	if err != nil {
		return WrapExitError(ExitUsage, "invalid --consistency", err)
	}

	req, err := wire.DecodeQueryRequest([]byte(opts.Filter))
	if err != nil {
		return exitErrorFor("invalid --filter", err)
	}

	criteria, err := req.Criteria()
	if err != nil {
		return exitErrorFor("invalid --filter", err)
	}

	return opts.withStore(cmd.Context(), func(store *storefactory.Store) error {
		result, err := store.Query(eventstore.WithConsistency(cmd.Context(), level), criteria)
		if err != nil {
			return exitErrorFor("querying failed", err)
		}

		if err = writeQueryResponse(cmd.OutOrStdout(), opts.Output, wire.FromQueryResult(result)); err != nil {
			return WrapExitError(ExitFailure, "writing the output failed", err)
		}

		return nil
	})
}
