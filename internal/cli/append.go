package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/scoped-eventstore-go/internal/storefactory"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/wire"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	EventType string
	Payload   string
	Scope     string
	Expected  uint64
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append one event",
		Long: `Append one event, optionally guarded by a scope.

With --scope, the append only succeeds if the max sequence number of the events
matching the scope is still --expected, otherwise it exits with code 3.

Example:
  eventstore append --type BookCopyLentToReader \
    --payload '{"BookID":"b1","ReaderID":"r1"}' \
    --scope '{"filters":[{"payloadPredicates":[{"BookID":"b1"}]}]}' \
    --expected 4`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return appendEvent(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EventType, "type", "", "event type (required)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "event payload as JSON")
	cmd.Flags().StringVar(&opts.Scope, "scope", "", `append scope as a query document, e.g. '{"filters":[...]}'`)
	cmd.Flags().Uint64Var(&opts.Expected, "expected", 0, "expected max sequence number of the scope")

	return cmd
}

func appendEvent(opts *AppendOptions, cmd *cobra.Command) error {
	req := wire.AppendRequest{
		Events: []wire.Event{{EventType: opts.EventType, Payload: json.RawMessage(opts.Payload)}},
	}

	if opts.Scope != "" {
		scope, err := wire.DecodeQueryRequest([]byte(opts.Scope))
		if err != nil {
			return exitErrorFor("invalid --scope", err)
		}
		req.Scope = &scope
	}

	if cmd.Flags().Changed("expected") {
		req.ExpectedMaxSequenceNumber = &opts.Expected
	}

	events, err := req.BuildEvents()
	if err != nil {
		return exitErrorFor("invalid event", err)
	}

	scope, err := req.AppendScope()
	if err != nil {
		return exitErrorFor("invalid --scope", err)
	}

	return opts.withStore(cmd.Context(), func(store *storefactory.Store) error {
		if err := store.Append(cmd.Context(), scope, events...); err != nil {
			return exitErrorFor("appending failed", err)
		}

		_, err := fmt.Fprintf(cmd.OutOrStdout(), "appended %d event(s)\n", len(events))
		return err
	})
}
