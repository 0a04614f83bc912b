package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/scoped-eventstore-go/internal/config"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/httpapi"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/storefactory"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/telemetry"
)

const (
	readHeaderTimeout = 5 * time.Second

	logMsgServerStarted  = "http server started"
	logMsgServerStopping = "http server stopping"
	logAttrAddr          = "addr"
	logAttrBackend       = "backend"
	logAttrTelemetry     = "telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	InitSchema bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API until SIGINT or SIGTERM.

  GET  /health
  POST /v1/events/query
  POST /v1/events
  GET  /v1/events/stream   (server-sent events)

Traces, metrics, and logs are exported over OTLP gRPC when telemetry.enabled is set.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(opts, cmd)
		},
	}

	cmd.Flags().String("addr", config.DefaultHTTPAddr, "listen address")
	cmd.Flags().BoolVar(&opts.InitSchema, "init-schema", false, "create the events table before serving")
	rootOpts.bindFlags(cmd.Flags(), map[string]string{config.KeyHTTPAddr: "addr"})

	return cmd
}

func serve(opts *ServeOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Setup(ctx, opts.Config.Telemetry)
	if err != nil {
		return WrapExitError(ExitFailure, "setting up telemetry failed", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.Config.HTTP.ShutdownTimeout)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	return opts.withStore(ctx, func(store *storefactory.Store) error {
		if opts.InitSchema {
			if err := store.InitializeDatabase(ctx); err != nil {
				return WrapExitError(ExitFailure, "initializing the database failed", err)
			}
		}

		router := httpapi.NewRouter(store, opts.Logger, httpapi.WithStreamBuffer(opts.Config.HTTP.StreamBuffer))

		server := &http.Server{
			Addr:              opts.Config.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		return runServer(ctx, opts.RootOptions, server)
	}, providers.EngineOptions()...)
}

// runServer serves until ctx is done and then shuts the server down gracefully.
// Request contexts derive from ctx, so open event streams end with it.
func runServer(ctx context.Context, opts *RootOptions, server *http.Server) error {
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return WrapExitError(ExitFailure, "listening failed", err)
	}

	opts.Logger.InfoContext(ctx, logMsgServerStarted,
		logAttrAddr, listener.Addr().String(),
		logAttrBackend, opts.Config.Backend,
		logAttrTelemetry, opts.Config.Telemetry.Enabled,
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "serving failed", err)
		}
		return nil

	case <-ctx.Done():
	}

	opts.Logger.InfoContext(ctx, logMsgServerStopping, logAttrAddr, listener.Addr().String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.Config.HTTP.ShutdownTimeout)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutting down the http server failed", err)
	}

	return nil
}
