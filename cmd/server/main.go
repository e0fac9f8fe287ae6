package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrhapile/dotnet-bridge/internal/logging"
	"github.com/mrhapile/dotnet-bridge/internal/options"
	"github.com/mrhapile/dotnet-bridge/runtime"
)

const description = `Serve a hosted .NET payload over HTTP.

Endpoints:
  POST /process  raw request body in, raw response text out
  POST /route    {"controller": "...", "action": "...", "data": ...}
  GET  /healthz

Examples:
  # Payload in ./dotnet next to the binary
  dotnet-bridge-server

  # Payload elsewhere, explicit .NET root
  dotnet-bridge-server --payload.dir=/srv/payload --hostfxr.dotnet-root=/usr/share/dotnet

  # Use config file
  dotnet-bridge-server -c /etc/dotnet-bridge/server.yaml`

func newCommand() *cobra.Command {
	opts := options.New()
	var configFile string

	cmd := &cobra.Command{
		Use:          "dotnet-bridge-server",
		Short:        "Serve a hosted .NET payload over HTTP",
		Long:         description,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.Load(cmd.Flags(), configFile); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	opts.AddFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, opts *options.Options) error {
	log, err := logging.Init(opts.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	layout, err := opts.Layout()
	if err != nil {
		return fmt.Errorf("failed to resolve payload: %w", err)
	}

	// Boot failures are fatal for the server: there is nothing to serve.
	host, err := runtime.Open(layout, opts.RuntimeOptions()...)
	if err != nil {
		return fmt.Errorf("failed to start .NET host: %w", err)
	}
	defer host.Close()

	if !opts.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := NewServer(host.Bridge(), opts.HTTP.MaxBody, log.Named("http"))
	httpServer := &http.Server{
		Addr:              opts.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server",
			zap.String("addr", opts.HTTP.Addr),
			zap.String("payload", host.Layout().Dir))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
