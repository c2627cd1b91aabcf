package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/roach88/offlineq/internal/analytics"
	"github.com/roach88/offlineq/internal/api"
)

// ShutdownTimeout bounds the HTTP server's graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue daemon and its HTTP API",
		Long: `Run the offline queue until interrupted.

The queue follows the configured connectivity source and replays pending
mutations against remote.base_url whenever the connection returns. The HTTP
API reports status, accepts new mutations and analytics events, and lets
operators flip a manual connectivity source.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *RootOptions, addr string) error {
	f := opts.formatter(cmd)
	logger := opts.logger()

	cfg, err := loadConfig(opts)
	if err != nil {
		return fail(f, err)
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := openApp(ctx, cfg, logger, configured)
	if err != nil {
		return fail(f, err)
	}
	defer a.Close()

	handled, err := a.registerRemote()
	if err != nil {
		return fail(f, err)
	}
	if handled == nil {
		logger.Warn("remote.base_url not set, mutations follow the missing handler policy",
			"policy", cfg.Queue.MissingHandler)
	}

	an, err := a.newAnalytics()
	if err != nil {
		return fail(f, err)
	}
	if err := a.start(ctx); err != nil {
		return fail(f, err)
	}
	if err := an.Initialize(ctx); err != nil {
		return fail(f, WrapExitError(ExitCommandError, CodeConfig, err))
	}

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &api.Server{Queue: a.queue, Manual: a.manual, Analytics: an, Logger: logger}
	httpSrv := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fail(f, WrapExitError(ExitCommandError, CodeNetwork, err))
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(ln)
	}()

	logger.Info("offline queue serving", "addr", ln.Addr().String(), "pending", a.queue.PendingCount(),
		"online", a.queue.IsOnline())
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fail(f, WrapExitError(ExitFailure, CodeNetwork, err))
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	if p, ok := an.Provider().(*analytics.OfflineProvider); ok {
		p.Wait()
	}

	logger.Info("offline queue stopped", "pending", a.queue.PendingCount())
	if err := a.Close(); err != nil {
		logger.Warn("close", "error", err)
	}
	return nil
}
