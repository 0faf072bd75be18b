// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/opentablerpg/otrpg/internal/api"
	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/config"
	"github.com/opentablerpg/otrpg/internal/invite"
	"github.com/opentablerpg/otrpg/internal/lobby"
	"github.com/opentablerpg/otrpg/internal/logging"
	"github.com/opentablerpg/otrpg/internal/observability"
	"github.com/opentablerpg/otrpg/internal/xdg"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

const (
	serviceName     = "otrpg"
	shutdownTimeout = 10 * time.Second
)

// serveDeps holds injectable dependencies for the serve command.
// Nil fields use their defaults.
type serveDeps struct {
	// LogOutput receives the process log. Default: os.Stderr
	LogOutput io.Writer

	// OnReady is called with the bound API and metrics addresses once both
	// listeners accept connections.
	OnReady func(apiAddr, metricsAddr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API together with the metrics and health check
listener. Configuration comes from flag defaults, the --config file
($XDG_CONFIG_HOME/otrpg/config.yaml when present), and explicitly set
flags, in that order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFile
			if path == "" {
				var err error
				if path, err = xdg.ExistingConfigFile(os.Getenv); err != nil {
					return err
				}
			}
			cfg, err := config.Load(cmd.Flags(), path, os.Getenv)
			if err != nil {
				return oops.With("operation", "load configuration").Wrap(err)
			}
			return runServe(cmd.Context(), cfg, autoMigrate, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "apply pending migrations before serving")

	return cmd
}

// runServe wires the services and blocks until ctx is cancelled, a signal
// arrives, or a listener fails.
func runServe(ctx context.Context, cfg *config.Config, autoMigrate bool, deps *serveDeps) error {
	if deps == nil {
		deps = &serveDeps{}
	}
	if deps.LogOutput == nil {
		deps.LogOutput = os.Stderr
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, deps.LogOutput)
	slog.SetDefault(logger)

	logger.Info("starting server",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"store", cfg.Store,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, err := openBackend(ctx, cfg, autoMigrate, logger)
	if err != nil {
		errutil.LogError(logger, "failed to open store", err)
		return err
	}
	defer b.close()

	obsServer := observability.NewServer(cfg.Metrics.Addr, b.ping, logger)
	router, err := buildRouter(cfg, b, obsServer.Metrics(), logger)
	if err != nil {
		return err
	}

	obsErrChan, err := obsServer.Start()
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)

	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErrChan := make(chan error, 1)
	go func() {
		defer close(httpErrChan)
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrChan <- serveErr
		}
	}()
	go monitorServerErrors(ctx, cancel, httpErrChan, "http", logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("server ready", "http_addr", listener.Addr().String(), "metrics_addr", obsServer.Addr())
	if deps.OnReady != nil {
		deps.OnReady(listener.Addr().String(), obsServer.Addr())
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	stopObservability(obsServer, logger)

	logger.Info("shutdown complete")
	return nil
}

func buildRouter(cfg *config.Config, b *backend, metrics *observability.Metrics, logger *slog.Logger) (http.Handler, error) {
	authSvc, err := auth.NewService(b.accounts, b.sessions, auth.NewArgon2idHasher(),
		auth.WithSessionTTL(cfg.Session.TTL), auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	lobbySvc, err := lobby.NewService(b.lobbies, b.members, b.tx, lobby.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	inviteSvc, err := invite.NewService(lobbySvc, b.accounts, b.members, b.invites, b.tx,
		invite.WithBaseURL(cfg.Invite.BaseURL), invite.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	handler, err := api.New(authSvc, lobbySvc, inviteSvc, api.Options{
		CookieName:   cfg.Session.CookieName,
		CookieSecure: cfg.Session.CookieSecure,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		return nil, err
	}
	return handler.Router(), nil
}

func stopObservability(s *observability.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It returns
// when errCh yields or closes, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
