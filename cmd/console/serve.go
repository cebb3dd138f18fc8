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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/page"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/session"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/transport"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local UI backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	cmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	return cmd
}

func runServe(parent context.Context, v *viper.Viper) error {
	observability.Version = version
	observability.Commit = commit

	nav := &session.RecordingNavigator{}
	a, err := newApp(v, appOptions{navigator: nav, registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	logger := a.logger
	if port := v.GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "school-console", version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	pages := page.NewRegistry(a.defs, page.Deps{
		API:           a.client,
		Entity:        cfg.Entity,
		Transfer:      cfg.Transfer,
		Notifications: cfg.Notifications,
		Logger:        logger,
		Metrics:       a.metrics,
	})

	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     a.metrics,
		Auth:        a.client,
		Session:     a.sess,
		Navigator:   nav,
		Definitions: a.defs,
		Pages:       pages,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return a.defs.Count() > 0 },
			SchoolAPI:         a.client,
			TokenStore:        a.tokenStoreChecker(),
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// SIGHUP reloads page definitions. Open pages keep the definition they
	// were opened with until they are reopened.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := a.reloadDefinitions(); err != nil {
					logger.Error("definition reload failed", zap.Error(err))
				}
			}
		}
	}()

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("api", cfg.API.BaseURL),
		zap.Int("pages", a.defs.Count()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return err
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Stops pending debounces and auto-close timers.
	pages.CloseAll()

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
