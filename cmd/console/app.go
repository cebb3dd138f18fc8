package main

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/apiclient"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/definition"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/session"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *observability.Metrics
	store      session.TokenStore
	closeStore func() error
	sess       *session.Session
	client     *apiclient.Client
	defs       *definition.Registry
}

type appOptions struct {
	navigator  session.Navigator
	registerer prometheus.Registerer // nil disables metrics
	logger     *zap.Logger           // nil builds the JSON service logger
}

// newApp loads configuration and page definitions and opens the session.
func newApp(v *viper.Viper, opts appOptions) (*app, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, err
	}

	logger := opts.logger
	if logger == nil {
		logger, err = observability.NewLogger(cfg.Observability)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}

	var metrics *observability.Metrics
	if opts.registerer != nil {
		metrics = observability.InitMetrics(opts.registerer)
	}

	store, closeStore, err := session.OpenStore(cfg.Session)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		store:      store,
		closeStore: closeStore,
	}

	defs, err := a.loadDefinitions()
	if err != nil {
		closeStore()
		return nil, err
	}
	a.defs = definition.NewRegistry(defs)
	metrics.SetDefinitionsLoaded(float64(a.defs.Count()))

	a.sess = session.New(store, opts.navigator, session.Options{
		LoginRoute: cfg.Session.LoginRoute,
		Logger:     logger,
		Metrics:    metrics,
	})
	a.client = apiclient.New(cfg.API, a.sess,
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(metrics),
	)
	return a, nil
}

// loadDefinitions reads and validates every definition file. Validation
// errors are logged one by one before failing.
func (a *app) loadDefinitions() ([]model.DefinitionFile, error) {
	defs, err := definition.NewLoader(a.cfg.Entity, a.logger).LoadAll(a.cfg.Definitions.Directories)
	if err != nil {
		return nil, fmt.Errorf("loading definitions: %w", err)
	}
	if verrs := definition.NewValidator().Validate(defs); len(verrs) > 0 {
		for _, ve := range verrs {
			a.logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		return nil, fmt.Errorf("definition validation failed with %d errors", len(verrs))
	}
	return defs, nil
}

// reloadDefinitions swaps in freshly loaded definitions. On failure the
// current definitions stay active.
func (a *app) reloadDefinitions() error {
	defs, err := a.loadDefinitions()
	if err != nil {
		a.metrics.RecordDefinitionReload("failure")
		return err
	}
	a.defs.Replace(defs)
	a.metrics.RecordDefinitionReload("success")
	a.metrics.SetDefinitionsLoaded(float64(a.defs.Count()))
	a.logger.Info("definitions reloaded",
		zap.Int("pages", a.defs.Count()),
		zap.String("checksum", a.defs.Checksum()),
	)
	return nil
}

// page returns the definition for a page id.
func (a *app) page(id string) (model.PageDefinition, error) {
	def, ok := a.defs.GetPage(id)
	if !ok {
		return model.PageDefinition{}, model.NewNotFoundError(fmt.Sprintf("unknown page %q", id))
	}
	return def, nil
}

// tokenStoreChecker returns the store as a readiness check when it supports
// one.
func (a *app) tokenStoreChecker() observability.HealthChecker {
	if hc, ok := a.store.(observability.HealthChecker); ok {
		return hc
	}
	return nil
}

func (a *app) close() {
	if err := a.closeStore(); err != nil {
		a.logger.Warn("closing token store", zap.Error(err))
	}
	a.logger.Sync()
}

// consoleLogger writes human-readable logs for one-shot commands so that
// stdout stays free for command output.
func consoleLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level))
}

// withTimeout bounds a one-shot command by the backend timeout plus a margin
// for file handling.
func withTimeout(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.API.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, 2*cfg.API.Timeout)
}
