package main

import (
	"context"
	"fmt"
	"os"

	"github.com/taskchat/taskchat/internal/api"
	"github.com/taskchat/taskchat/internal/auth"
	"github.com/taskchat/taskchat/internal/config"
	"github.com/taskchat/taskchat/internal/directory"
	"github.com/taskchat/taskchat/internal/dispatch"
	"github.com/taskchat/taskchat/internal/localstate"
	"github.com/taskchat/taskchat/internal/observability"
	"github.com/taskchat/taskchat/internal/security"
	"github.com/taskchat/taskchat/internal/storage"
	"github.com/taskchat/taskchat/internal/widget"
)

// app holds every subsystem of one command invocation.
type app struct {
	cfg       *config.Config
	log       *observability.Logger
	logFile   *os.File
	metrics   *observability.MetricsCollector
	store     *storage.SQLiteStore
	vault     *localstate.Vault
	selection *localstate.Selection
	guard     *auth.Guard
	client    *api.Client
	dir       *directory.Directory
	widget    *widget.Widget
}

// bootstrap opens local state and wires the chat stack. Nothing here talks
// to the backend.
func bootstrap(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	logFile, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	log := observability.NewLoggerLevel(appName, logFile, observability.ParseLevel(cfg.LogLevel))

	store, err := storage.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("local state: %w", err)
	}

	var enc *security.Encryptor
	if cfg.CredentialKey != "" {
		enc, err = security.NewEncryptor(cfg.CredentialKey)
		if err != nil {
			store.Close()
			logFile.Close()
			return nil, err
		}
	}
	vault := localstate.NewVault(store, enc)
	metrics := observability.NewMetricsCollector(1000)

	guard := auth.NewGuard(vault, func() {
		log.Warn("session expired, credentials cleared")
	}, log.Component("auth"), metrics)

	client := api.NewClient(cfg.BaseURL, vault,
		api.WithTimeout(cfg.Timeout),
		api.WithLogger(log.Component("api")),
	)
	dir := directory.New(client, guard, log.Component("directory"), metrics)
	disp := dispatch.New(client, guard, log.Component("dispatch"), metrics)

	profile, err := vault.Profile(ctx)
	if err != nil {
		log.Warn("failed to read profile", "error", err)
	}

	selection := localstate.NewSelection(store)
	w := widget.New(ctx, widget.Deps{
		Directory:  dir,
		Dispatcher: disp,
		Selection:  selection,
		UserName:   profile.DisplayName(),
		Logger:     log.Component("widget"),
		Metrics:    metrics,
	})

	log.Info("started", "version", version, "base_url", cfg.BaseURL, "data_dir", cfg.DataDir, "encrypted", enc != nil)
	return &app{
		cfg:       cfg,
		log:       log,
		logFile:   logFile,
		metrics:   metrics,
		store:     store,
		vault:     vault,
		selection: selection,
		guard:     guard,
		client:    client,
		dir:       dir,
		widget:    w,
	}, nil
}

// Close flushes metrics to the log and releases local state.
func (a *app) Close() error {
	a.metrics.LogSummary(a.log)
	err := a.store.Close()
	if cerr := a.logFile.Close(); err == nil {
		err = cerr
	}
	return err
}

// withApp loads config, bootstraps and runs fn, closing the app afterwards.
func withApp(ctx context.Context, flags *globalFlags, fn func(*app) error) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	a, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
