package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/volantvm/mavproxy/internal/mavproxy/app"
	"github.com/volantvm/mavproxy/internal/mavproxy/config"
	"github.com/volantvm/mavproxy/internal/mavproxy/endpoints"
	"github.com/volantvm/mavproxy/internal/mavproxy/eventbus/memory"
	"github.com/volantvm/mavproxy/internal/mavproxy/httpapi"
	"github.com/volantvm/mavproxy/internal/mavproxy/manager"
	"github.com/volantvm/mavproxy/internal/mavproxy/router"
	"github.com/volantvm/mavproxy/internal/mavproxy/supervisor"
	"github.com/volantvm/mavproxy/internal/shared/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		logging.New("mavproxyd").Error("mavproxyd exit", "error", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := config.LoadEnvFile(); err != nil {
		return err
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewWithLevel(os.Stdout, "mavproxyd", cfg.LogLevel)

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("ensure state dir %s: %w", cfg.StateDir, err)
	}
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("ensure log dir %s: %w", cfg.LogDir, err)
	}

	var store endpoints.Store
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := endpoints.OpenSQLite(ctx, cfg.StorePath)
		if err != nil {
			return fmt.Errorf("init endpoint store: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn("close endpoint store", "error", err)
			}
		}()
		store = db
	case config.StoreMemory:
		store = endpoints.NewMemoryStore()
	default:
		fs, err := endpoints.NewFileStore(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("init endpoint store: %w", err)
		}
		store = fs
	}

	registry := router.NewRegistry(router.Options{
		LogDir:      cfg.LogDir,
		SearchPaths: cfg.SearchPaths,
		Logger:      logger,
	})
	for name, path := range cfg.BinaryPaths {
		if err := registry.SetBinaryPath(name, path); err != nil {
			return fmt.Errorf("configure %s binary: %w", name, err)
		}
	}

	bus := memory.New()
	mgr, err := manager.New(manager.Params{
		Registry: registry,
		Store:    store,
		Launcher: supervisor.New(supervisor.Options{
			OutputDir:   cfg.OutputDir,
			StopTimeout: cfg.StopTimeout,
			Logger:      logger,
		}),
		Bus:       bus,
		Logger:    logger,
		Master:    cfg.Master,
		Preferred: cfg.Router,
	})
	if err != nil {
		return fmt.Errorf("init manager: %w", err)
	}

	handler := httpapi.New(mgr, bus, logger)
	daemon := app.New(cfg, logger, mgr, handler)

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete", "addr", cfg.HTTPListen)
	return nil
}
