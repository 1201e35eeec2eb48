package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"grimm.is/speedctl/internal/api"
	"grimm.is/speedctl/internal/audit"
	"grimm.is/speedctl/internal/brand"
	"grimm.is/speedctl/internal/config"
	"grimm.is/speedctl/internal/ctlplane"
	"grimm.is/speedctl/internal/dispatch"
	"grimm.is/speedctl/internal/health"
	"grimm.is/speedctl/internal/logging"
	"grimm.is/speedctl/internal/metrics"
	"grimm.is/speedctl/internal/operation"
)

const (
	statusPollInterval = 15 * time.Second
	auditPruneInterval = 6 * time.Hour
	shutdownTimeout    = 30 * time.Second
)

// openAuditStore opens the audit database when the audit block is enabled.
// It returns nil, nil when auditing is off.
func openAuditStore(cfg *config.Config) (*audit.Store, error) {
	if cfg.Audit == nil || !cfg.Audit.Enabled {
		return nil, nil
	}
	path := cfg.Audit.DatabasePath
	if path == "" {
		path = filepath.Join(brand.GetStateDir(), "audit.db")
	}
	store, err := audit.NewStore(path, cfg.Audit.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	return store, nil
}

// RunAPI runs the unprivileged HTTP API. listen overrides api.listen.
func RunAPI(configFile, listen string) error {
	cfg, warnings, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	logger, cleanup := setupLogging(cfg, "api")
	defer cleanup()

	for _, w := range warnings {
		logger.Warn("Configuration warning", "field", w.Field, "message", w.Message)
	}

	if listen == "" {
		listen = cfg.API.Listen
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := operation.Default()
	m := metrics.Get()
	m.SetKnownOperations(registry.Names())

	client := ctlplane.NewLazyClient(cfg.ControlPlane.Socket)
	defer client.Close()

	dispatcher := dispatch.New(registry, client,
		dispatch.WithObserver(m.ObserveInvocation),
		dispatch.WithLogger(logger.WithComponent("dispatch")),
	)

	store, err := openAuditStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		store.StartPruner(ctx, auditPruneInterval, logger.WithComponent("audit"))
	}

	collector := metrics.NewCollector(m, client, logger.WithComponent("metrics"), statusPollInterval)
	go collector.Start(ctx)
	defer collector.Stop()

	checker := health.NewChecker(brand.Version, 5*time.Second)
	checker.Register("control-plane", health.ControlPlaneCheck(collector.LastStatus, 2*statusPollInterval))
	if store != nil {
		checker.Register("audit", health.StoreCheck(store))
		checker.Register("state-dir", health.DirCheck(filepath.Dir(cfg.Audit.DatabasePath)))
	}

	server, err := api.NewServer(api.ServerOptions{
		Config:     cfg,
		Dispatcher: dispatcher,
		Client:     client,
		Audit:      store,
		Metrics:    m,
		Health:     checker,
		Logger:     logger.WithComponent("api"),
		AuditLog:   cfg.Audit != nil && cfg.Audit.Log,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(listen) }()

	return runAPIEventLoop(configFile, server, m, errCh)
}

// runAPIEventLoop handles signals for the API process.
func runAPIEventLoop(configFile string, server *api.Server, m *metrics.Registry, errCh <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logging.Info("Received SIGHUP, reloading log level...")
				cfg, _, err := loadConfig(configFile)
				m.RecordConfigReload(err)
				if err != nil {
					logging.Error("Failed to reload configuration", "error", err)
					continue
				}
				applyLogLevel(cfg)

			case os.Interrupt, syscall.SIGTERM:
				logging.Info("Received signal, shutting down...", "signal", sig)
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				err := server.Shutdown(ctx)
				cancel()
				if err != nil {
					return err
				}
				return <-errCh
			}
		}
	}
}
