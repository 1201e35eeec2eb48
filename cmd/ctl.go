package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/speedctl/internal/config"
	"grimm.is/speedctl/internal/ctlplane"
	"grimm.is/speedctl/internal/logging"
	"grimm.is/speedctl/internal/operation"
)

// loadConfig reads configFile (defaults when it does not exist) and validates
// it against the operation registry. Warnings are returned, not printed.
func loadConfig(configFile string) (*config.Config, config.ValidationErrors, error) {
	cfg, err := config.LoadOrDefault(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	verrs := cfg.Validate(operation.Default())
	if verrs.HasErrors() {
		return nil, nil, fmt.Errorf("configuration invalid: %w", verrs)
	}
	return cfg, verrs.Warnings(), nil
}

// RunCtl runs the privileged control plane until SIGINT or SIGTERM.
// SIGHUP reloads the action table and log level.
func RunCtl(configFile string) error {
	cfg, warnings, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	_, cleanup := setupLogging(cfg, "ctl")
	defer cleanup()

	for _, w := range warnings {
		logging.Warn("Configuration warning", "field", w.Field, "message", w.Message)
	}

	server := ctlplane.NewServer(cfg)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	return runCtlEventLoop(configFile, server)
}

// runCtlEventLoop handles signals for the control plane process.
func runCtlEventLoop(configFile string, server *ctlplane.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			logging.Info("Received SIGHUP, reloading configuration...")
			cfg, _, err := loadConfig(configFile)
			if err != nil {
				logging.Error("Failed to reload configuration", "error", err)
				continue
			}
			server.Reload(cfg)
			applyLogLevel(cfg)

		case os.Interrupt, syscall.SIGTERM:
			logging.Info("Received signal, shutting down...", "signal", sig)
			return server.Stop()
		}
	}
	return nil
}
