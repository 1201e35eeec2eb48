package cmd

import (
	"fmt"
	"io"

	"grimm.is/speedctl/internal/brand"
	"grimm.is/speedctl/internal/config"
	"grimm.is/speedctl/internal/ctlplane"
	"grimm.is/speedctl/internal/operation"
)

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(configFile string, verbose bool, out io.Writer) error {
	if len(configFile) == 0 {
		return fmt.Errorf("usage: %s check [-v] <config-file>\nExample: %s check -v %s",
			brand.BinaryName, brand.BinaryName, brand.DefaultConfigPath())
	}

	result, err := config.LoadFileWithResult(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	cfg := result.Config

	verrs := cfg.Validate(operation.Default())
	for _, w := range result.Warnings {
		Printer.Fprintf(out, "%s %s\n", styleStatusWarn.Render("warning:"), w)
	}
	for _, w := range verrs.Warnings() {
		Printer.Fprintf(out, "%s %s\n", styleStatusWarn.Render("warning:"), w.Error())
	}
	if verrs.HasErrors() {
		return fmt.Errorf("configuration invalid: %w", verrs)
	}

	Printer.Fprintf(out, "%s\n", styleStatusGood.Render("Configuration valid!"))
	Printer.Fprintf(out, "Schema Version: %s\n", result.Version)
	Printer.Fprintf(out, "Listen:         %s\n", cfg.API.Listen)
	Printer.Fprintf(out, "Socket:         %s\n", cfg.ControlPlane.Socket)
	Printer.Fprintf(out, "Actions:        %d\n", len(cfg.Actions))
	Printer.Fprintf(out, "Audit:          %t\n", cfg.Audit.Enabled)

	if verbose {
		runner := ctlplane.NewActionRunner(cfg, quietLogger(io.Discard))
		Printer.Fprintln(out)
		_, err = io.WriteString(out, actionsTable(runner.List()).Render()+"\n")
		return err
	}
	return nil
}
