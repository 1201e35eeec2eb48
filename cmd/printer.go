// Package cmd implements the speedctl subcommands.
package cmd

import (
	"grimm.is/speedctl/internal/i18n"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()
