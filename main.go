package main

import (
	"flag"
	"os"

	"grimm.is/speedctl/cmd"
	"grimm.is/speedctl/internal/brand"
	"grimm.is/speedctl/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	defaultConfig := brand.DefaultConfigPath()

	switch os.Args[1] {
	case "ctl":
		// Privileged control plane (runs as root)
		ctlFlags := flag.NewFlagSet("ctl", flag.ExitOnError)
		configFile := ctlFlags.String("config", defaultConfig, "Configuration file")
		ctlFlags.StringVar(configFile, "c", defaultConfig, "Configuration file (short)")
		ctlFlags.Parse(os.Args[2:])

		if err := cmd.RunCtl(*configFile); err != nil {
			printer.Fprintf(os.Stderr, "Control plane failed: %v\n", err)
			os.Exit(1)
		}

	case "api":
		// Unprivileged HTTP API
		apiFlags := flag.NewFlagSet("api", flag.ExitOnError)
		configFile := apiFlags.String("config", defaultConfig, "Configuration file")
		apiFlags.StringVar(configFile, "c", defaultConfig, "Configuration file (short)")
		listen := apiFlags.String("listen", "", "Listen address (overrides api.listen)")
		apiFlags.StringVar(listen, "l", "", "Listen address (short)")
		apiFlags.Parse(os.Args[2:])

		if err := cmd.RunAPI(*configFile, *listen); err != nil {
			printer.Fprintf(os.Stderr, "API server failed: %v\n", err)
			os.Exit(1)
		}

	case "invoke":
		os.Exit(cmd.RunInvoke(os.Args[2:], os.Stdout, os.Stderr))

	case "operations", "ops":
		if err := cmd.RunOperations(os.Stdout); err != nil {
			printer.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "status":
		statusFlags := flag.NewFlagSet("status", flag.ExitOnError)
		socket := statusFlags.String("socket", "", "Control plane socket")
		statusFlags.Parse(os.Args[2:])

		if err := cmd.RunStatus(*socket, os.Stdout); err != nil {
			printer.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Show the resolved action table")
		checkFlags.BoolVar(verbose, "v", false, "Verbose (short)")
		checkFlags.Parse(os.Args[2:])

		configFile := defaultConfig
		if checkFlags.NArg() > 0 {
			configFile = checkFlags.Arg(0)
		}
		if err := cmd.RunCheck(configFile, *verbose, os.Stdout); err != nil {
			printer.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "version":
		printer.Printf("%s version %s\n", brand.Name, brand.Version)
		printer.Printf("Build: %s\n", brand.BuildTime)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Daemons:
  ctl         Run the privileged control plane
              Options: --config (-c) <file>
  api         Run the HTTP API
              Options: --config (-c) <file>, --listen (-l) <addr>

Commands:
  invoke      Dispatch one operation through the control plane
              Options: -o raw|json|yaml, -socket <path>, -remote <url>, -config <file>
  operations  List registered operations (alias: ops)
  status      Show control plane status and actions
              Options: -socket <path>
  check       Validate a configuration file
              Options: --verbose (-v)
  version     Show version information

Examples:
  %s ctl -c %s
  %s invoke run 3417
  %s invoke -o yaml showstat
  %s check -v %s
`, brand.Name, brand.Description, brand.BinaryName,
		brand.BinaryName, brand.DefaultConfigPath(),
		brand.BinaryName, brand.BinaryName,
		brand.BinaryName, brand.DefaultConfigPath())
}
