package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v2"

	"grimm.is/speedctl/internal/audit"
	"grimm.is/speedctl/internal/brand"
	"grimm.is/speedctl/internal/client"
	"grimm.is/speedctl/internal/ctlplane"
	"grimm.is/speedctl/internal/dispatch"
	"grimm.is/speedctl/internal/operation"
)

// Exit codes for invoke.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitUnavailable = 3
	ExitWorkerError = 4
)

// Output formats accepted by invoke -o.
const (
	OutputRaw  = "raw"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// InvokeOptions describes one command line invocation.
type InvokeOptions struct {
	Operation string
	Args      []string
	Output    string
}

// ExitCode maps a dispatch error onto a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case dispatch.IsCallerError(err):
		return ExitUsage
	case errors.Is(err, dispatch.ErrWorkerUnavailable):
		return ExitUnavailable
	case errors.Is(err, dispatch.ErrWorkerFailed):
		return ExitWorkerError
	default:
		return ExitFailure
	}
}

// RunInvoke parses argv, dispatches one operation through the control plane
// and writes the worker's reply to stdout. It returns the exit code.
func RunInvoke(argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("invoke", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", brand.DefaultConfigPath(), "Configuration file")
	socket := fs.String("socket", "", "Control plane socket (overrides config)")
	remote := fs.String("remote", "", "Invoke through a speedctl API at this URL instead of the socket")
	output := fs.String("o", OutputRaw, "Output format: raw, json or yaml")
	fs.Usage = func() {
		Printer.Fprintf(stderr, "Usage: %s invoke [-o raw|json|yaml] [-socket path | -remote url] <operation> [serverid]\n", brand.BinaryName)
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		return ExitUsage
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return ExitUsage
	}

	opts := InvokeOptions{Operation: fs.Arg(0), Args: fs.Args()[1:], Output: *output}

	if *remote != "" {
		// The remote server keeps its own audit trail.
		err := invokeRemote(client.NewHTTPClient(*remote), opts, stdout)
		if err != nil {
			Printer.Fprintf(stderr, "Error: %v\n", err)
		}
		return ExitCode(err)
	}

	cfg, _, err := loadConfig(*configFile)
	if err != nil {
		Printer.Fprintf(stderr, "%v\n", err)
		return ExitFailure
	}
	if *socket != "" {
		cfg.ControlPlane.Socket = *socket
	}

	worker := ctlplane.NewLazyClient(cfg.ControlPlane.Socket)
	defer worker.Close()

	store, err := openAuditStore(cfg)
	if err != nil {
		// The trail is best effort for the CLI.
		Printer.Fprintf(stderr, "Warning: %v\n", err)
	}
	if store != nil {
		defer store.Close()
	}

	d := dispatch.New(operation.Default(), worker, dispatch.WithLogger(quietLogger(stderr)))
	err = invoke(d, store, opts, stdout)
	if err != nil {
		Printer.Fprintf(stderr, "Error: %v\n", err)
	}
	return ExitCode(err)
}

// invoke runs one operation through the local control plane.
func invoke(d *dispatch.Dispatcher, store *audit.Store, opts InvokeOptions, out io.Writer) error {
	if err := checkOutputFormat(opts.Output); err != nil {
		return err
	}

	args := make([]any, len(opts.Args))
	for i, a := range opts.Args {
		args[i] = a
	}

	res, err := d.Invoke(opts.Operation, args...)
	recordCLIAudit(store, opts, res, err)

	var payload string
	if res != nil {
		payload = res.Payload
	}
	return writeResult(out, payload, err, opts.Output)
}

// invokeRemote runs one operation through a speedctl API server.
func invokeRemote(c *client.HTTPClient, opts InvokeOptions, out io.Writer) error {
	if err := checkOutputFormat(opts.Output); err != nil {
		return err
	}
	payload, err := c.Invoke(opts.Operation, opts.Args...)
	return writeResult(out, payload, err, opts.Output)
}

func checkOutputFormat(format string) error {
	switch format {
	case "", OutputRaw, OutputJSON, OutputYAML:
		return nil
	}
	return fmt.Errorf("%w: unknown output format %q", dispatch.ErrInvalidArgument, format)
}

// writeResult prints the payload. A worker failure still prints the worker's
// payload before returning the error.
func writeResult(out io.Writer, payload string, err error, format string) error {
	var werr *dispatch.WorkerError
	switch {
	case err == nil:
		return writeFormatted(out, payload, format)
	case errors.As(err, &werr):
		if werr.Payload != "" {
			writeFormatted(out, werr.Payload, format)
		}
	}
	return err
}

func recordCLIAudit(store *audit.Store, opts InvokeOptions, res *dispatch.Result, err error) {
	if store == nil {
		return
	}
	rec := audit.Record{
		Operation: opts.Operation,
		Args:      opts.Args,
		Outcome:   dispatch.Outcome(err),
		Source:    "cli",
	}
	if res != nil {
		rec.Args = res.Args
		rec.Duration = res.Duration
		rec.PayloadLen = len(res.Payload)
	}
	if err != nil {
		rec.Error = err.Error()
	}
	store.Write(rec)
}

// writeFormatted renders payload. Non-JSON payloads are always written raw.
func writeFormatted(out io.Writer, payload, format string) error {
	data := []byte(payload)
	if format == "" || format == OutputRaw || !json.Valid(data) {
		_, err := io.WriteString(out, ensureNewline(payload))
		return err
	}

	switch format {
	case OutputJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err := out.Write(buf.Bytes())
		return err

	case OutputYAML:
		doc, err := jsonToYAML(data)
		if err != nil {
			return err
		}
		_, err = out.Write(doc)
		return err
	}
	return nil
}

// jsonToYAML keeps object key order at every depth. JSON is valid YAML, and
// once yaml.v2 decodes a mapping into a MapSlice every mapping below it,
// including those inside arrays, becomes a MapSlice too. Wrapping the payload
// in a one-key document extends that to top-level arrays.
func jsonToYAML(data []byte) ([]byte, error) {
	var doc yaml.MapSlice
	wrapped := append(append([]byte(`{"v": `), bytes.TrimSpace(data)...), '}')
	if err := yaml.Unmarshal(wrapped, &doc); err != nil {
		return nil, fmt.Errorf("convert payload to yaml: %w", err)
	}
	if len(doc) != 1 {
		return nil, errors.New("convert payload to yaml: unexpected document shape")
	}
	return yaml.Marshal(doc[0].Value)
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
