// Package dispatch validates operation requests and forwards them to the
// privileged worker.
//
// # Request Flow
//
//	Invoke(name, args...) → Registry.Lookup → Prepare (arity + coercion)
//	  → Worker.RunCommand / Worker.RunCommandWithArgs → Result
//
// The dispatcher holds no mutable state. Each Invoke makes exactly one worker
// call and never retries; reconnect and timeout policy belong to the Worker
// implementation (see internal/ctlplane). Worker output is returned as-is.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"grimm.is/speedctl/internal/clock"
	"grimm.is/speedctl/internal/logging"
	"grimm.is/speedctl/internal/operation"
)

// Worker executes commands on behalf of the dispatcher.
//
// Implementations return ErrWorkerUnavailable (wrapped) when the worker
// cannot be reached and a *WorkerError when the command ran and failed.
type Worker interface {
	RunCommand(command string) (string, error)
	RunCommandWithArgs(command string, args []string) (string, error)
}

// Invocation is a validated request ready to be sent to the worker.
type Invocation struct {
	Operation string
	Command   string
	// Args is nil for simple operations.
	Args []string
}

// Parameterized reports whether the invocation carries an argument vector.
func (inv Invocation) Parameterized() bool {
	return inv.Args != nil
}

// Result is the worker's response to one invocation.
type Result struct {
	Invocation
	Payload  string
	Duration time.Duration
}

// ObserverFunc is called once per Invoke with the operation name (as given by
// the caller), the outcome label and the elapsed time.
type ObserverFunc func(operation, outcome string, elapsed time.Duration)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver registers a hook for metrics.
func WithObserver(fn ObserverFunc) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// WithClock overrides the time source used for Result.Duration.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// Dispatcher maps operation requests onto worker calls.
type Dispatcher struct {
	registry *operation.Registry
	worker   Worker
	logger   *logging.Logger
	observe  ObserverFunc
	clock    clock.Clock
}

// New creates a dispatcher. A nil registry uses operation.Default().
func New(registry *operation.Registry, worker Worker, opts ...Option) *Dispatcher {
	if registry == nil {
		registry = operation.Default()
	}
	d := &Dispatcher{
		registry: registry,
		worker:   worker,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.WithComponent("dispatch")
	}
	return d
}

// Registry returns the registry the dispatcher validates against.
func (d *Dispatcher) Registry() *operation.Registry {
	return d.registry
}

// Prepare validates args against the named operation and serializes them
// into the worker's invocation form. It does not contact the worker.
func (d *Dispatcher) Prepare(name string, args ...any) (Invocation, error) {
	op, err := d.registry.Lookup(name)
	if err != nil {
		return Invocation{}, err
	}

	inv := Invocation{Operation: op.Name, Command: op.Command}

	switch op.Sync {
	case operation.SyncSimple:
		if len(args) != 0 {
			return Invocation{}, fmt.Errorf("%w: %s takes no arguments, got %d", ErrArgumentMismatch, op.Name, len(args))
		}
		return inv, nil

	case operation.SyncParameterized:
		if len(args) > op.Arity() {
			return Invocation{}, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrArgumentMismatch, op.Name, op.Arity(), len(args))
		}
		inv.Args = make([]string, op.Arity())
		for i, p := range op.Params {
			value := p.Default
			if i < len(args) {
				v, err := coerce(p, args[i])
				if err != nil {
					return Invocation{}, fmt.Errorf("%w: %s %s: %v", ErrInvalidArgument, op.Name, p.Name, err)
				}
				value = v
			}
			inv.Args[i] = strconv.FormatInt(value, 10)
		}
		return inv, nil
	}

	return Invocation{}, fmt.Errorf("operation %s has unsupported sync class %q", op.Name, op.Sync)
}

// Invoke validates the request, calls the worker once and returns its output.
func (d *Dispatcher) Invoke(name string, args ...any) (*Result, error) {
	start := d.clock.Now()
	res, err := d.invoke(name, args)
	elapsed := d.clock.Since(start)

	if d.observe != nil {
		d.observe(name, Outcome(err), elapsed)
	}
	if res != nil {
		res.Duration = elapsed
	}
	return res, err
}

func (d *Dispatcher) invoke(name string, args []any) (*Result, error) {
	inv, err := d.Prepare(name, args...)
	if err != nil {
		d.logger.Debug("Rejected request", "operation", name, "error", err)
		return nil, err
	}

	if d.worker == nil {
		return nil, fmt.Errorf("%w: no worker configured", ErrWorkerUnavailable)
	}

	var payload string
	if inv.Parameterized() {
		payload, err = d.worker.RunCommandWithArgs(inv.Command, inv.Args)
	} else {
		payload, err = d.worker.RunCommand(inv.Command)
	}

	if err != nil {
		var werr *WorkerError
		if errors.As(err, &werr) {
			d.logger.Warn("Worker reported failure", "operation", inv.Operation, "exit_code", werr.ExitCode)
			return nil, werr
		}
		if !errors.Is(err, ErrWorkerUnavailable) {
			err = fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
		}
		d.logger.Error("Worker unavailable", "operation", inv.Operation, "error", err)
		return nil, err
	}

	d.logger.Debug("Invocation complete", "operation", inv.Operation, "bytes", len(payload))
	return &Result{Invocation: inv, Payload: payload}, nil
}

// coerce converts a caller-supplied value to the parameter's declared kind.
func coerce(p operation.Param, v any) (int64, error) {
	if p.Kind != operation.KindUint {
		return 0, fmt.Errorf("unsupported parameter kind %q", p.Kind)
	}

	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, fmt.Errorf("%d is out of range", x)
		}
		n = int64(x)
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%d is out of range", x)
		}
		n = int64(x)
	case float32:
		return coerceFloat(float64(x))
	case float64:
		return coerceFloat(x)
	case json.Number:
		return coerceString(string(x))
	case string:
		return coerceString(x)
	case nil:
		return 0, errors.New("value is missing")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}

	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return n, nil
}

func coerceString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("value is empty")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return n, nil
}

func coerceFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	if f < 0 {
		return 0, fmt.Errorf("%v is negative", f)
	}
	if f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v is out of range", f)
	}
	return int64(f), nil
}
