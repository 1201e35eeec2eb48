// Package operation holds the fixed table of speedtest control operations.
//
// Each [Operation] names one worker command and declares the arguments it
// accepts. The [Registry] is built once at startup and is read-only after
// that, so it can be shared by concurrent dispatchers without locking.
//
// Adding an operation is a data change: append an entry to builtin and the
// HTTP routes, CLI and dispatcher pick it up.
package operation

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownOperation is returned by Lookup for names that are not registered.
var ErrUnknownOperation = errors.New("unknown operation")

// Sync classifies how an operation is handed to the worker.
type Sync string

const (
	// SyncSimple operations take no arguments and send a fixed command.
	SyncSimple Sync = "simple"
	// SyncParameterized operations send a command plus a positional argument vector.
	SyncParameterized Sync = "parameterized"
)

// ParamKind is the declared type of an operation parameter.
type ParamKind string

// KindUint is an integer >= 0.
const KindUint ParamKind = "uint"

// Param declares one positional argument.
type Param struct {
	Name        string    `json:"name"`
	Kind        ParamKind `json:"kind"`
	Default     int64     `json:"default"`
	Description string    `json:"description,omitempty"`
}

// Operation is one registered control action.
type Operation struct {
	Name        string  `json:"name"`
	Command     string  `json:"command"`
	Endpoint    string  `json:"endpoint"`
	Sync        Sync    `json:"sync"`
	Params      []Param `json:"params,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Arity returns the number of declared parameters.
func (o Operation) Arity() int {
	return len(o.Params)
}

func (o Operation) clone() Operation {
	if o.Params != nil {
		o.Params = append([]Param(nil), o.Params...)
	}
	return o
}

func (o Operation) validate() error {
	if o.Name == "" {
		return errors.New("operation name is empty")
	}
	if o.Command == "" {
		return fmt.Errorf("operation %s: command is empty", o.Name)
	}
	if o.Endpoint == "" {
		return fmt.Errorf("operation %s: endpoint is empty", o.Name)
	}
	if len(o.Params) > 1 {
		return fmt.Errorf("operation %s: at most one parameter is supported", o.Name)
	}
	switch o.Sync {
	case SyncSimple:
		if len(o.Params) != 0 {
			return fmt.Errorf("operation %s: simple operations take no parameters", o.Name)
		}
	case SyncParameterized:
		if len(o.Params) == 0 {
			return fmt.Errorf("operation %s: parameterized operation declares no parameters", o.Name)
		}
	default:
		return fmt.Errorf("operation %s: unknown sync class %q", o.Name, o.Sync)
	}
	for _, p := range o.Params {
		if p.Kind != KindUint {
			return fmt.Errorf("operation %s: parameter %s has unsupported kind %q", o.Name, p.Name, p.Kind)
		}
		if p.Default < 0 {
			return fmt.Errorf("operation %s: parameter %s default must be >= 0", o.Name, p.Name)
		}
	}
	return nil
}

// Registry maps operation names to operations.
type Registry struct {
	byName     map[string]Operation
	byEndpoint map[string]string
	names      []string
}

// NewRegistry builds a registry, rejecting duplicate names or endpoints and
// malformed entries.
func NewRegistry(ops ...Operation) (*Registry, error) {
	r := &Registry{
		byName:     make(map[string]Operation, len(ops)),
		byEndpoint: make(map[string]string, len(ops)),
	}
	for _, op := range ops {
		if err := op.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[op.Name]; dup {
			return nil, fmt.Errorf("duplicate operation %s", op.Name)
		}
		if other, dup := r.byEndpoint[op.Endpoint]; dup {
			return nil, fmt.Errorf("operations %s and %s share endpoint %s", other, op.Name, op.Endpoint)
		}
		r.byName[op.Name] = op.clone()
		r.byEndpoint[op.Endpoint] = op.Name
		r.names = append(r.names, op.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (Operation, error) {
	op, ok := r.byName[name]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	return op.clone(), nil
}

// ByEndpoint resolves an HTTP action name (e.g. "installhttp") to its operation.
func (r *Registry) ByEndpoint(endpoint string) (Operation, error) {
	name, ok := r.byEndpoint[endpoint]
	if !ok {
		return Operation{}, fmt.Errorf("%w: endpoint %q", ErrUnknownOperation, endpoint)
	}
	return r.Lookup(name)
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// All returns every operation sorted by name.
func (r *Registry) All() []Operation {
	ops := make([]Operation, 0, len(r.names))
	for _, name := range r.names {
		ops = append(ops, r.byName[name].clone())
	}
	return ops
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	return len(r.names)
}
