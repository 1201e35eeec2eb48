// Package ctlplane provides the RPC interface between the privileged control plane
// and the unprivileged API server.
//
// # RPC Naming Convention
//
// All RPC types follow the pattern:
//   - Request: {MethodName}Args
//   - Response: {MethodName}Reply
//
// Empty is used for methods with no arguments.
package ctlplane

import (
	"time"
)

// Empty is used for RPC methods that take no arguments.
type Empty struct{}

// Status represents the current control plane status.
type Status struct {
	Running    bool      `json:"running"`
	Version    string    `json:"version"`
	StartTime  time.Time `json:"start_time"`
	Uptime     string    `json:"uptime"`
	SocketPath string    `json:"socket_path"`
	Actions    int       `json:"actions"`
	InFlight   int64     `json:"in_flight"`
	Executed   uint64    `json:"executed"`
}

// GetStatusReply is the response for GetStatus.
type GetStatusReply struct {
	Status Status
}

// RunCommandArgs runs a command that takes no parameters.
type RunCommandArgs struct {
	Command string
}

// RunCommandWithArgsArgs runs a command with a positional argument vector.
type RunCommandWithArgsArgs struct {
	Command string
	Args    []string
}

// RunCommandReply carries the worker's output. Success is false when the
// action is unknown, timed out or exited non-zero; Output is still returned.
type RunCommandReply struct {
	Output    string
	Success   bool
	ExitCode  int
	Truncated bool
	Duration  time.Duration
}

// ActionInfo describes one configured action.
type ActionInfo struct {
	Name        string        `json:"name"`
	Command     string        `json:"command"`
	Parameters  string        `json:"parameters,omitempty"`
	Timeout     time.Duration `json:"timeout"`
	Description string        `json:"description,omitempty"`
}

// ListActionsReply is the response for ListActions.
type ListActionsReply struct {
	Actions []ActionInfo
}
