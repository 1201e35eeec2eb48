package ctlplane

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"grimm.is/speedctl/internal/config"
	"grimm.is/speedctl/internal/logging"
)

// Failure payloads for requests that never reach an executable.
const (
	MsgActionNotFound    = "Action not found"
	MsgParameterMismatch = "Parameter mismatch"
	MsgActionTimedOut    = "Action timed out"
)

// ActionResult is the outcome of one action run.
type ActionResult struct {
	Output    string
	Success   bool
	ExitCode  int
	Truncated bool
	Duration  time.Duration
}

type action struct {
	config.ActionConfig
	params  []string
	slots   int
	timeout time.Duration
}

// ActionRunner resolves command strings against the configured action table
// and executes them.
type ActionRunner struct {
	mu        sync.RWMutex
	actions   map[string]action
	maxOutput int
	logger    *logging.Logger
}

// NewActionRunner builds a runner from the action blocks in cfg.
func NewActionRunner(cfg *config.Config, logger *logging.Logger) *ActionRunner {
	if logger == nil {
		logger = logging.WithComponent("actions")
	}
	r := &ActionRunner{logger: logger}
	r.Load(cfg)
	return r
}

// Load replaces the action table.
func (r *ActionRunner) Load(cfg *config.Config) {
	defaultTimeout := cfg.ControlPlane.CommandTimeout()

	actions := make(map[string]action, len(cfg.Actions))
	for _, a := range cfg.Actions {
		params := strings.Fields(a.Parameters)
		actions[a.Name] = action{
			ActionConfig: a,
			params:       params,
			slots:        config.Placeholders(a.Parameters),
			timeout:      a.TimeoutOr(defaultTimeout),
		}
	}

	r.mu.Lock()
	r.actions = actions
	r.maxOutput = cfg.ControlPlane.MaxOutputBytes
	r.mu.Unlock()
}

// Len returns the number of configured actions.
func (r *ActionRunner) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// List returns the configured actions sorted by name.
func (r *ActionRunner) List() []ActionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ActionInfo, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, ActionInfo{
			Name:        a.Name,
			Command:     a.Command,
			Parameters:  a.Parameters,
			Timeout:     a.timeout,
			Description: a.Description,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run executes the action registered for command. args fill the %s slots of
// the parameter template in order and are passed as single argv entries.
func (r *ActionRunner) Run(ctx context.Context, command string, args []string) ActionResult {
	r.mu.RLock()
	a, ok := r.actions[command]
	maxOutput := r.maxOutput
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("Unknown action", "command", command)
		return ActionResult{Output: MsgActionNotFound, ExitCode: -1}
	}

	argv, err := a.expand(args)
	if err != nil {
		r.logger.Warn("Rejected action parameters", "command", command, "error", err)
		return ActionResult{Output: MsgParameterMismatch, ExitCode: -1}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out := &cappedBuffer{limit: maxOutput}
	cmd := exec.CommandContext(ctx, a.Command, argv...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second

	start := time.Now()
	err = cmd.Run()
	res := ActionResult{
		Output:    out.String(),
		Truncated: out.truncated,
		Duration:  time.Since(start),
	}

	switch {
	case err == nil:
		res.Success = true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.Output = appendLine(res.Output, MsgActionTimedOut)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Output = appendLine(res.Output, err.Error())
		}
	}

	r.logger.Info("Action finished",
		"command", command,
		"args", args,
		"exit_code", res.ExitCode,
		"success", res.Success,
		"bytes", len(res.Output),
		"duration", res.Duration.Round(time.Millisecond))
	return res
}

// expand substitutes args into the parameter template.
func (a action) expand(args []string) ([]string, error) {
	if len(args) != a.slots {
		return nil, fmt.Errorf("%s expects %d argument(s), got %d", a.Name, a.slots, len(args))
	}
	argv := make([]string, 0, len(a.params))
	next := 0
	for _, p := range a.params {
		parts := strings.Split(p, "%s")
		var sb strings.Builder
		sb.WriteString(parts[0])
		for _, part := range parts[1:] {
			sb.WriteString(args[next])
			sb.WriteString(part)
			next++
		}
		argv = append(argv, sb.String())
	}
	return argv, nil
}

func appendLine(s, line string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s + line
	}
	return s + "\n" + line
}

// cappedBuffer keeps the first limit bytes written to it. A limit <= 0 keeps
// everything.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 {
		room := b.limit - b.buf.Len()
		if room <= 0 {
			b.truncated = b.truncated || len(p) > 0
			return len(p), nil
		}
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
			return len(p), nil
		}
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
