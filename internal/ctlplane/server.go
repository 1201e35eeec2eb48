package ctlplane

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"grimm.is/speedctl/internal/brand"
	"grimm.is/speedctl/internal/config"
	"grimm.is/speedctl/internal/logging"
)

// Server is the privileged control plane RPC server.
type Server struct {
	runner     *ActionRunner
	socketPath string
	logger     *logging.Logger
	startTime  time.Time

	rpc      *rpc.Server
	listener net.Listener

	// Cancelled by Stop so running actions are killed.
	ctx    context.Context
	cancel context.CancelFunc

	inFlight atomic.Int64
	executed atomic.Uint64

	mu sync.Mutex
}

// NewServer creates a control plane server for cfg.
func NewServer(cfg *config.Config) *Server {
	logger := logging.WithComponent("ctlplane")
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		runner:     NewActionRunner(cfg, logging.WithComponent("actions")),
		socketPath: cfg.ControlPlane.Socket,
		logger:     logger,
		startTime:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Reload swaps in the action table from a new config.
func (s *Server) Reload(cfg *config.Config) {
	s.runner.Load(cfg)
	s.logger.Info("Action table reloaded", "actions", s.runner.Len())
}

// RunCommand runs an action that takes no parameters.
func (s *Server) RunCommand(args *RunCommandArgs, reply *RunCommandReply) error {
	if args == nil || args.Command == "" {
		return errors.New("command is required")
	}
	s.run(args.Command, nil, reply)
	return nil
}

// RunCommandWithArgs runs an action with a positional argument vector.
func (s *Server) RunCommandWithArgs(args *RunCommandWithArgsArgs, reply *RunCommandReply) error {
	if args == nil || args.Command == "" {
		return errors.New("command is required")
	}
	s.run(args.Command, args.Args, reply)
	return nil
}

func (s *Server) run(command string, args []string, reply *RunCommandReply) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	res := s.runner.Run(s.ctx, command, args)
	s.executed.Add(1)

	*reply = RunCommandReply{
		Output:    res.Output,
		Success:   res.Success,
		ExitCode:  res.ExitCode,
		Truncated: res.Truncated,
		Duration:  res.Duration,
	}
}

// GetStatus returns the current control plane status.
func (s *Server) GetStatus(args *Empty, reply *GetStatusReply) error {
	reply.Status = Status{
		Running:    true,
		Version:    brand.Version,
		StartTime:  s.startTime,
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		SocketPath: s.socketPath,
		Actions:    s.runner.Len(),
		InFlight:   s.inFlight.Load(),
		Executed:   s.executed.Load(),
	}
	return nil
}

// ListActions returns the configured action table.
func (s *Server) ListActions(args *Empty, reply *ListActionsReply) error {
	reply.Actions = s.runner.List()
	return nil
}

// Start starts the RPC server on the Unix socket.
func (s *Server) Start() error {
	// Remove existing socket if present
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}

	// The API process runs unprivileged and is not in root's group.
	if err := os.Chmod(s.socketPath, 0666); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return s.StartWithListener(listener)
}

// StartWithListener starts the RPC server with an existing listener.
func (s *Server) StartWithListener(listener net.Listener) error {
	srv := rpc.NewServer()
	if err := srv.RegisterName("Server", s); err != nil {
		return fmt.Errorf("failed to register RPC service: %w", err)
	}

	s.mu.Lock()
	s.rpc = srv
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("Control plane listening", "addr", listener.Addr().String(), "actions", s.runner.Len())

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Error("Accept error", "error", err)
				}
				return
			}
			go func() {
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("CRITICAL: RPC connection handler panicked", "panic", r)
					}
				}()
				srv.ServeConn(conn)
			}()
		}
	}()

	return nil
}

// Stop closes the listener and kills running actions.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	if listener == nil {
		return nil
	}
	// UnixListener unlinks the socket file on Close.
	err := listener.Close()
	s.logger.Info("Control plane stopped")
	return err
}
