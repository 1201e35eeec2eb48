package ctlplane

import (
	"errors"
	"fmt"
	"net/rpc"
	"strings"
	"sync"

	"grimm.is/speedctl/internal/brand"
	"grimm.is/speedctl/internal/dispatch"
)

// Client is the RPC client for communicating with the control plane.
// It implements dispatch.Worker.
type Client struct {
	client     *rpc.Client
	socketPath string
	mu         sync.RWMutex
}

var _ dispatch.Worker = (*Client)(nil)

// NewClient connects to the control plane at the default socket path.
func NewClient() (*Client, error) {
	return NewClientAt(brand.GetSocketPath())
}

// NewClientAt connects to the control plane at socketPath.
func NewClientAt(socketPath string) (*Client, error) {
	c := NewLazyClient(socketPath)
	if err := c.reconnect(nil); err != nil {
		return nil, err
	}
	return c, nil
}

// NewLazyClient returns a client that dials on first use, so the API server
// can start before the control plane.
func NewLazyClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Close closes the RPC connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// call issues an idempotent RPC. After a broken connection it reconnects
// and resends once.
func (c *Client) call(serviceMethod string, args any, reply any) error {
	return c.do(serviceMethod, args, reply, true)
}

// callOnce issues an RPC that runs a worker command. It resends only when
// the cached connection was already shut down, in which case net/rpc never
// wrote the request. A failure after the request went out is reported as
// unavailable without resending, since the command may already be running.
func (c *Client) callOnce(serviceMethod string, args any, reply any) error {
	return c.do(serviceMethod, args, reply, false)
}

func (c *Client) do(serviceMethod string, args any, reply any, idempotent bool) error {
	client, err := c.current()
	if err != nil {
		return err
	}

	err = client.Call(serviceMethod, args, reply)
	if err == nil {
		return nil
	}

	retry := errors.Is(err, rpc.ErrShutdown)
	if idempotent {
		retry = retry || isNetworkError(err)
	}
	if !retry {
		return classify(err)
	}

	// Pass the failed client so concurrent callers reconnect only once
	if recErr := c.reconnect(client); recErr != nil {
		return fmt.Errorf("RPC call failed (%v) and %w", err, recErr)
	}
	client, err = c.current()
	if err != nil {
		return err
	}
	if err := client.Call(serviceMethod, args, reply); err != nil {
		return classify(err)
	}
	return nil
}

// current returns the cached connection, dialing when there is none. A
// concurrent Close can clear it again between dial and read.
func (c *Client) current() (*rpc.Client, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	if err := c.reconnect(nil); err != nil {
		return nil, err
	}
	c.mu.RLock()
	client = c.client
	c.mu.RUnlock()
	if client == nil {
		return nil, fmt.Errorf("%w: control plane client closed", dispatch.ErrWorkerUnavailable)
	}
	return client, nil
}

// reconnect attempts to establish a new connection.
func (c *Client) reconnect(oldClient *rpc.Client) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Someone else reconnected while we waited
	if c.client != oldClient && c.client != nil {
		return nil
	}

	if c.client != nil {
		c.client.Close()
	}

	client, err := rpc.Dial("unix", c.socketPath)
	if err != nil {
		c.client = nil
		return fmt.Errorf("%w: failed to connect to control plane at %s: %v", dispatch.ErrWorkerUnavailable, c.socketPath, err)
	}

	c.client = client
	return nil
}

// classify maps a failed call onto the dispatch error taxonomy. A
// rpc.ServerError means the control plane answered but refused the request.
func classify(err error) error {
	var serverErr rpc.ServerError
	if errors.As(err, &serverErr) {
		return &dispatch.WorkerError{Payload: string(serverErr)}
	}
	return fmt.Errorf("%w: %v", dispatch.ErrWorkerUnavailable, err)
}

func isNetworkError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection is shut down") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "bad file descriptor") ||
		strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "use of closed network connection")
}

// RunCommand runs a parameterless command on the control plane and returns
// its output unmodified.
func (c *Client) RunCommand(command string) (string, error) {
	var reply RunCommandReply
	if err := c.callOnce("Server.RunCommand", &RunCommandArgs{Command: command}, &reply); err != nil {
		return "", annotate(err, command, nil)
	}
	return replyResult(command, nil, &reply)
}

// RunCommandWithArgs runs a command with a positional argument vector.
func (c *Client) RunCommandWithArgs(command string, args []string) (string, error) {
	var reply RunCommandReply
	if err := c.callOnce("Server.RunCommandWithArgs", &RunCommandWithArgsArgs{Command: command, Args: args}, &reply); err != nil {
		return "", annotate(err, command, args)
	}
	return replyResult(command, args, &reply)
}

// GetStatus returns the control plane status.
func (c *Client) GetStatus() (*Status, error) {
	var reply GetStatusReply
	if err := c.call("Server.GetStatus", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply.Status, nil
}

// ListActions returns the action table configured on the control plane.
func (c *Client) ListActions() ([]ActionInfo, error) {
	var reply ListActionsReply
	if err := c.call("Server.ListActions", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return reply.Actions, nil
}

func replyResult(command string, args []string, reply *RunCommandReply) (string, error) {
	if !reply.Success {
		return "", &dispatch.WorkerError{
			Command:  command,
			Args:     args,
			ExitCode: reply.ExitCode,
			Payload:  reply.Output,
		}
	}
	return reply.Output, nil
}

func annotate(err error, command string, args []string) error {
	var werr *dispatch.WorkerError
	if errors.As(err, &werr) {
		werr.Command = command
		werr.Args = args
	}
	return err
}
