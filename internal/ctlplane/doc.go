// Package ctlplane implements the privileged control plane for Speedctl.
//
// # Overview
//
// The control plane runs as root and is the only process that executes
// speedtest worker commands (the measurement script, log deletion, package
// installation). Commands are looked up in the configured action table and
// run directly, without a shell.
//
// # Architecture
//
// The control plane exposes an RPC server over a Unix socket at
// /var/run/speedctl-ctl.sock. The unprivileged API server connects as a client.
//
//	API Server (www) → dispatch.Dispatcher → Client → Unix Socket → Server (root) → ActionRunner → exec
//
// # Key Types
//
//   - [Server]: RPC server exposing RunCommand, RunCommandWithArgs and GetStatus
//   - [ActionRunner]: maps a command string to an executable and runs it
//   - [Client]: RPC client used by the API server, implements dispatch.Worker
//   - [ControlPlaneClient]: Interface for mocking in tests
//
// # Adding New RPC Methods
//
//  1. Define request/reply types in types.go
//  2. Add method to Server in server.go
//  3. Add client method in client.go
//  4. Add interface method in client_interface.go
//  5. Add mock implementation in client_mock.go
//
// # Example
//
// Starting the server:
//
//	server := ctlplane.NewServer(cfg)
//	server.Start()
//
// Using the client:
//
//	client := ctlplane.NewLazyClient(cfg.ControlPlane.Socket)
//	out, err := client.RunCommandWithArgs("speedtest run", []string{"0"})
package ctlplane
