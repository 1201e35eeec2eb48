package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"grimm.is/speedctl/internal/ctlplane"
)

// StatusFunc returns the last known control plane status. metrics.Collector's
// LastStatus has this shape.
type StatusFunc func() (*ctlplane.Status, time.Time, error)

// ControlPlaneCheck reports unhealthy when the control plane cannot be
// reached, and degraded when the cached status is older than maxAge.
func ControlPlaneCheck(last StatusFunc, maxAge time.Duration) CheckFunc {
	return func(ctx context.Context) Check {
		status, updated, err := last()
		switch {
		case err != nil:
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("control plane unreachable: %v", err)}
		case status == nil:
			return Check{Status: StatusDegraded, Message: "control plane not polled yet"}
		case maxAge > 0 && time.Since(updated) > maxAge:
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("control plane status is stale (%s old)", time.Since(updated).Round(time.Second))}
		}
		return Check{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("control plane %s up %s, %d actions", status.Version, status.Uptime, status.Actions),
		}
	}
}

// StatusClientCheck queries the control plane directly on every run.
func StatusClientCheck(client interface {
	GetStatus() (*ctlplane.Status, error)
}) CheckFunc {
	return func(ctx context.Context) Check {
		if client == nil {
			return Check{Status: StatusDegraded, Message: "control plane client not initialized"}
		}
		status, err := client.GetStatus()
		if err != nil {
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("control plane unreachable: %v", err)}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("control plane responding, %d actions", status.Actions)}
	}
}

// Pinger is satisfied by stores backed by database/sql.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StoreCheck reports a degraded status when the audit store cannot be
// reached. Invocations still succeed without it.
func StoreCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) Check {
		if err := p.PingContext(ctx); err != nil {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("audit store unavailable: %v", err)}
		}
		return Check{Status: StatusHealthy, Message: "audit store reachable"}
	}
}

// DirCheck verifies that dir exists and is a directory.
func DirCheck(dir string) CheckFunc {
	return func(ctx context.Context) Check {
		info, err := os.Stat(dir)
		if err != nil {
			return Check{Status: StatusDegraded, Message: err.Error()}
		}
		if !info.IsDir() {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("%s is not a directory", dir)}
		}
		return Check{Status: StatusHealthy, Message: filepath.Clean(dir)}
	}
}
