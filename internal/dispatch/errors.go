package dispatch

import (
	"errors"
	"fmt"

	"grimm.is/speedctl/internal/operation"
)

// Caller-input errors are returned before the worker is contacted.
var (
	ErrUnknownOperation = operation.ErrUnknownOperation
	ErrArgumentMismatch = errors.New("argument count mismatch")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Worker errors.
var (
	// ErrWorkerUnavailable means the worker could not be reached or started.
	ErrWorkerUnavailable = errors.New("worker unavailable")
	// ErrWorkerFailed matches any *WorkerError.
	ErrWorkerFailed = errors.New("worker reported failure")
)

// WorkerError is returned when the worker ran the command and reported
// failure. Payload is the worker's output, unmodified.
type WorkerError struct {
	Command  string
	Args     []string
	ExitCode int
	Payload  string
}

func (e *WorkerError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("worker command %q failed with exit code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("worker command %q failed", e.Command)
}

// Unwrap lets errors.Is(err, ErrWorkerFailed) match.
func (e *WorkerError) Unwrap() error {
	return ErrWorkerFailed
}

// Outcome labels used in metrics and the audit trail.
const (
	OutcomeOK                = "ok"
	OutcomeUnknownOperation  = "unknown_operation"
	OutcomeArgumentMismatch  = "argument_mismatch"
	OutcomeInvalidArgument   = "invalid_argument"
	OutcomeWorkerUnavailable = "worker_unavailable"
	OutcomeWorkerError       = "worker_error"
	OutcomeInternal          = "internal"
)

// Outcome classifies err into one of the Outcome* labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrUnknownOperation):
		return OutcomeUnknownOperation
	case errors.Is(err, ErrArgumentMismatch):
		return OutcomeArgumentMismatch
	case errors.Is(err, ErrInvalidArgument):
		return OutcomeInvalidArgument
	case errors.Is(err, ErrWorkerUnavailable):
		return OutcomeWorkerUnavailable
	case errors.Is(err, ErrWorkerFailed):
		return OutcomeWorkerError
	default:
		return OutcomeInternal
	}
}

// IsCallerError reports whether err was caused by the request rather than
// the worker.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrUnknownOperation) ||
		errors.Is(err, ErrArgumentMismatch) ||
		errors.Is(err, ErrInvalidArgument)
}
