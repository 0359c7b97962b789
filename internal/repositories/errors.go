package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRemoteRead marks a failed or timed out query.
	ErrRemoteRead = errors.New("remote read failed")
	// ErrRemoteWrite marks a failed or timed out create, update or delete.
	ErrRemoteWrite = errors.New("remote write failed")

	ErrMessageNotFound = errors.New("message not found")
	ErrProfileNotFound = errors.New("profile not found")
)

// DefaultTimeout bounds every database round-trip.
const DefaultTimeout = 15 * time.Second

// RemoteError wraps a storage failure with its kind and the operation name.
type RemoteError struct {
	Kind error
	Op   string
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func readErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Kind: ErrRemoteRead, Op: op, Err: err}
}

func writeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Kind: ErrRemoteWrite, Op: op, Err: err}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
