package broker

import "errors"

var (
	// ErrNotReady is returned by every operation on a broker that is not
	// yet initialized or has been closed.
	ErrNotReady = errors.New("broker: not initialized or closed")

	// ErrNoManager is returned for a ticker without an order manager.
	ErrNoManager = errors.New("broker: no order manager for ticker")
)

// Error is a business failure of a broker operation. It wraps the
// collaborator error that caused it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "broker: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
