package boss

import "fmt"

// ErrConfig reports an invalid Config value, detected at construction time.
type ErrConfig struct {
	Field string
	Value interface{}
	Msg   string
}

func (e *ErrConfig) Error() string {
	return fmt.Sprintf("boss: invalid config %s=%v: %s", e.Field, e.Value, e.Msg)
}

// ErrHandshake reports a failed worker handshake: a closed stream before
// name/pid, a blank name, or a non-positive pid. The listener aborts only
// the offending connection and keeps accepting.
type ErrHandshake struct {
	Addr string
	Err  error
}

func (e *ErrHandshake) Error() string {
	return fmt.Sprintf("boss: handshake failed from %s: %v", e.Addr, e.Err)
}

func (e *ErrHandshake) Unwrap() error { return e.Err }

// ErrTransport reports premature EOF, a short read/write, or a flush
// failure during a framed exchange with a worker.
type ErrTransport struct {
	Worker string
	Err    error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("boss: transport error with worker %q: %v", e.Worker, e.Err)
}

func (e *ErrTransport) Unwrap() error { return e.Err }

// ErrProtocol reports a missing ACK, a malformed length line, a mismatched
// length, or an unexpected sentinel on the wire.
type ErrProtocol struct {
	Worker string
	Err    error
}

func (e *ErrProtocol) Error() string {
	return fmt.Sprintf("boss: protocol error with worker %q: %v", e.Worker, e.Err)
}

func (e *ErrProtocol) Unwrap() error { return e.Err }

// ErrListener reports a bind failure or an unexpected accept failure. The
// listener thread exits after logging this; wrapup still runs.
type ErrListener struct {
	Err error
}

func (e *ErrListener) Error() string {
	return fmt.Sprintf("boss: listener error: %v", e.Err)
}

func (e *ErrListener) Unwrap() error { return e.Err }
