package velux

import "errors"

// Sentinel errors for KLF200 session failures. Callers match with
// errors.Is to distinguish authentication problems from transport ones.
var (
	// ErrConnectionFailed indicates the TLS connection to the gateway
	// could not be established.
	ErrConnectionFailed = errors.New("velux: connection failed")

	// ErrAuthFailed indicates the gateway rejected the password.
	ErrAuthFailed = errors.New("velux: authentication failed")

	// ErrNotConnected indicates an operation on a closed session.
	ErrNotConnected = errors.New("velux: not connected")

	// ErrCommandRejected indicates the gateway refused a command.
	ErrCommandRejected = errors.New("velux: command rejected")

	// ErrUnknownNode indicates a command referenced a node that is not
	// in the loaded roster.
	ErrUnknownNode = errors.New("velux: unknown node")

	// ErrBadFrame indicates a malformed transport frame.
	ErrBadFrame = errors.New("velux: bad frame")

	// ErrTimeout indicates the gateway did not confirm in time.
	ErrTimeout = errors.New("velux: timeout waiting for gateway")
)
