package bridge

import "errors"

var (
	// ErrBrokerFatal indicates the broker refused the connection with a
	// reason that retrying cannot fix (bad credentials, protocol
	// mismatch, rejected identifier, not authorised).
	ErrBrokerFatal = errors.New("bridge: broker refused connection permanently")

	// ErrHubUnavailable indicates the gateway session could not be
	// established.
	ErrHubUnavailable = errors.New("bridge: gateway unavailable")
)
