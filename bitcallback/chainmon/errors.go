package chainmon

import "github.com/go-errors/errors"

// Error kinds surfaced by ChainClient implementations.
// ConnectionFailed and NodeWarmingUp are retryable: the caller should drop
// the monitor and attempt a reconnect on the next poll. ProtocolError is
// non-retryable for the current request but does not invalidate the client.
var (
	ErrConnectionFailed = errors.New("chainmon: connection to node failed")
	ErrNodeWarmingUp    = errors.New("chainmon: node still warming up")
	ErrProtocolError    = errors.New("chainmon: protocol decode error")
)
