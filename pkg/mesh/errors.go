package mesh

import "errors"

var (
	// ErrNoPath means no direct connection and no relay candidate exists for
	// a destination.
	ErrNoPath = errors.New("no path available")
	// ErrNoReflectors means an address probe was requested with zero
	// connected peers to ask.
	ErrNoReflectors = errors.New("no reflectors available")
	// ErrPeerUnavailable means the target peer has no established session.
	ErrPeerUnavailable = errors.New("peer unavailable")
	// ErrShuttingDown means the engine stopped accepting commands.
	ErrShuttingDown = errors.New("engine shutting down")
)
