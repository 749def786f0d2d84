package transport

import (
	"context"
	"net"
	"time"
)

// Kind identifies transport/link type for policy decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindQUIC
	KindTCP
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindQUIC:
		return "quic"
	case KindTCP:
		return "tcp"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// PeerID is an opaque stable peer identity derived from a public key.
type PeerID string

// Direction tells which side established a connection.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// PeerInfo bundles peer identity and addressing hints.
type PeerInfo struct {
	ID        PeerID
	Addr      string // transport-dependent address string
	Reachable bool   // best-effort reachability
}

// Quality captures link quality metrics used by the manager to rank sessions.
type Quality struct {
	RTT           time.Duration
	EstablishedAt time.Time
	LastSeen      time.Time
}

// Stream is a bidirectional frame stream.
// Exactly one reader and one writer goroutine are expected.
type Stream interface {
	// SendBytes sends one message frame as opaque bytes.
	SendBytes([]byte) error
	// RecvBytes receives the next message frame and returns its bytes.
	RecvBytes() ([]byte, error)
	Close() error
}

// Session represents a canonical connection to a peer.
type Session interface {
	Peer() PeerInfo
	TransportKind() Kind
	Direction() Direction
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// OpenStream returns the session's control stream, opening it on first
	// use. Outbound sessions open the stream; inbound sessions accept it.
	OpenStream(ctx context.Context) (Stream, error)

	// Quality snapshot for ranking/monitoring.
	Quality() Quality

	// Close closes the entire session.
	Close() error
}

// Listener accepts inbound sessions.
type Listener interface {
	// Accept blocks until an inbound session is available or ctx is done.
	Accept(ctx context.Context) (Session, error)
	// Addr returns the local listening address.
	Addr() net.Addr
	// Close stops the listener and unblocks Accept.
	Close() error
}

// Transport provides dialing/listening for a specific link kind.
type Transport interface {
	Kind() Kind
	// Listen starts accepting inbound sessions on address (transport-specific format).
	Listen(ctx context.Context, address string) (Listener, error)
	// Dial creates an outbound session to a peer/address.
	Dial(ctx context.Context, address string, peer PeerInfo) (Session, error)
}
