// Package netstack runs the network side of a node: listeners, redial loops,
// per-session serve loops, and the request/response correlation table the
// delivery engine sends through. It owns no routing decisions; envelopes it
// cannot correlate or identify are handed to the Handler.
package netstack

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/Treystu/SCMessenger-sub006/pkg/mesh"
	"github.com/Treystu/SCMessenger-sub006/pkg/protocol"
	"github.com/Treystu/SCMessenger-sub006/pkg/protocol/codec"
	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

// Handler receives connectivity notifications and inbound protocol requests.
// The mesh engine implements it.
type Handler interface {
	PeerConnected(peer transport.PeerID, dir transport.Direction)
	PeerDisconnected(peer transport.PeerID)
	HandleInbound(ctx context.Context, peer transport.PeerID, remoteAddr string, env protocol.Envelope) (protocol.Envelope, error)
}

// Stack wires sessions to the engine: it sends request envelopes, matches
// responses by correlation id, and dispatches inbound requests.
type Stack struct {
	mgr      *transport.Manager
	handler  Handler
	localID  transport.PeerID
	nodeName string
	reg      *codec.Registry
	identity ed25519.PrivateKey

	mu      sync.Mutex
	waiters map[[16]byte]chan protocol.Envelope
}

func NewStack(mgr *transport.Manager, handler Handler, localID transport.PeerID, nodeName string) *Stack {
	return &Stack{
		mgr:      mgr,
		handler:  handler,
		localID:  localID,
		nodeName: nodeName,
		reg:      codec.NewRegistry(),
		waiters:  make(map[[16]byte]chan protocol.Envelope),
	}
}

// UseIdentity makes the stack sign its hello announcements and demand a
// verified id binding from peers that announce with a public key.
func (st *Stack) UseIdentity(priv ed25519.PrivateKey) { st.identity = priv }

// Request sends one envelope to a peer and waits for the correlated response
// or ctx expiry. A peer without an established session fails immediately with
// mesh.ErrPeerUnavailable.
func (st *Stack) Request(ctx context.Context, peer transport.PeerID, env protocol.Envelope) (protocol.Envelope, error) {
	s := st.mgr.GetSession(peer)
	if s == nil {
		return protocol.Envelope{}, fmt.Errorf("%w: %s", mesh.ErrPeerUnavailable, peer)
	}
	stream, err := s.OpenStream(ctx)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("open stream to %s: %w", peer, err)
	}

	ch := make(chan protocol.Envelope, 1)
	st.addWaiter(env.Header.Correlation, ch)
	defer st.removeWaiter(env.Header.Correlation)

	frame, err := env.EncodeFrame()
	if err != nil {
		return protocol.Envelope{}, err
	}
	if err := stream.SendBytes(frame); err != nil {
		return protocol.Envelope{}, fmt.Errorf("send to %s: %w", peer, err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

func (st *Stack) addWaiter(corr [16]byte, ch chan protocol.Envelope) {
	st.mu.Lock()
	st.waiters[corr] = ch
	st.mu.Unlock()
}

func (st *Stack) removeWaiter(corr [16]byte) {
	st.mu.Lock()
	delete(st.waiters, corr)
	st.mu.Unlock()
}

// fulfill routes a response to its waiter. A response with an unrecognized
// correlation id is dropped; it must not disturb other pending requests.
func (st *Stack) fulfill(env protocol.Envelope) bool {
	st.mu.Lock()
	ch, ok := st.waiters[env.Header.Correlation]
	if ok {
		delete(st.waiters, env.Header.Correlation)
	}
	st.mu.Unlock()
	if !ok {
		return false
	}
	ch <- env
	return true
}
