package mesh

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Treystu/SCMessenger-sub006/pkg/protocol"
	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

const relaySeenSize = 1024

// RelayCoordinator decides how to answer inbound forward requests. Relaying
// is single-hop and best-effort; all retry responsibility stays with the
// original sender. Recently seen message ids are dropped so a sender
// re-dispatching through the same relay does not fan out duplicates.
type RelayCoordinator struct {
	seen *lru.Cache[string, struct{}]

	accepted  uint64
	rejected  uint64
	duplicate uint64
}

func NewRelayCoordinator() *RelayCoordinator {
	seen, err := lru.New[string, struct{}](relaySeenSize)
	if err != nil {
		panic(err) // only fails on size <= 0
	}
	return &RelayCoordinator{seen: seen}
}

// relayDecision tells the engine whether to forward the envelope; when
// Forward is false, Response is the final answer.
type relayDecision struct {
	Forward  bool
	Response protocol.RelayResponse
}

// Decide evaluates an inbound RelayRequest against the current connection
// set. Must be called from the engine loop.
func (r *RelayCoordinator) Decide(conns *ConnectionTracker, req protocol.RelayRequest) relayDecision {
	if req.MessageID != "" && r.seen.Contains(req.MessageID) {
		r.duplicate++
		// Already forwarded once; acknowledge without fanning out again.
		return relayDecision{Response: protocol.RelayResponse{Accepted: true, MessageID: req.MessageID}}
	}
	if !conns.IsConnected(transport.PeerID(req.Destination)) {
		r.rejected++
		return relayDecision{Response: protocol.RelayResponse{
			Accepted:  false,
			Error:     "destination unreachable",
			MessageID: req.MessageID,
		}}
	}
	r.accepted++
	return relayDecision{Forward: true}
}

// MarkForwarded records a message id after its forward succeeded, so a
// retransmit of the same id is acknowledged instead of forwarded twice.
// A failed forward is deliberately not recorded; the sender will retry.
func (r *RelayCoordinator) MarkForwarded(messageID string) {
	if messageID != "" {
		r.seen.Add(messageID, struct{}{})
	}
}

// Counters returns accepted/rejected/duplicate totals for diagnostics.
func (r *RelayCoordinator) Counters() (accepted, rejected, duplicate uint64) {
	return r.accepted, r.rejected, r.duplicate
}
