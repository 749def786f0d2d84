package mesh

import (
	"sort"
	"time"

	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

// Connection records one established link to a peer.
type Connection struct {
	Peer          transport.PeerID
	Direction     transport.Direction
	EstablishedAt time.Time
}

// ConnectionTracker keeps the set of currently established peer connections.
// It is mutated only from the engine loop, so it carries no lock.
type ConnectionTracker struct {
	conns map[transport.PeerID]Connection
}

func NewConnectionTracker() *ConnectionTracker {
	return &ConnectionTracker{conns: make(map[transport.PeerID]Connection)}
}

func (t *ConnectionTracker) Add(peer transport.PeerID, dir transport.Direction, now time.Time) {
	t.conns[peer] = Connection{Peer: peer, Direction: dir, EstablishedAt: now}
}

func (t *ConnectionTracker) Remove(peer transport.PeerID) {
	delete(t.conns, peer)
}

func (t *ConnectionTracker) IsConnected(peer transport.PeerID) bool {
	_, ok := t.conns[peer]
	return ok
}

// Peers returns all connected peer ids in stable order. Every connected peer
// is also a relay candidate.
func (t *ConnectionTracker) Peers() []transport.PeerID {
	out := make([]transport.PeerID, 0, len(t.conns))
	for id := range t.conns {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *ConnectionTracker) Len() int { return len(t.conns) }
