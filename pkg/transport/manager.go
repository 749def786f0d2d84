package transport

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manager keeps at most one canonical Session per peer and applies a
// policy to deduplicate concurrent inbound/outbound links.
type Manager struct {
	mu    sync.RWMutex
	peers map[PeerID]*peerEntry
}

type peerEntry struct {
	canonical Session
}

func NewManager() *Manager { return &Manager{peers: make(map[PeerID]*peerEntry)} }

// AddSession registers a new session for a peer and applies the selection
// policy. If the session loses the election, it is closed and returns (false,false,nil).
// If it becomes canonical and replaced an existing one, returns (true,true,old).
// If it becomes canonical without replacement (first), returns (true,false,nil).
func (m *Manager) AddSession(ctx context.Context, s Session) (accepted bool, replaced bool, old Session) {
	pid := s.Peer().ID
	m.mu.Lock()
	defer m.mu.Unlock()

	pe := m.peers[pid]
	if pe == nil {
		pe = &peerEntry{}
		m.peers[pid] = pe
	}

	if pe.canonical == nil {
		pe.canonical = s
		return true, false, nil
	}

	cur := pe.canonical
	if better(s, cur) {
		old = cur
		pe.canonical = s
		// soft close the loser after a grace period so in-flight frames drain
		go func(old Session) {
			select {
			case <-ctx.Done():
			case <-time.After(500 * time.Millisecond):
			}
			_ = old.Close()
		}(old)
		return true, true, old
	}

	// Otherwise, reject the new session politely
	_ = s.Close()
	return false, false, nil
}

// GetSession returns the current canonical session for a peer (if any).
func (m *Manager) GetSession(id PeerID) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pe := m.peers[id]; pe != nil {
		return pe.canonical
	}
	return nil
}

// RemoveSession clears the mapping for a peer if s is still its canonical
// session. Returns true when the mapping was removed.
func (m *Manager) RemoveSession(id PeerID, s Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pe := m.peers[id]; pe != nil && pe.canonical == s {
		delete(m.peers, id)
		return true
	}
	return false
}

// ClosePeer closes the canonical session for a peer and clears it.
func (m *Manager) ClosePeer(id PeerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pe := m.peers[id]; pe != nil {
		if pe.canonical != nil {
			_ = pe.canonical.Close()
		}
		delete(m.peers, id)
	}
}

// ListPeers returns all known peer IDs.
func (m *Manager) ListPeers() []PeerID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PeerID, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RebindPeer moves a canonical session from oldID to newID after the true
// identity becomes known. If newID already has a canonical session, the
// policy decides which one remains; the loser is closed.
func (m *Manager) RebindPeer(oldID, newID PeerID) bool {
	if oldID == newID || newID == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.peers[oldID]
	if src == nil || src.canonical == nil {
		return false
	}
	moving := src.canonical
	delete(m.peers, oldID)

	if mp, ok := moving.(MutablePeer); ok {
		pi := moving.Peer()
		pi.ID = newID
		mp.SetPeer(pi)
	}

	dst := m.peers[newID]
	if dst == nil || dst.canonical == nil {
		m.peers[newID] = &peerEntry{canonical: moving}
		return true
	}
	if better(moving, dst.canonical) {
		old := dst.canonical
		dst.canonical = moving
		go func() { _ = old.Close() }()
		return true
	}
	go func() { _ = moving.Close() }()
	return false
}

// Preference order across kinds; higher is better. Mem ranks highest so test
// links always win elections against real sockets.
func baseRank(k Kind) int {
	switch k {
	case KindMem:
		return 120
	case KindQUIC:
		return 100
	case KindTCP:
		return 90
	default:
		return 0
	}
}

// better decides whether a should replace b as canonical.
func better(a, b Session) bool {
	ra := baseRank(a.TransportKind())
	rb := baseRank(b.TransportKind())
	if ra != rb {
		return ra > rb
	}

	qa := a.Quality()
	qb := b.Quality()
	if qa.RTT != qb.RTT {
		return qa.RTT < qb.RTT
	}
	// Fallback to newer establishment (reduces split-brain on reconnect races)
	return qa.EstablishedAt.After(qb.EstablishedAt)
}
