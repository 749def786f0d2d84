// Package peers keeps a directory of peers this node has seen: names,
// addresses and connectivity counters, persisted in the in-memory KV with an
// inactivity TTL. The mesh core does not depend on it; the directory observes
// connection events and inbound traffic from the side.
package peers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Treystu/SCMessenger-sub006/pkg/memkv"
	"github.com/Treystu/SCMessenger-sub006/pkg/protocol"
	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

// inactivity TTL before a peer record is expired
const defaultPeerTTL = 24 * time.Hour

// Meta is the stored record for one peer.
type Meta struct {
	ID          transport.PeerID `json:"id"`
	Addresses   []string         `json:"addresses,omitempty"`
	FirstSeen   int64            `json:"first_seen_unix_ms"`
	LastSeen    int64            `json:"last_seen_unix_ms"`
	Connected   bool             `json:"connected"`
	Connects    uint64           `json:"connects"`
	Disconnects uint64           `json:"disconnects"`
	RequestsIn  uint64           `json:"requests_in"`
}

// Directory persists peer metadata in the KV.
type Directory struct {
	kv *memkv.Store

	idxMu sync.RWMutex
	index map[transport.PeerID]struct{}
}

func NewDirectory(kv *memkv.Store) *Directory {
	return &Directory{kv: kv, index: make(map[transport.PeerID]struct{})}
}

func keyPeer(id transport.PeerID) string { return "peer/" + string(id) }

// MarkConnected records a new link to the peer.
func (d *Directory) MarkConnected(id transport.PeerID, addr string, when time.Time) {
	d.update(id, func(m *Meta) {
		m.Connected = true
		m.Connects++
		m.LastSeen = when.UnixMilli()
		if addr != "" && !contains(m.Addresses, addr) {
			m.Addresses = append(m.Addresses, addr)
		}
	})
	zap.L().Debug("peer directory: connected",
		zap.String("peer", string(id)), zap.String("addr", addr))
}

// MarkDisconnected records that the link went away.
func (d *Directory) MarkDisconnected(id transport.PeerID, when time.Time) {
	d.update(id, func(m *Meta) {
		m.Connected = false
		m.Disconnects++
		m.LastSeen = when.UnixMilli()
	})
}

// Touch refreshes last-seen, counts an inbound request and records the
// address it came from.
func (d *Directory) Touch(id transport.PeerID, addr string, when time.Time) {
	d.update(id, func(m *Meta) {
		m.RequestsIn++
		m.LastSeen = when.UnixMilli()
		if addr != "" && !contains(m.Addresses, addr) {
			m.Addresses = append(m.Addresses, addr)
		}
	})
}

func (d *Directory) update(id transport.PeerID, fn func(*Meta)) {
	_ = d.kv.Update(keyPeer(id), func(old []byte) []byte {
		var m Meta
		_ = json.Unmarshal(old, &m)
		m.ID = id
		if m.FirstSeen == 0 {
			m.FirstSeen = time.Now().UnixMilli()
		}
		fn(&m)
		b, _ := json.Marshal(m)
		return b
	})
	_ = d.kv.Expire(keyPeer(id), defaultPeerTTL)
	d.idxMu.Lock()
	d.index[id] = struct{}{}
	d.idxMu.Unlock()
}

// Get returns the stored record for a peer.
func (d *Directory) Get(id transport.PeerID) (Meta, bool) {
	b, ok := d.kv.Get(keyPeer(id))
	if !ok {
		return Meta{}, false
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, false
	}
	return m, true
}

// List returns records for all indexed peers that are still in the KV.
func (d *Directory) List() []Meta {
	d.idxMu.RLock()
	ids := make([]transport.PeerID, 0, len(d.index))
	for id := range d.index {
		ids = append(ids, id)
	}
	d.idxMu.RUnlock()

	out := make([]Meta, 0, len(ids))
	for _, id := range ids {
		if m, ok := d.Get(id); ok {
			out = append(out, m)
		}
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Events mirrors the notification surface the network stack drives; the mesh
// engine satisfies it.
type Events interface {
	PeerConnected(peer transport.PeerID, dir transport.Direction)
	PeerDisconnected(peer transport.PeerID)
	HandleInbound(ctx context.Context, peer transport.PeerID, remoteAddr string, env protocol.Envelope) (protocol.Envelope, error)
}

// tee records every event in the directory, then forwards it.
type tee struct {
	dir  *Directory
	next Events
}

// Observe wraps next so connection events and inbound requests also land in
// the directory.
func Observe(d *Directory, next Events) Events { return &tee{dir: d, next: next} }

func (t *tee) PeerConnected(peer transport.PeerID, dir transport.Direction) {
	t.dir.MarkConnected(peer, "", time.Now())
	t.next.PeerConnected(peer, dir)
}

func (t *tee) PeerDisconnected(peer transport.PeerID) {
	t.dir.MarkDisconnected(peer, time.Now())
	t.next.PeerDisconnected(peer)
}

func (t *tee) HandleInbound(ctx context.Context, peer transport.PeerID, remoteAddr string, env protocol.Envelope) (protocol.Envelope, error) {
	t.dir.Touch(peer, remoteAddr, time.Now())
	return t.next.HandleInbound(ctx, peer, remoteAddr, env)
}
