package mesh

import (
	"sort"
	"strings"
	"time"

	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

// Path is an ordered hop sequence ending at the destination. Length 1 is a
// direct send; length 2 goes via one relay. Paths are value objects
// recomputed per selection call and never stored as back-references.
type Path []transport.PeerID

// Direct reports whether the path has no intermediate hops.
func (p Path) Direct() bool { return len(p) == 1 }

// Relay returns the first intermediate hop, or "" for a direct path.
func (p Path) Relay() transport.PeerID {
	if len(p) < 2 {
		return ""
	}
	return p[0]
}

// Destination returns the final hop.
func (p Path) Destination() transport.PeerID {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, hop := range p {
		parts[i] = string(hop)
	}
	return strings.Join(parts, ">")
}

// PathSelector ranks candidate delivery paths from current connections and
// peer reputation.
type PathSelector struct {
	conns *ConnectionTracker
	rep   *ReputationTracker
}

func NewPathSelector(conns *ConnectionTracker, rep *ReputationTracker) *PathSelector {
	return &PathSelector{conns: conns, rep: rep}
}

// BestPaths returns up to k candidate paths to destination, best first. The
// candidate set is the direct path (when the destination is connected) plus
// a two-hop path through every other connected peer. A path scores the
// minimum of its hop scores; ties prefer fewer hops.
func (s *PathSelector) BestPaths(destination transport.PeerID, k int, now time.Time) []Path {
	if k <= 0 {
		k = 3
	}

	var candidates []Path
	if s.conns.IsConnected(destination) {
		candidates = append(candidates, Path{destination})
	}
	for _, relay := range s.conns.Peers() {
		if relay == destination {
			continue
		}
		candidates = append(candidates, Path{relay, destination})
	}
	if len(candidates) == 0 {
		return nil
	}

	scores := make([]float64, len(candidates))
	for i, p := range candidates {
		scores[i] = s.pathScore(p, now)
	}
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		return len(candidates[ia]) < len(candidates[ib])
	})

	if k > len(idx) {
		k = len(idx)
	}
	out := make([]Path, 0, k)
	for _, i := range idx[:k] {
		out = append(out, candidates[i])
	}
	return out
}

// pathScore is the minimum hop score: a chain is only as strong as its
// weakest link.
func (s *PathSelector) pathScore(p Path, now time.Time) float64 {
	min := 1.0
	for _, hop := range p {
		if sc := s.rep.Score(hop, now); sc < min {
			min = sc
		}
	}
	return min
}
