package mesh

import (
	"net"
	"time"

	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

// NatClassification is a coarse category of this node's address-mapping
// behavior, derived from peer-reported observations.
type NatClassification int

const (
	NatUnknown NatClassification = iota
	NatOpen
	NatFullCone
	NatSymmetric
)

func (c NatClassification) String() string {
	switch c {
	case NatOpen:
		return "open"
	case NatFullCone:
		return "full-cone"
	case NatSymmetric:
		return "symmetric"
	default:
		return "unknown"
	}
}

// ObservedAddress is one reflector's report of our external endpoint.
type ObservedAddress struct {
	Reporter      transport.PeerID
	Address       string // "host:port"
	ObservedAt    time.Time
	Confirmations int
}

// AddressObserver keeps a bounded recent window of address observations, one
// live entry per reporter. A repeat report from the same reporter refreshes
// its entry and bumps the confirmation count.
type AddressObserver struct {
	ttl time.Duration
	max int

	window []ObservedAddress
}

func NewAddressObserver(ttl time.Duration, max int) *AddressObserver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if max <= 0 {
		max = 16
	}
	return &AddressObserver{ttl: ttl, max: max}
}

// Record appends or refreshes an observation and evicts expired or excess
// entries (oldest first).
func (o *AddressObserver) Record(reporter transport.PeerID, address string, now time.Time) {
	o.prune(now)

	for i := range o.window {
		if o.window[i].Reporter == reporter {
			o.window[i].Address = address
			o.window[i].ObservedAt = now
			o.window[i].Confirmations++
			return
		}
	}
	o.window = append(o.window, ObservedAddress{
		Reporter:      reporter,
		Address:       address,
		ObservedAt:    now,
		Confirmations: 1,
	})
	if len(o.window) > o.max {
		o.window = o.window[len(o.window)-o.max:]
	}
}

// Primary returns the address with the most occurrences among recent
// observations. Ties break toward the most recently observed address.
func (o *AddressObserver) Primary(now time.Time) (string, bool) {
	o.prune(now)
	if len(o.window) == 0 {
		return "", false
	}

	counts := make(map[string]int)
	latest := make(map[string]time.Time)
	for _, obs := range o.window {
		counts[obs.Address]++
		if obs.ObservedAt.After(latest[obs.Address]) {
			latest[obs.Address] = obs.ObservedAt
		}
	}

	var best string
	for addr := range counts {
		if best == "" {
			best = addr
			continue
		}
		if counts[addr] > counts[best] {
			best = addr
		} else if counts[addr] == counts[best] && latest[addr].After(latest[best]) {
			best = addr
		}
	}
	return best, true
}

// Classify derives the NAT category from the current window:
// no observations -> Unknown; majority equals the local bind -> Open; all
// reflectors agree on one ip:port -> FullCone; one external ip with differing
// ports -> Symmetric; anything else -> Unknown.
//
// The FullCone rule is an optimistic approximation: agreement on a single
// mapping does not prove an unsolicited inbound peer can reach it.
func (o *AddressObserver) Classify(localBind string, now time.Time) NatClassification {
	primary, ok := o.Primary(now)
	if !ok {
		return NatUnknown
	}
	if primary == localBind {
		return NatOpen
	}

	addrs := make(map[string]struct{})
	ips := make(map[string]struct{})
	ports := make(map[string]struct{})
	for _, obs := range o.window {
		addrs[obs.Address] = struct{}{}
		host, port, err := net.SplitHostPort(obs.Address)
		if err != nil {
			return NatUnknown
		}
		ips[host] = struct{}{}
		ports[port] = struct{}{}
	}

	if len(addrs) == 1 {
		return NatFullCone
	}
	if len(ips) == 1 && len(ports) > 1 {
		return NatSymmetric
	}
	return NatUnknown
}

// Window returns the live observations for diagnostics.
func (o *AddressObserver) Window(now time.Time) []ObservedAddress {
	o.prune(now)
	out := make([]ObservedAddress, len(o.window))
	copy(out, o.window)
	return out
}

func (o *AddressObserver) prune(now time.Time) {
	cutoff := now.Add(-o.ttl)
	kept := o.window[:0]
	for _, obs := range o.window {
		if obs.ObservedAt.After(cutoff) {
			kept = append(kept, obs)
		}
	}
	o.window = kept
}
