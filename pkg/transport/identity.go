package transport

import (
	"fmt"
	"net"
	"strings"

	"github.com/mr-tron/base58"
)

// MutablePeer is an optional interface that Sessions can implement to allow
// updating the peer identity after handshake/authentication.
type MutablePeer interface {
	SetPeer(PeerInfo)
}

// TempPeerID builds a temporary peer id from transport kind and remote address.
// It is suitable to use before an authenticated handshake completes.
func TempPeerID(kind Kind, addr net.Addr) PeerID {
	if addr == nil {
		return PeerID(fmt.Sprintf("temp:%s:unknown", kind))
	}
	return PeerID(fmt.Sprintf("temp:%s:%s", kind, addr.String()))
}

// CanonicalPeerIDFromPubKey constructs a canonical peer id from public key bytes.
// The format is: pk:<alg>:<base58(pubkey)>
// Example: pk:ed25519:4XTTM...
func CanonicalPeerIDFromPubKey(alg string, pub []byte) PeerID {
	alg = strings.ToLower(strings.TrimSpace(alg))
	return PeerID("pk:" + alg + ":" + base58.Encode(pub))
}
