// Package handshake builds and verifies signed session announcements. An
// announcement binds the node's public key to its claimed peer id, node name,
// a fresh nonce and a timestamp.
package handshake

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"time"

	"github.com/Treystu/SCMessenger-sub006/pkg/crypto/sign"
	"github.com/Treystu/SCMessenger-sub006/pkg/protocol"
	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

// DefaultMaxSkew bounds announcement timestamp age in either direction.
const DefaultMaxSkew = 5 * time.Minute

var (
	ErrBadKey       = errors.New("bad public key length")
	ErrBadSignature = errors.New("announcement signature invalid")
	ErrStale        = errors.New("announcement timestamp out of bounds")
	ErrIDMismatch   = errors.New("claimed peer id does not match public key")
)

// BuildAnnounce constructs a signed announcement for the given identity key.
func BuildAnnounce(nodeName string, priv ed25519.PrivateKey) (protocol.HelloAnnounce, error) {
	pub := priv.Public().(ed25519.PublicKey)
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return protocol.HelloAnnounce{}, err
	}
	a := protocol.HelloAnnounce{
		PeerID:    string(transport.CanonicalPeerIDFromPubKey("ed25519", pub)),
		NodeName:  nodeName,
		PublicKey: append([]byte(nil), pub...),
		Nonce:     nonce,
		Timestamp: time.Now().UnixMilli(),
	}
	a.Signature = sign.Ed25519(priv, sign.AnnounceTranscript(a.PublicKey, a.Nonce, a.Timestamp, a.NodeName))
	return a, nil
}

// VerifyAnnounce checks the signature, freshness and id binding of a signed
// announcement and returns the verified peer id.
func VerifyAnnounce(a protocol.HelloAnnounce, maxSkew time.Duration) (transport.PeerID, error) {
	if len(a.PublicKey) != ed25519.PublicKeySize {
		return "", ErrBadKey
	}
	if len(a.Signature) != ed25519.SignatureSize {
		return "", ErrBadSignature
	}
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	dt := time.Now().UnixMilli() - a.Timestamp
	if dt > maxSkew.Milliseconds() || dt < -maxSkew.Milliseconds() {
		return "", ErrStale
	}
	msg := sign.AnnounceTranscript(a.PublicKey, a.Nonce, a.Timestamp, a.NodeName)
	if !sign.VerifyEd25519(ed25519.PublicKey(a.PublicKey), msg, a.Signature) {
		return "", ErrBadSignature
	}
	pid := transport.CanonicalPeerIDFromPubKey("ed25519", a.PublicKey)
	if a.PeerID != "" && a.PeerID != string(pid) {
		return "", ErrIDMismatch
	}
	return pid, nil
}
