// Package sign holds the signing primitives for session announcements.
package sign

import (
	"crypto/ed25519"
	"encoding/base64"
	"strconv"
	"strings"
)

// Ed25519 signs data with the node identity key.
func Ed25519(priv ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(priv, data)
}

// VerifyEd25519 checks an ed25519 signature.
func VerifyEd25519(pub ed25519.PublicKey, data, sig []byte) bool {
	return ed25519.Verify(pub, data, sig)
}

// AnnounceTranscript builds the canonical byte string signed in a hello
// announcement. Format:
//
//	meshwire:hello|v=1|ts=<unix_ms>|pub=<b64url>|nonce=<b64url>|name=<nodeName>
func AnnounceTranscript(pub, nonce []byte, tsUnixMS int64, nodeName string) []byte {
	b64 := base64.RawURLEncoding
	var sb strings.Builder
	sb.Grow(64 + len(nodeName))
	sb.WriteString("meshwire:hello|v=1|ts=")
	sb.WriteString(strconv.FormatInt(tsUnixMS, 10))
	sb.WriteString("|pub=")
	sb.WriteString(b64.EncodeToString(pub))
	sb.WriteString("|nonce=")
	sb.WriteString(b64.EncodeToString(nonce))
	sb.WriteString("|name=")
	sb.WriteString(nodeName)
	return []byte(sb.String())
}
