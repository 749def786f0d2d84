package protocol

import (
	"github.com/Treystu/SCMessenger-sub006/pkg/protocol/codec"
)

// Wire bodies for the three request/response pairs. Each pair travels over an
// established connection and is correlated by the 16-byte header request id.

// ReflectRequest asks a peer to report the requester's externally visible
// address. The request id and protocol version travel in the envelope header.
type ReflectRequest struct{}

// ReflectResponse carries the endpoint the reflector observed for the
// requester's inbound connection, as "host:port" text.
type ReflectResponse struct {
	ObservedAddress string `cbor:"observed_address" json:"observed_address"`
}

// RelayRequest asks a peer to forward an opaque envelope one hop to
// Destination. Relaying is best-effort; the relay performs no retries.
type RelayRequest struct {
	Destination string `cbor:"destination" json:"destination"`
	Envelope    []byte `cbor:"envelope" json:"envelope"`
	MessageID   string `cbor:"message_id" json:"message_id"`
}

// RelayResponse reports whether the relay forwarded the envelope.
type RelayResponse struct {
	Accepted  bool   `cbor:"accepted" json:"accepted"`
	Error     string `cbor:"error,omitempty" json:"error,omitempty"`
	MessageID string `cbor:"message_id" json:"message_id"`
}

// MessageRequest delivers an opaque envelope directly to the destination.
type MessageRequest struct {
	Envelope []byte `cbor:"envelope" json:"envelope"`
}

// MessageResponse acknowledges a direct delivery.
type MessageResponse struct {
	Accepted bool `cbor:"accepted" json:"accepted"`
}

// HelloAnnounce introduces a peer on a fresh session so the temporary
// address-derived id can be rebound to the canonical one. When PublicKey is
// set the announcement is signed and the receiver verifies that the claimed
// id derives from the key; without it the id is an unverified claim.
type HelloAnnounce struct {
	PeerID    string `cbor:"peer_id" json:"peer_id"`
	NodeName  string `cbor:"node_name,omitempty" json:"node_name,omitempty"`
	PublicKey []byte `cbor:"public_key,omitempty" json:"public_key,omitempty"`
	Nonce     []byte `cbor:"nonce,omitempty" json:"nonce,omitempty"`
	Timestamp int64  `cbor:"ts_unix_ms,omitempty" json:"ts_unix_ms,omitempty"`
	Signature []byte `cbor:"signature,omitempty" json:"signature,omitempty"`
}

// NewRequest builds a request envelope of type t with a fresh correlation id
// and a CBOR-encoded body.
func NewRequest(t uint8, reg *codec.Registry, v any) (Envelope, error) {
	corr, err := NewCorrelation()
	if err != nil {
		return Envelope{}, err
	}
	return NewRequestWithID(t, corr, reg, v)
}

// NewRequestWithID builds a request envelope with an explicit correlation id.
func NewRequestWithID(t uint8, corr [16]byte, reg *codec.Registry, v any) (Envelope, error) {
	b, err := EncodeBody(reg, FormatCBOR, v)
	if err != nil {
		return Envelope{}, err
	}
	e := Envelope{Header: Header{Version: Version, Type: t, Correlation: corr}, Payload: b}
	e.Header.PayloadLen = uint32(len(b))
	return e, nil
}

// NewResponse builds the response envelope paired with a request header,
// echoing its correlation id.
func NewResponse(req Header, reg *codec.Registry, v any) (Envelope, error) {
	b, err := EncodeBody(reg, FormatCBOR, v)
	if err != nil {
		return Envelope{}, err
	}
	e := Envelope{
		Header:  Header{Version: Version, Type: ResponseType(req.Type), Correlation: req.Correlation},
		Payload: b,
	}
	e.Header.PayloadLen = uint32(len(b))
	return e, nil
}

// NewFailureResponse builds an empty-bodied response with FlagFailure set.
// Used to answer malformed or version-mismatched requests without tearing
// down the connection.
func NewFailureResponse(req Header) Envelope {
	t := ResponseType(req.Type)
	if t == MsgUnknown {
		// Unknown request type still gets a correlated answer.
		t = req.Type
	}
	return Envelope{Header: Header{Version: Version, Type: t, Flags: FlagFailure, Correlation: req.Correlation}}
}
