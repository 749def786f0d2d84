package protocol

// Message types (fits in uint8). Requests are odd, responses even, so a
// response type is always request type + 1.
const (
	MsgUnknown uint8 = iota
	MsgReflectRequest
	MsgReflectResponse
	MsgRelayRequest
	MsgRelayResponse
	MsgMessageRequest
	MsgMessageResponse
	MsgHelloRequest
	MsgHelloResponse
)

// Protocol tokens, stable across versions of the node software. The trailing
// component is the protocol revision.
const (
	TokenAddressReflection = "/mesh/address-reflection/1"
	TokenRelay             = "/mesh/relay/1"
	TokenMessage           = "/mesh/message/1"
	TokenHello             = "/mesh/hello/1"
)

// Flags bitmask (uint32)
const (
	// FlagFailure marks a well-formed failure response to a malformed or
	// unsupported request; the connection remains usable.
	FlagFailure uint32 = 1 << 0
)

// TokenFor maps a message type to its protocol token.
func TokenFor(t uint8) string {
	switch t {
	case MsgReflectRequest, MsgReflectResponse:
		return TokenAddressReflection
	case MsgRelayRequest, MsgRelayResponse:
		return TokenRelay
	case MsgMessageRequest, MsgMessageResponse:
		return TokenMessage
	case MsgHelloRequest, MsgHelloResponse:
		return TokenHello
	default:
		return ""
	}
}

// IsResponse reports whether t is a response type.
func IsResponse(t uint8) bool {
	return t == MsgReflectResponse || t == MsgRelayResponse || t == MsgMessageResponse || t == MsgHelloResponse
}

// ResponseType returns the response type paired with a request type.
func ResponseType(req uint8) uint8 {
	switch req {
	case MsgReflectRequest, MsgRelayRequest, MsgMessageRequest, MsgHelloRequest:
		return req + 1
	default:
		return MsgUnknown
	}
}

// ContentType hints for payload decoding; not serialized in the header.
const (
	ContentUnknown = "application/octet-stream"
	ContentCBOR    = "application/cbor"
	ContentJSON    = "application/json"
	ContentProto   = "application/x-protobuf"
)
