package mesh

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Treystu/SCMessenger-sub006/pkg/protocol"
	"github.com/Treystu/SCMessenger-sub006/pkg/protocol/codec"
	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

func TestInboundReflectReportsRemoteAddr(t *testing.T) {
	reg := codec.NewRegistry()
	fn := newFakeNetwork(acceptDirect(reg))
	e := startEngine(t, fn)

	req, err := protocol.NewRequest(protocol.MsgReflectRequest, reg, protocol.ReflectRequest{})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := e.HandleInbound(context.Background(), "peer-x", "198.51.100.7:5555", req)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if resp.Header.Type != protocol.MsgReflectResponse {
		t.Fatalf("response type: got %d", resp.Header.Type)
	}
	if resp.Header.Correlation != req.Header.Correlation {
		t.Fatalf("correlation not echoed")
	}
	var rr protocol.ReflectResponse
	if _, err := protocol.DecodeBody(reg, resp.Payload, &rr); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if rr.ObservedAddress != "198.51.100.7:5555" {
		t.Fatalf("observed address: got %q", rr.ObservedAddress)
	}
}

func TestInboundVersionMismatchAnsweredNotFatal(t *testing.T) {
	reg := codec.NewRegistry()
	fn := newFakeNetwork(acceptDirect(reg))
	e := startEngine(t, fn)

	req, _ := protocol.NewRequest(protocol.MsgReflectRequest, reg, protocol.ReflectRequest{})
	req.Header.Version = 99
	resp, err := e.HandleInbound(context.Background(), "peer-x", "198.51.100.7:5555", req)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if !resp.HasFlag(protocol.FlagFailure) {
		t.Fatalf("expected failure response for version mismatch")
	}

	// The connection stays usable: a well-formed request still works.
	req2, _ := protocol.NewRequest(protocol.MsgReflectRequest, reg, protocol.ReflectRequest{})
	resp2, err := e.HandleInbound(context.Background(), "peer-x", "198.51.100.7:5555", req2)
	if err != nil || resp2.HasFlag(protocol.FlagFailure) {
		t.Fatalf("followup request failed: err=%v flags=%d", err, resp2.Header.Flags)
	}
}

func TestInboundMalformedBodyAnswered(t *testing.T) {
	reg := codec.NewRegistry()
	fn := newFakeNetwork(acceptDirect(reg))
	e := startEngine(t, fn)

	corr, _ := protocol.NewCorrelation()
	req := protocol.Envelope{
		Header:  protocol.Header{Version: protocol.Version, Type: protocol.MsgRelayRequest, Correlation: corr},
		Payload: []byte{0xFF, 0x01, 0x02},
	}
	req.Header.PayloadLen = uint32(len(req.Payload))

	resp, err := e.HandleInbound(context.Background(), "peer-x", "198.51.100.7:5555", req)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if !resp.HasFlag(protocol.FlagFailure) {
		t.Fatalf("expected failure response for malformed body")
	}
}

func TestInboundRelayForwards(t *testing.T) {
	reg := codec.NewRegistry()
	var forwarded []byte
	fn := newFakeNetwork(func(peer transport.PeerID, env protocol.Envelope) (protocol.Envelope, error) {
		if peer != "peer-d" || env.Header.Type != protocol.MsgMessageRequest {
			return protocol.Envelope{}, errors.New("unexpected forward target")
		}
		var mr protocol.MessageRequest
		if _, err := protocol.DecodeBody(reg, env.Payload, &mr); err != nil {
			return protocol.Envelope{}, err
		}
		forwarded = mr.Envelope
		return protocol.NewResponse(env.Header, reg, protocol.MessageResponse{Accepted: true})
	})
	e := startEngine(t, fn)

	e.PeerConnected("peer-d", transport.Outbound)
	waitConnected(t, e, "peer-d")

	req, _ := protocol.NewRequest(protocol.MsgRelayRequest, reg, protocol.RelayRequest{
		Destination: "peer-d",
		Envelope:    []byte("opaque-bytes"),
		MessageID:   "m-1",
	})
	resp, err := e.HandleInbound(context.Background(), "peer-s", "198.51.100.7:5555", req)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	var rr protocol.RelayResponse
	if _, err := protocol.DecodeBody(reg, resp.Payload, &rr); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if !rr.Accepted {
		t.Fatalf("relay should accept, got %+v", rr)
	}
	if !bytes.Equal(forwarded, []byte("opaque-bytes")) {
		t.Fatalf("forwarded payload: got %q", forwarded)
	}
}

func TestInboundRelayUnreachableDestination(t *testing.T) {
	reg := codec.NewRegistry()
	fn := newFakeNetwork(acceptDirect(reg))
	e := startEngine(t, fn)

	req, _ := protocol.NewRequest(protocol.MsgRelayRequest, reg, protocol.RelayRequest{
		Destination: "nobody",
		Envelope:    []byte("x"),
		MessageID:   "m-2",
	})
	resp, err := e.HandleInbound(context.Background(), "peer-s", "198.51.100.7:5555", req)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	var rr protocol.RelayResponse
	if _, err := protocol.DecodeBody(reg, resp.Payload, &rr); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if rr.Accepted || rr.Error != "destination unreachable" {
		t.Fatalf("relay response: got %+v", rr)
	}
}

func TestInboundMessageDeliveredToHandler(t *testing.T) {
	reg := codec.NewRegistry()
	got := make(chan []byte, 1)
	fn := newFakeNetwork(acceptDirect(reg))
	e := startEngine(t, fn, WithMessageHandler(func(from transport.PeerID, payload []byte) {
		got <- payload
	}))

	req, _ := protocol.NewRequest(protocol.MsgMessageRequest, reg, protocol.MessageRequest{Envelope: []byte("ciphertext")})
	resp, err := e.HandleInbound(context.Background(), "peer-s", "198.51.100.7:5555", req)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	var mr protocol.MessageResponse
	if _, err := protocol.DecodeBody(reg, resp.Payload, &mr); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if !mr.Accepted {
		t.Fatalf("message should be accepted")
	}
	select {
	case p := <-got:
		if !bytes.Equal(p, []byte("ciphertext")) {
			t.Fatalf("handler payload: got %q", p)
		}
	case <-time.After(time.Second):
		t.Fatalf("handler never invoked")
	}
}

func TestDiagnosticsSnapshot(t *testing.T) {
	reg := codec.NewRegistry()
	fn := newFakeNetwork(acceptDirect(reg))
	e := startEngine(t, fn)

	e.PeerConnected("peer-a", transport.Inbound)
	waitConnected(t, e, "peer-a")

	d, err := e.ExportDiagnostics(context.Background())
	if err != nil {
		t.Fatalf("ExportDiagnostics: %v", err)
	}
	if d.Fields["classification"].GetStringValue() != "unknown" {
		t.Fatalf("classification: got %q", d.Fields["classification"].GetStringValue())
	}
	if d.Fields["pending_messages"].GetNumberValue() != 0 {
		t.Fatalf("pending: got %v", d.Fields["pending_messages"].GetNumberValue())
	}

	want := map[string]bool{
		protocol.TokenAddressReflection: false,
		protocol.TokenRelay:             false,
		protocol.TokenMessage:           false,
		protocol.TokenHello:             false,
	}
	for _, v := range d.Fields["protocols"].GetListValue().GetValues() {
		want[v.GetStringValue()] = true
	}
	for token, seen := range want {
		if !seen {
			t.Fatalf("protocol %s missing from diagnostics", token)
		}
	}
}
