package mesh

import (
	"testing"
	"time"

	"github.com/Treystu/SCMessenger-sub006/pkg/protocol"
	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

func TestRelayDecideUnreachable(t *testing.T) {
	r := NewRelayCoordinator()
	conns := NewConnectionTracker()

	d := r.Decide(conns, protocol.RelayRequest{Destination: "dest", MessageID: "m1"})
	if d.Forward {
		t.Fatalf("should not forward to disconnected destination")
	}
	if d.Response.Accepted || d.Response.Error != "destination unreachable" {
		t.Fatalf("response: got %+v", d.Response)
	}
}

func TestRelayDecideForward(t *testing.T) {
	r := NewRelayCoordinator()
	conns := NewConnectionTracker()
	conns.Add("dest", transport.Inbound, time.Now())

	d := r.Decide(conns, protocol.RelayRequest{Destination: "dest", MessageID: "m1"})
	if !d.Forward {
		t.Fatalf("should forward to connected destination, got %+v", d.Response)
	}
}

func TestRelayDuplicateAfterForward(t *testing.T) {
	r := NewRelayCoordinator()
	conns := NewConnectionTracker()
	conns.Add("dest", transport.Inbound, time.Now())

	req := protocol.RelayRequest{Destination: "dest", MessageID: "m1"}
	if d := r.Decide(conns, req); !d.Forward {
		t.Fatalf("first request should forward")
	}
	r.MarkForwarded("m1")

	d := r.Decide(conns, req)
	if d.Forward {
		t.Fatalf("duplicate should not be forwarded again")
	}
	if !d.Response.Accepted {
		t.Fatalf("duplicate should be acknowledged, got %+v", d.Response)
	}
}

func TestRelayRetryAfterFailedForward(t *testing.T) {
	r := NewRelayCoordinator()
	conns := NewConnectionTracker()
	conns.Add("dest", transport.Inbound, time.Now())

	req := protocol.RelayRequest{Destination: "dest", MessageID: "m1"}
	if d := r.Decide(conns, req); !d.Forward {
		t.Fatalf("first request should forward")
	}
	// forward failed: id is not marked, so a retry forwards again
	if d := r.Decide(conns, req); !d.Forward {
		t.Fatalf("retry after failed forward should forward again")
	}
}
