package mesh

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Treystu/SCMessenger-sub006/pkg/protocol"
)

// PathState is the display-layer view of connectivity: NAT classification,
// the consensus external address, and the paths of in-flight messages.
type PathState struct {
	Classification         NatClassification
	PrimaryExternalAddress string
	ActivePaths            []Path
}

type diagReply struct {
	snapshot *structpb.Struct
	err      error
}

// ExportDiagnostics returns a structured snapshot of engine state for
// display layers and tooling.
func (e *Engine) ExportDiagnostics(ctx context.Context) (*structpb.Struct, error) {
	cmd := cmdDiagnostics{reply: make(chan diagReply, 1)}
	if err := e.submit(ctx, cmd); err != nil {
		return nil, err
	}
	select {
	case r := <-cmd.reply:
		return r.snapshot, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.stopped:
		return nil, ErrShuttingDown
	}
}

// pathState runs inside the loop.
func (e *Engine) pathState() PathState {
	now := e.clk.Now()
	st := PathState{Classification: e.observer.Classify(e.localBind, now)}
	if primary, ok := e.observer.Primary(now); ok {
		st.PrimaryExternalAddress = primary
	}
	for _, m := range e.pending {
		if len(m.currentPath) > 0 {
			st.ActivePaths = append(st.ActivePaths, m.currentPath)
		}
	}
	return st
}

// diagnostics runs inside the loop.
func (e *Engine) diagnostics() diagReply {
	now := e.clk.Now()

	peers := make([]any, 0, e.conns.Len())
	for _, id := range e.conns.Peers() {
		peers = append(peers, string(id))
	}

	reputation := make(map[string]any)
	for id, rec := range e.rep.Snapshot() {
		reputation[string(id)] = map[string]any{
			"score":          e.rep.Score(id, now),
			"success_count":  float64(rec.SuccessCount),
			"failure_count":  float64(rec.FailureCount),
			"avg_latency_ms": rec.AvgLatencyMS,
		}
	}

	observations := make([]any, 0)
	for _, obs := range e.observer.Window(now) {
		observations = append(observations, map[string]any{
			"reporter":      string(obs.Reporter),
			"address":       obs.Address,
			"confirmations": float64(obs.Confirmations),
		})
	}

	relayAccepted, relayRejected, relayDuplicate := e.relay.Counters()
	primary, _ := e.observer.Primary(now)

	snapshot, err := structpb.NewStruct(map[string]any{
		"protocols": []any{
			protocol.TokenAddressReflection,
			protocol.TokenRelay,
			protocol.TokenMessage,
			protocol.TokenHello,
		},
		"connected_peers":    peers,
		"pending_messages":   float64(len(e.pending)),
		"reflections_served": float64(e.reflectionsServed),
		"classification":     e.observer.Classify(e.localBind, now).String(),
		"primary_external":   primary,
		"observations":       observations,
		"reputation":         reputation,
		"relay": map[string]any{
			"accepted":  float64(relayAccepted),
			"rejected":  float64(relayRejected),
			"duplicate": float64(relayDuplicate),
		},
	})
	return diagReply{snapshot: snapshot, err: err}
}
