package netstack

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Treystu/SCMessenger-sub006/pkg/handshake"
	"github.com/Treystu/SCMessenger-sub006/pkg/protocol"
	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

const inboundTimeout = 10 * time.Second

// ServeSession runs the read loop of one session: announces ourselves,
// rebinds the peer id once the other side announces, and dispatches frames.
// Blocks until the session dies or ctx is canceled.
func (st *Stack) ServeSession(ctx context.Context, s transport.Session) {
	stream, err := s.OpenStream(ctx)
	if err != nil {
		zap.L().Warn("open stream", zap.Error(err))
		_ = s.Close()
		return
	}

	cur := s.Peer().ID
	announced := false
	defer func() {
		st.mgr.RemoveSession(cur, s)
		_ = s.Close()
		if announced {
			st.handler.PeerDisconnected(cur)
		}
	}()

	if err := st.sendHello(stream); err != nil {
		zap.L().Warn("send hello", zap.Error(err))
		return
	}

	for {
		buf, err := stream.RecvBytes()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				zap.L().Debug("session closed", zap.String("peer", string(cur)), zap.Error(err))
			}
			return
		}
		var env protocol.Envelope
		if err := env.DecodeFrame(buf); err != nil {
			zap.L().Warn("malformed frame", zap.String("peer", string(cur)), zap.Error(err))
			continue
		}

		switch {
		case env.Header.Type == protocol.MsgHelloRequest:
			newID, ok := st.handleHello(stream, env)
			if !ok {
				continue
			}
			if newID != cur {
				if st.mgr.RebindPeer(cur, newID) {
					zap.L().Info("peer identified",
						zap.String("old_id", string(cur)),
						zap.String("new_id", string(newID)))
				}
				cur = newID
			}
			if !announced {
				announced = true
				st.handler.PeerConnected(cur, s.Direction())
			}

		case protocol.IsResponse(env.Header.Type) || env.HasFlag(protocol.FlagFailure):
			if !st.fulfill(env) {
				zap.L().Debug("uncorrelated response dropped",
					zap.String("peer", string(cur)),
					zap.String("protocol", protocol.TokenFor(env.Header.Type)))
			}

		default:
			// Inbound request: answer off-loop so slow handlers do not stall
			// the read side. SendBytes is safe for concurrent writers.
			go st.respond(ctx, stream, cur, s.RemoteAddr().String(), env)
		}
	}
}

func (st *Stack) respond(ctx context.Context, stream transport.Stream, peer transport.PeerID, remoteAddr string, env protocol.Envelope) {
	hctx, cancel := context.WithTimeout(ctx, inboundTimeout)
	defer cancel()

	resp, err := st.handler.HandleInbound(hctx, peer, remoteAddr, env)
	if err != nil {
		zap.L().Warn("inbound request failed",
			zap.String("peer", string(peer)),
			zap.String("protocol", protocol.TokenFor(env.Header.Type)),
			zap.Uint8("type", env.Header.Type),
			zap.Error(err))
		return
	}
	frame, err := resp.EncodeFrame()
	if err != nil {
		zap.L().Warn("encode response", zap.Error(err))
		return
	}
	if err := stream.SendBytes(frame); err != nil {
		zap.L().Debug("send response", zap.String("peer", string(peer)), zap.Error(err))
	}
}

func (st *Stack) sendHello(stream transport.Stream) error {
	announce := protocol.HelloAnnounce{
		PeerID:   string(st.localID),
		NodeName: st.nodeName,
	}
	if st.identity != nil {
		signed, err := handshake.BuildAnnounce(st.nodeName, st.identity)
		if err != nil {
			return err
		}
		announce = signed
	}
	env, err := protocol.NewRequest(protocol.MsgHelloRequest, st.reg, announce)
	if err != nil {
		return err
	}
	frame, err := env.EncodeFrame()
	if err != nil {
		return err
	}
	return stream.SendBytes(frame)
}

// handleHello decodes a peer announcement and acks it. Returns the announced
// peer id and whether it was usable. Announcements carrying a public key must
// verify; bare claims are accepted for peers without a signing identity.
func (st *Stack) handleHello(stream transport.Stream, env protocol.Envelope) (transport.PeerID, bool) {
	var hello protocol.HelloAnnounce
	if _, err := protocol.DecodeBody(st.reg, env.Payload, &hello); err != nil {
		zap.L().Warn("malformed hello", zap.Error(err))
		st.sendFailure(stream, env)
		return "", false
	}
	if hello.PeerID == "" {
		st.sendFailure(stream, env)
		return "", false
	}
	pid := transport.PeerID(hello.PeerID)
	if len(hello.PublicKey) > 0 {
		verified, err := handshake.VerifyAnnounce(hello, 0)
		if err != nil {
			zap.L().Warn("hello verification failed",
				zap.String("claimed", hello.PeerID), zap.Error(err))
			st.sendFailure(stream, env)
			return "", false
		}
		pid = verified
	}
	ack, err := protocol.NewResponse(env.Header, st.reg, protocol.HelloAnnounce{
		PeerID:   string(st.localID),
		NodeName: st.nodeName,
	})
	if err == nil {
		if frame, ferr := ack.EncodeFrame(); ferr == nil {
			_ = stream.SendBytes(frame)
		}
	}
	return pid, true
}

func (st *Stack) sendFailure(stream transport.Stream, req protocol.Envelope) {
	resp := protocol.NewFailureResponse(req.Header)
	if frame, err := resp.EncodeFrame(); err == nil {
		_ = stream.SendBytes(frame)
	}
}
