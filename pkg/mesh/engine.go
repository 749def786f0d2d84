// Package mesh is the transport and delivery core: connection tracking,
// peer-assisted NAT classification, reputation-weighted path selection,
// single-hop relaying, and retried delivery of opaque envelopes. All mutable
// state is owned by one event loop; callers talk to it through commands with
// one-shot reply channels.
package mesh

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Treystu/SCMessenger-sub006/pkg/config"
	"github.com/Treystu/SCMessenger-sub006/pkg/protocol"
	"github.com/Treystu/SCMessenger-sub006/pkg/protocol/codec"
	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

// Network sends one request envelope to a peer and waits for the correlated
// response. Implementations time out via ctx.
type Network interface {
	Request(ctx context.Context, peer transport.PeerID, env protocol.Envelope) (protocol.Envelope, error)
}

// NetworkFunc adapts a function to the Network interface.
type NetworkFunc func(ctx context.Context, peer transport.PeerID, env protocol.Envelope) (protocol.Envelope, error)

func (f NetworkFunc) Request(ctx context.Context, peer transport.PeerID, env protocol.Envelope) (protocol.Envelope, error) {
	return f(ctx, peer, env)
}

// Storage receives outbound persistence hooks. The in-memory pending set
// stays authoritative for the life of the process; storage only mirrors it.
type Storage interface {
	EnqueueOutbound(messageID, destination string, payload []byte) error
	MarkDelivered(messageID string, attempts uint32) error
	MarkFailed(messageID string, attempts uint32, reason string) error
}

// MessageHandler receives inbound direct-message payloads. Called outside the
// engine loop; the payload is the caller's to keep.
type MessageHandler func(from transport.PeerID, payload []byte)

// Engine is the single-owner event loop coordinating all mesh components.
type Engine struct {
	cfg config.EngineConfig
	net Network
	reg *codec.Registry
	clk clock.Clock
	log *zap.Logger

	conns    *ConnectionTracker
	observer *AddressObserver
	rep      *ReputationTracker
	selector *PathSelector
	relay    *RelayCoordinator

	storage   Storage
	onMessage MessageHandler
	localBind string

	pending            map[string]*pendingMessage
	pendingReflections map[[16]byte]transport.PeerID
	reflectionsServed  uint64

	cmdCh   chan any
	evCh    chan any
	stopCh  chan struct{}
	stopped chan struct{}
}

type Option func(*Engine)

// WithClock injects a clock; tests use clock.NewMock.
func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clk = c } }

// WithStorage wires the outbound persistence hooks.
func WithStorage(s Storage) Option { return func(e *Engine) { e.storage = s } }

// WithMessageHandler sets the inbound direct-message callback.
func WithMessageHandler(h MessageHandler) Option { return func(e *Engine) { e.onMessage = h } }

// WithLocalBindAddr sets the local listen address used by NAT classification.
func WithLocalBindAddr(addr string) Option { return func(e *Engine) { e.localBind = addr } }

func NewEngine(cfg config.EngineConfig, net Network, opts ...Option) *Engine {
	e := &Engine{
		cfg:                cfg,
		net:                net,
		reg:                codec.NewRegistry(),
		clk:                clock.New(),
		log:                zap.L().Named("mesh"),
		conns:              NewConnectionTracker(),
		rep:                NewReputationTracker(),
		relay:              NewRelayCoordinator(),
		pending:            make(map[string]*pendingMessage),
		pendingReflections: make(map[[16]byte]transport.PeerID),
		cmdCh:              make(chan any, 64),
		evCh:               make(chan any, 256),
		stopCh:             make(chan struct{}),
		stopped:            make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	e.observer = NewAddressObserver(cfg.ObservationTTL(), cfg.ObservationMax)
	e.selector = NewPathSelector(e.conns, e.rep)
	return e
}

// Start launches the event loop.
func (e *Engine) Start() { go e.loop() }

// Shutdown stops the loop. In-flight deliveries are dropped, not given up;
// their completion channels are closed.
func (e *Engine) Shutdown(ctx context.Context) error {
	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
	}
	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---- Commands ----

type cmdSend struct {
	destination transport.PeerID
	payload     []byte
	reply       chan sendReply
}

type sendReply struct {
	id   string
	done <-chan Outcome
	err  error
}

type cmdReflect struct {
	reply chan reflectReply
}

type reflectReply struct {
	probes int
	err    error
}

type cmdPathState struct {
	reply chan PathState
}

type cmdDiagnostics struct {
	reply chan diagReply
}

// SendMessage queues an opaque payload for delivery to destination and
// returns the message id plus a channel resolved with the terminal Outcome.
// The channel is closed without a value if the engine shuts down first.
func (e *Engine) SendMessage(ctx context.Context, destination transport.PeerID, payload []byte) (string, <-chan Outcome, error) {
	if destination == "" {
		return "", nil, fmt.Errorf("malformed destination identifier")
	}
	cmd := cmdSend{destination: destination, payload: payload, reply: make(chan sendReply, 1)}
	if err := e.submit(ctx, cmd); err != nil {
		return "", nil, err
	}
	select {
	case r := <-cmd.reply:
		return r.id, r.done, r.err
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case <-e.stopped:
		return "", nil, ErrShuttingDown
	}
}

// RequestReflection probes every currently connected peer for our external
// address. Returns the number of probes issued, or ErrNoReflectors when no
// peer is connected. Results aggregate into the observer as they arrive.
func (e *Engine) RequestReflection(ctx context.Context) (int, error) {
	cmd := cmdReflect{reply: make(chan reflectReply, 1)}
	if err := e.submit(ctx, cmd); err != nil {
		return 0, err
	}
	select {
	case r := <-cmd.reply:
		return r.probes, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-e.stopped:
		return 0, ErrShuttingDown
	}
}

// ConnectionPathState snapshots classification, primary external address and
// the paths of in-flight messages.
func (e *Engine) ConnectionPathState(ctx context.Context) (PathState, error) {
	cmd := cmdPathState{reply: make(chan PathState, 1)}
	if err := e.submit(ctx, cmd); err != nil {
		return PathState{}, err
	}
	select {
	case st := <-cmd.reply:
		return st, nil
	case <-ctx.Done():
		return PathState{}, ctx.Err()
	case <-e.stopped:
		return PathState{}, ErrShuttingDown
	}
}

func (e *Engine) submit(ctx context.Context, cmd any) error {
	select {
	case e.cmdCh <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrShuttingDown
	case <-e.stopCh:
		return ErrShuttingDown
	}
}

// ---- Network notifications ----

type evConnected struct {
	peer transport.PeerID
	dir  transport.Direction
}

type evDisconnected struct {
	peer transport.PeerID
}

type evInbound struct {
	peer       transport.PeerID
	remoteAddr string
	env        protocol.Envelope
	reply      chan protocol.Envelope
}

type evSendResult struct {
	id       string
	path     Path
	accepted bool
	reason   string
	err      error
	latency  time.Duration
}

type evReflectResult struct {
	reporter transport.PeerID
	corr     [16]byte
	address  string
	err      error
}

type evRelayForwarded struct {
	messageID string
}

// PeerConnected notifies the engine of a new established link.
func (e *Engine) PeerConnected(peer transport.PeerID, dir transport.Direction) {
	e.post(evConnected{peer: peer, dir: dir})
}

// PeerDisconnected notifies the engine that a link went away.
func (e *Engine) PeerDisconnected(peer transport.PeerID) {
	e.post(evDisconnected{peer: peer})
}

// HandleInbound processes one inbound request envelope and returns the
// response to write back. Safe to call from transport serve goroutines.
func (e *Engine) HandleInbound(ctx context.Context, peer transport.PeerID, remoteAddr string, env protocol.Envelope) (protocol.Envelope, error) {
	ev := evInbound{peer: peer, remoteAddr: remoteAddr, env: env, reply: make(chan protocol.Envelope, 1)}
	select {
	case e.evCh <- ev:
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	case <-e.stopped:
		return protocol.Envelope{}, ErrShuttingDown
	}
	select {
	case resp := <-ev.reply:
		return resp, nil
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	case <-e.stopped:
		return protocol.Envelope{}, ErrShuttingDown
	}
}

func (e *Engine) post(ev any) {
	select {
	case e.evCh <- ev:
	case <-e.stopped:
	}
}

// ---- Event loop ----

func (e *Engine) loop() {
	defer close(e.stopped)

	ticker := e.clk.Ticker(e.cfg.Tick())
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			e.drain()
			return
		case cmd := <-e.cmdCh:
			e.handleCommand(cmd)
		case ev := <-e.evCh:
			e.handleEvent(ev)
		case <-ticker.C:
			e.handleTick(e.clk.Now())
		}
	}
}

// drain abandons in-flight work: completion channels close so waiters
// unblock, but nothing is marked given up.
func (e *Engine) drain() {
	for {
		select {
		case cmd := <-e.cmdCh:
			e.rejectCommand(cmd)
		case <-e.evCh:
		default:
			for _, m := range e.pending {
				close(m.done)
			}
			e.pending = make(map[string]*pendingMessage)
			return
		}
	}
}

func (e *Engine) rejectCommand(cmd any) {
	switch c := cmd.(type) {
	case cmdSend:
		c.reply <- sendReply{err: ErrShuttingDown}
	case cmdReflect:
		c.reply <- reflectReply{err: ErrShuttingDown}
	case cmdPathState:
		c.reply <- PathState{}
	case cmdDiagnostics:
		c.reply <- diagReply{err: ErrShuttingDown}
	}
}

func (e *Engine) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case cmdSend:
		c.reply <- e.startDelivery(c.destination, c.payload)
	case cmdReflect:
		c.reply <- e.startReflection()
	case cmdPathState:
		c.reply <- e.pathState()
	case cmdDiagnostics:
		c.reply <- e.diagnostics()
	default:
		e.log.Warn("unknown command", zap.Any("cmd", cmd))
	}
}

func (e *Engine) handleEvent(ev any) {
	switch v := ev.(type) {
	case evConnected:
		e.conns.Add(v.peer, v.dir, e.clk.Now())
		e.log.Debug("peer connected",
			zap.String("peer", string(v.peer)),
			zap.String("direction", v.dir.String()))
	case evDisconnected:
		e.conns.Remove(v.peer)
		e.log.Debug("peer disconnected", zap.String("peer", string(v.peer)))
	case evInbound:
		e.handleInbound(v)
	case evSendResult:
		e.handleSendResult(v)
	case evReflectResult:
		e.handleReflectResult(v)
	case evRelayForwarded:
		e.relay.MarkForwarded(v.messageID)
	default:
		e.log.Warn("unknown event", zap.Any("event", ev))
	}
}

// ---- Delivery ----

func (e *Engine) startDelivery(destination transport.PeerID, payload []byte) sendReply {
	now := e.clk.Now()
	m := &pendingMessage{
		id:          uuid.NewString(),
		destination: destination,
		payload:     payload,
		state:       stateInitiated,
		pathsTried:  make(map[string]struct{}),
		startedAt:   now,
		done:        make(chan Outcome, 1),
	}
	if e.storage != nil {
		if err := e.storage.EnqueueOutbound(m.id, string(destination), payload); err != nil {
			e.log.Warn("outbox enqueue failed", zap.String("message_id", m.id), zap.Error(err))
		}
	}

	m.paths = e.selector.BestPaths(destination, e.cfg.PathFanout, now)
	if len(m.paths) == 0 {
		e.log.Info("no path to destination",
			zap.String("message_id", m.id),
			zap.String("destination", string(destination)))
		out := Outcome{MessageID: m.id, Status: StatusGivenUp, Reason: ErrNoPath.Error()}
		if e.storage != nil {
			_ = e.storage.MarkFailed(m.id, 0, out.Reason)
		}
		m.done <- out
		return sendReply{id: m.id, done: m.done}
	}

	e.pending[m.id] = m
	e.dispatch(m, now)
	return sendReply{id: m.id, done: m.done}
}

// dispatch fires one attempt along the current candidate path.
func (e *Engine) dispatch(m *pendingMessage, now time.Time) {
	path := m.paths[m.pathIndex]
	m.currentPath = path
	m.state = stateAwaitingResponse
	m.lastAttemptAt = now
	m.pathsTried[path.String()] = struct{}{}

	e.log.Debug("dispatching attempt",
		zap.String("message_id", m.id),
		zap.Uint32("attempt", m.attemptCount),
		zap.String("path", path.String()))
	go e.attempt(m.id, path, m.payload)
}

// attempt runs one network exchange outside the loop and posts the result.
func (e *Engine) attempt(id string, path Path, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout())
	defer cancel()
	start := e.clk.Now()

	var env protocol.Envelope
	var err error
	if path.Direct() {
		env, err = protocol.NewRequest(protocol.MsgMessageRequest, e.reg, protocol.MessageRequest{Envelope: payload})
	} else {
		env, err = protocol.NewRequest(protocol.MsgRelayRequest, e.reg, protocol.RelayRequest{
			Destination: string(path.Destination()),
			Envelope:    payload,
			MessageID:   id,
		})
	}
	if err != nil {
		e.post(evSendResult{id: id, path: path, err: err})
		return
	}

	resp, err := e.net.Request(ctx, path[0], env)
	if err != nil {
		e.post(evSendResult{id: id, path: path, err: err, latency: e.clk.Now().Sub(start)})
		return
	}

	res := evSendResult{id: id, path: path, latency: e.clk.Now().Sub(start)}
	if resp.HasFlag(protocol.FlagFailure) {
		res.reason = "peer rejected request"
	} else if path.Direct() {
		var mr protocol.MessageResponse
		if _, derr := protocol.DecodeBody(e.reg, resp.Payload, &mr); derr != nil {
			res.err = derr
		} else {
			res.accepted = mr.Accepted
		}
	} else {
		var rr protocol.RelayResponse
		if _, derr := protocol.DecodeBody(e.reg, resp.Payload, &rr); derr != nil {
			res.err = derr
		} else {
			res.accepted = rr.Accepted
			res.reason = rr.Error
		}
	}
	e.post(res)
}

func (e *Engine) handleSendResult(ev evSendResult) {
	m := e.pending[ev.id]
	if m == nil || m.state != stateAwaitingResponse {
		return
	}
	now := e.clk.Now()

	if ev.err == nil && ev.accepted {
		e.rep.RecordSuccess(ev.path, ev.latency, now)
		e.log.Info("message delivered",
			zap.String("message_id", m.id),
			zap.Uint32("attempts", m.attemptCount+1),
			zap.String("path", ev.path.String()))
		if e.storage != nil {
			_ = e.storage.MarkDelivered(m.id, m.attemptCount+1)
		}
		m.done <- Outcome{
			MessageID: m.id,
			Status:    StatusDelivered,
			Attempts:  m.attemptCount + 1,
			Latency:   ev.latency,
		}
		delete(e.pending, m.id)
		return
	}

	e.rep.RecordFailure(ev.path, now)
	m.attemptCount++
	if ev.err != nil {
		e.log.Debug("attempt failed",
			zap.String("message_id", m.id),
			zap.Uint32("attempt", m.attemptCount),
			zap.Error(ev.err))
	} else {
		e.log.Debug("attempt rejected",
			zap.String("message_id", m.id),
			zap.Uint32("attempt", m.attemptCount),
			zap.String("reason", ev.reason))
	}

	if int(m.attemptCount) >= e.cfg.MaxAttempts {
		e.giveUp(m, fmt.Sprintf("destination unreachable after %d attempts via %d paths",
			m.attemptCount, len(m.pathsTried)))
		return
	}

	m.pathIndex++
	delay := retryDelay(e.cfg.BaseDelay(), e.cfg.CapDelay(), m.attemptCount)
	m.dueAt = now.Add(delay)
	m.state = stateRetryScheduled
}

// handleTick re-dispatches every retry whose due time has elapsed. This is
// the only retry trigger: one scan per tick instead of one timer per message.
func (e *Engine) handleTick(now time.Time) {
	for _, m := range e.pending {
		if m.state != stateRetryScheduled || m.dueAt.After(now) {
			continue
		}
		if !e.advanceToUsablePath(m, now) {
			e.giveUp(m, ErrNoPath.Error())
			continue
		}
		e.dispatch(m, now)
	}
}

// advanceToUsablePath moves pathIndex to a candidate whose hops are still
// connected, re-querying the selector once when the cached list runs out.
func (e *Engine) advanceToUsablePath(m *pendingMessage, now time.Time) bool {
	for {
		for m.pathIndex < len(m.paths) {
			if e.pathUsable(m.paths[m.pathIndex]) {
				return true
			}
			m.pathIndex++
		}
		fresh := e.selector.BestPaths(m.destination, e.cfg.PathFanout, now)
		if len(fresh) == 0 {
			return false
		}
		m.paths = fresh
		m.pathIndex = 0
		// second pass over the fresh list; selector only returns connected
		// hops so this terminates immediately
	}
}

// pathUsable verifies every hop that must be directly reachable is still
// connected: the destination itself for a direct path, every relay hop
// otherwise.
func (e *Engine) pathUsable(p Path) bool {
	if len(p) == 0 {
		return false
	}
	if p.Direct() {
		return e.conns.IsConnected(p[0])
	}
	for _, hop := range p[:len(p)-1] {
		if !e.conns.IsConnected(hop) {
			return false
		}
	}
	return true
}

func (e *Engine) giveUp(m *pendingMessage, reason string) {
	e.log.Info("giving up on message",
		zap.String("message_id", m.id),
		zap.Uint32("attempts", m.attemptCount),
		zap.String("reason", reason))
	if e.storage != nil {
		_ = e.storage.MarkFailed(m.id, m.attemptCount, reason)
	}
	m.done <- Outcome{
		MessageID: m.id,
		Status:    StatusGivenUp,
		Attempts:  m.attemptCount,
		Reason:    reason,
	}
	delete(e.pending, m.id)
}

// ---- Reflection ----

func (e *Engine) startReflection() reflectReply {
	reflectors := e.conns.Peers()
	if len(reflectors) == 0 {
		return reflectReply{err: ErrNoReflectors}
	}
	probes := 0
	for _, peer := range reflectors {
		corr, err := protocol.NewCorrelation()
		if err != nil {
			return reflectReply{probes: probes, err: err}
		}
		e.pendingReflections[corr] = peer
		probes++
		go e.probeReflector(peer, corr)
	}
	return reflectReply{probes: probes}
}

func (e *Engine) probeReflector(peer transport.PeerID, corr [16]byte) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout())
	defer cancel()

	env, err := protocol.NewRequestWithID(protocol.MsgReflectRequest, corr, e.reg, protocol.ReflectRequest{})
	if err != nil {
		e.post(evReflectResult{reporter: peer, corr: corr, err: err})
		return
	}
	resp, err := e.net.Request(ctx, peer, env)
	if err != nil {
		e.post(evReflectResult{reporter: peer, corr: corr, err: err})
		return
	}
	if resp.HasFlag(protocol.FlagFailure) {
		e.post(evReflectResult{reporter: peer, corr: corr, err: fmt.Errorf("reflector rejected request")})
		return
	}
	var rr protocol.ReflectResponse
	if _, derr := protocol.DecodeBody(e.reg, resp.Payload, &rr); derr != nil {
		e.post(evReflectResult{reporter: peer, corr: corr, err: derr})
		return
	}
	e.post(evReflectResult{reporter: peer, corr: resp.Header.Correlation, address: rr.ObservedAddress})
}

func (e *Engine) handleReflectResult(ev evReflectResult) {
	reporter, ok := e.pendingReflections[ev.corr]
	if !ok {
		// Unrecognized request id: ignore without disturbing other probes.
		e.log.Debug("ignoring uncorrelated reflection result")
		return
	}
	delete(e.pendingReflections, ev.corr)

	if ev.err != nil {
		e.log.Debug("reflection probe failed",
			zap.String("reflector", string(reporter)),
			zap.Error(ev.err))
		return
	}
	e.observer.Record(reporter, ev.address, e.clk.Now())
	e.log.Debug("address observation recorded",
		zap.String("reflector", string(reporter)),
		zap.String("observed", ev.address))
}

// ---- Inbound protocol handling ----

func (e *Engine) handleInbound(ev evInbound) {
	h := ev.env.Header
	if h.Version != protocol.Version {
		e.log.Warn("version mismatch on inbound request",
			zap.String("peer", string(ev.peer)),
			zap.Uint8("version", h.Version))
		ev.reply <- protocol.NewFailureResponse(h)
		return
	}

	switch h.Type {
	case protocol.MsgReflectRequest:
		e.reflectionsServed++
		resp, err := protocol.NewResponse(h, e.reg, protocol.ReflectResponse{ObservedAddress: ev.remoteAddr})
		if err != nil {
			ev.reply <- protocol.NewFailureResponse(h)
			return
		}
		ev.reply <- resp

	case protocol.MsgRelayRequest:
		var req protocol.RelayRequest
		if _, err := protocol.DecodeBody(e.reg, ev.env.Payload, &req); err != nil {
			e.log.Warn("malformed relay request",
				zap.String("peer", string(ev.peer)), zap.Error(err))
			ev.reply <- protocol.NewFailureResponse(h)
			return
		}
		d := e.relay.Decide(e.conns, req)
		if !d.Forward {
			resp, err := protocol.NewResponse(h, e.reg, d.Response)
			if err != nil {
				ev.reply <- protocol.NewFailureResponse(h)
				return
			}
			ev.reply <- resp
			return
		}
		go e.forwardRelay(ev, req)

	case protocol.MsgMessageRequest:
		var req protocol.MessageRequest
		if _, err := protocol.DecodeBody(e.reg, ev.env.Payload, &req); err != nil {
			e.log.Warn("malformed message request",
				zap.String("peer", string(ev.peer)), zap.Error(err))
			ev.reply <- protocol.NewFailureResponse(h)
			return
		}
		if e.onMessage != nil {
			go e.onMessage(ev.peer, req.Envelope)
		}
		resp, err := protocol.NewResponse(h, e.reg, protocol.MessageResponse{Accepted: true})
		if err != nil {
			ev.reply <- protocol.NewFailureResponse(h)
			return
		}
		ev.reply <- resp

	default:
		e.log.Warn("unsupported inbound request type",
			zap.String("peer", string(ev.peer)),
			zap.Uint8("type", h.Type))
		ev.reply <- protocol.NewFailureResponse(h)
	}
}

// forwardRelay pushes the envelope one hop and answers the requester with
// the forward outcome. No relay-side retries.
func (e *Engine) forwardRelay(ev evInbound, req protocol.RelayRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout())
	defer cancel()

	result := protocol.RelayResponse{MessageID: req.MessageID}
	fwd, err := protocol.NewRequest(protocol.MsgMessageRequest, e.reg, protocol.MessageRequest{Envelope: req.Envelope})
	if err == nil {
		var resp protocol.Envelope
		resp, err = e.net.Request(ctx, transport.PeerID(req.Destination), fwd)
		if err == nil {
			var mr protocol.MessageResponse
			if _, derr := protocol.DecodeBody(e.reg, resp.Payload, &mr); derr != nil {
				err = derr
			} else if !mr.Accepted {
				err = fmt.Errorf("destination did not accept")
			}
		}
	}
	if err != nil {
		result.Accepted = false
		result.Error = "destination unreachable"
		e.log.Debug("relay forward failed",
			zap.String("destination", req.Destination),
			zap.String("message_id", req.MessageID),
			zap.Error(err))
	} else {
		result.Accepted = true
		e.post(evRelayForwarded{messageID: req.MessageID})
	}

	out, rerr := protocol.NewResponse(ev.env.Header, e.reg, result)
	if rerr != nil {
		out = protocol.NewFailureResponse(ev.env.Header)
	}
	select {
	case ev.reply <- out:
	case <-e.stopped:
	}
}
