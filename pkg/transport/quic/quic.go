// Package quic implements QUIC-based sessions with length-prefixed frames on
// a single bidirectional control stream (opened by the dialer; accepted by
// the listener side).
package quic

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

const alpnToken = "meshwire"

type Transport struct {
	tlsConf  *tls.Config
	quicConf *quicgo.Config
}

func New() *Transport {
	// Ephemeral self-signed certificate for the server side; identity is
	// verified at the application layer, not by TLS.
	cert, _ := selfSignedCert()
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpnToken},
		MinVersion:   tls.VersionTLS13,
	}
	return &Transport{tlsConf: tlsConf, quicConf: &quicgo.Config{}}
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	ql := &listener{l: l, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
	go ql.acceptLoop(ctx)
	go func() { <-ctx.Done(); _ = ql.Close() }()
	return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer transport.PeerInfo) (transport.Session, error) {
	tlsClient := &tls.Config{
		InsecureSkipVerify: true, // NOTE: identity is verified at application layer
		NextProtos:         []string{alpnToken},
		MinVersion:         tls.VersionTLS13,
	}
	c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
	if err != nil {
		return nil, err
	}
	s := &session{
		peer:          peer,
		dir:           transport.Outbound,
		c:             c,
		establishedAt: time.Now(),
	}
	go func() { <-ctx.Done(); _ = s.Close() }()
	return s, nil
}

// ---- Listener ----

type listener struct {
	l       *quicgo.Listener
	newCh   chan *session
	closeCh chan struct{}
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("quic listener closed")
	case s := <-l.newCh:
		return s, nil
	}
}

func (l *listener) Close() error {
	select {
	case <-l.closeCh:
	default:
		close(l.closeCh)
	}
	return l.l.Close()
}

func (l *listener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.l.Accept(ctx)
		if err != nil {
			return
		}
		raddr := conn.RemoteAddr()
		s := &session{
			peer:          transport.PeerInfo{ID: transport.TempPeerID(transport.KindQUIC, raddr), Addr: raddr.String(), Reachable: true},
			dir:           transport.Inbound,
			c:             conn,
			establishedAt: time.Now(),
		}
		select {
		case l.newCh <- s:
		default:
			_ = s.Close()
		}
	}
}

// ---- Session / stream ----

type session struct {
	peer transport.PeerInfo
	dir  transport.Direction
	c    quicgo.Connection

	establishedAt time.Time
	lastSeen      time.Time

	mu   sync.Mutex
	ctrl *qstream
}

func (s *session) Peer() transport.PeerInfo       { return s.peer }
func (s *session) SetPeer(pi transport.PeerInfo)  { s.peer = pi }
func (s *session) TransportKind() transport.Kind  { return transport.KindQUIC }
func (s *session) Direction() transport.Direction { return s.dir }
func (s *session) LocalAddr() net.Addr            { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr           { return s.c.RemoteAddr() }

func (s *session) OpenStream(ctx context.Context) (transport.Stream, error) {
	s.mu.Lock()
	if s.ctrl != nil {
		st := s.ctrl
		s.mu.Unlock()
		return st, nil
	}
	s.mu.Unlock()

	var qs quicgo.Stream
	var err error
	if s.dir == transport.Inbound {
		qs, err = s.c.AcceptStream(ctx)
	} else {
		qs, err = s.c.OpenStreamSync(ctx)
	}
	if err != nil {
		return nil, err
	}
	st := &qstream{qs: qs, br: bufio.NewReader(qs), bw: bufio.NewWriter(qs), parent: s}
	s.mu.Lock()
	s.ctrl = st
	s.mu.Unlock()
	return st, nil
}

func (s *session) Quality() transport.Quality {
	return transport.Quality{EstablishedAt: s.establishedAt, LastSeen: s.lastSeen}
}

func (s *session) Close() error {
	return s.c.CloseWithError(0, "")
}

// qstream frames the QUIC bidirectional stream with u32 LE lengths.
type qstream struct {
	mu     sync.Mutex
	qs     quicgo.Stream
	br     *bufio.Reader
	bw     *bufio.Writer
	parent *session
}

func (st *qstream) SendBytes(b []byte) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := st.bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := st.bw.Write(b); err != nil {
		return err
	}
	if err := st.bw.Flush(); err != nil {
		return err
	}
	st.parent.lastSeen = time.Now()
	return nil
}

func (st *qstream) RecvBytes() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(st.br, lenbuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(lenbuf[:]))
	if n < 0 || n > (1<<24) {
		return nil, errors.New("invalid frame size")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(st.br, buf); err != nil {
		return nil, err
	}
	st.parent.lastSeen = time.Now()
	return buf, nil
}

func (st *qstream) Close() error { return st.qs.Close() }

// selfSignedCert generates a short-lived self-signed TLS certificate for local QUIC use.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
