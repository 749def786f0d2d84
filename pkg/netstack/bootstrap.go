package netstack

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Treystu/SCMessenger-sub006/pkg/config"
	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
	"github.com/Treystu/SCMessenger-sub006/pkg/transport/mem"
	tquic "github.com/Treystu/SCMessenger-sub006/pkg/transport/quic"
	ttcp "github.com/Treystu/SCMessenger-sub006/pkg/transport/tcp"
)

// Options tunes redial behavior.
type Options struct {
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffJitter  time.Duration
}

// OptionsFromConfig converts the net config block.
func OptionsFromConfig(nc config.NetConfig) Options {
	return Options{
		BackoffInitial: time.Duration(nc.DialBackoffInitialMS) * time.Millisecond,
		BackoffMax:     time.Duration(nc.DialBackoffMaxMS) * time.Millisecond,
		BackoffJitter:  time.Duration(nc.DialBackoffJitterMS) * time.Millisecond,
	}
}

// StartFromConfig builds transports per config, starts listeners and initial
// dials. Returns a closer stopping the listeners and the address of the first
// successful listener (used for NAT classification against the local bind).
// Background dial goroutines stop when ctx is canceled.
func StartFromConfig(ctx context.Context, cfgs []config.TransportConfig, st *Stack, opts Options) (func(), string, error) {
	var closers []func()
	var mu sync.Mutex
	addCloser := func(f func()) { mu.Lock(); defer mu.Unlock(); closers = append(closers, f) }

	firstAddr := ""
	for _, tc := range cfgs {
		tr, err := NewByKind(tc.Kind)
		if err != nil {
			zap.L().Warn("transport kind not available", zap.String("kind", tc.Kind), zap.Error(err))
			continue
		}

		for _, addr := range tc.Listen {
			l, err := tr.Listen(ctx, addr)
			if err != nil {
				zap.L().Error("listen failed",
					zap.String("kind", tr.Kind().String()),
					zap.String("addr", addr),
					zap.Error(err))
				continue
			}
			zap.L().Info("listening",
				zap.String("kind", tr.Kind().String()),
				zap.String("addr", l.Addr().String()))
			if firstAddr == "" {
				firstAddr = l.Addr().String()
			}
			addCloser(func() { _ = l.Close() })
			go st.acceptLoop(ctx, l)
		}

		for _, d := range tc.Dial {
			d := d
			go st.dialLoop(ctx, tr, d.Address, d.PeerID, opts)
		}
	}

	closer := func() {
		mu.Lock()
		defer mu.Unlock()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return closer, firstAddr, nil
}

func (st *Stack) acceptLoop(ctx context.Context, l transport.Listener) {
	for {
		s, err := l.Accept(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			zap.L().Warn("accept failed", zap.String("addr", l.Addr().String()), zap.Error(err))
			return
		}
		zap.L().Info("inbound session",
			zap.String("peer", string(s.Peer().ID)),
			zap.String("kind", s.TransportKind().String()),
			zap.String("raddr", s.RemoteAddr().String()))
		accepted, replaced, old := st.mgr.AddSession(ctx, s)
		if replaced && old != nil {
			_ = old.Close()
		}
		if !accepted {
			_ = s.Close()
			continue
		}
		go st.ServeSession(ctx, s)
	}
}

// NewByKind constructs a Transport by string kind.
func NewByKind(kind string) (transport.Transport, error) {
	switch kind {
	case "tcp":
		return ttcp.New(), nil
	case "quic", "h3", "http3":
		return tquic.New(), nil
	case "mem", "inproc":
		return mem.New(), nil
	default:
		return nil, ErrUnknownKind(kind)
	}
}

// ErrUnknownKind is a typed error for unsupported transport kinds.
type ErrUnknownKind string

func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }
