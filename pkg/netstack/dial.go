package netstack

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

// dialLoop keeps one configured peer dialed, redialing with capped
// exponential backoff plus jitter until ctx is canceled.
func (st *Stack) dialLoop(ctx context.Context, tr transport.Transport, address, peerID string, opts Options) {
	pid := transport.PeerID(peerID)
	if pid == "" {
		pid = transport.PeerID("temp:" + tr.Kind().String() + ":" + address)
	}
	peer := transport.PeerInfo{ID: pid, Addr: address}

	initial := opts.BackoffInitial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxBackoff := opts.BackoffMax
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	backoff := initial

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sess, err := tr.Dial(ctx, address, peer)
		if err != nil {
			zap.L().Warn("dial failed",
				zap.String("kind", tr.Kind().String()),
				zap.String("addr", address),
				zap.Error(err))
			if !sleepCtx(ctx, withJitter(backoff, opts.BackoffJitter)) {
				return
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initial

		accepted, replaced, old := st.mgr.AddSession(ctx, sess)
		zap.L().Info("dialed",
			zap.String("kind", tr.Kind().String()),
			zap.String("addr", address),
			zap.Bool("accepted", accepted),
			zap.Bool("replaced", replaced))
		if old != nil {
			_ = old.Close()
		}
		if accepted {
			// Blocks until the session dies, then redial.
			st.ServeSession(ctx, sess)
		} else {
			_ = sess.Close()
		}
		if !sleepCtx(ctx, withJitter(backoff, opts.BackoffJitter)) {
			return
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}

func withJitter(d, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return d
	}
	n := time.Now().UnixNano()
	return d + time.Duration(n%int64(jitter))
}

// sleepCtx waits d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
