package mesh

import (
	"time"

	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

// Status of a tracked outbound message as observed by the caller.
type Status int

const (
	StatusPending Status = iota
	StatusDelivered
	StatusGivenUp
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusGivenUp:
		return "given-up"
	default:
		return "pending"
	}
}

// Outcome resolves a SendMessage call. Reason is set for StatusGivenUp.
type Outcome struct {
	MessageID string
	Status    Status
	Attempts  uint32
	Reason    string
	Latency   time.Duration
}

type deliveryState int

const (
	stateInitiated deliveryState = iota
	stateAwaitingResponse
	stateRetryScheduled
)

// pendingMessage is the retry state machine for one in-flight message. At
// most one attempt is ever outstanding per message.
type pendingMessage struct {
	id          string
	destination transport.PeerID
	payload     []byte

	state        deliveryState
	attemptCount uint32

	paths       []Path
	pathIndex   int
	currentPath Path
	pathsTried  map[string]struct{}

	startedAt     time.Time
	lastAttemptAt time.Time
	dueAt         time.Time

	done chan Outcome
}

// retryDelay computes the backoff before attempt number `attempt`:
// min(base * 1.5^attempt, cap). Delays are non-decreasing in attempt.
func retryDelay(base, cap time.Duration, attempt uint32) time.Duration {
	d := float64(base)
	for i := uint32(0); i < attempt; i++ {
		d *= 1.5
		if d >= float64(cap) {
			return cap
		}
	}
	if d > float64(cap) {
		return cap
	}
	return time.Duration(d)
}
