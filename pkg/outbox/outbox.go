// Package outbox persists outbound message records so delivery state survives
// engine restarts within a process and can be inspected by diagnostics.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Treystu/SCMessenger-sub006/pkg/memkv"
)

// Status of an outbox record.
const (
	StatusQueued    = "queued"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Record is the persisted form of one outbound message.
type Record struct {
	MessageID   string    `json:"message_id"`
	Destination string    `json:"destination"`
	Payload     []byte    `json:"payload"`
	Status      string    `json:"status"`
	Attempts    uint32    `json:"attempts"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	ResolvedAt  time.Time `json:"resolved_at,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Outbox stores records in a memkv store under an "outbox/" prefix.
// Resolved records are kept with a TTL so recent history stays queryable.
type Outbox struct {
	kv          *memkv.Store
	resolvedTTL time.Duration
}

func New(kv *memkv.Store) *Outbox {
	return &Outbox{kv: kv, resolvedTTL: time.Hour}
}

func key(id string) string { return "outbox/" + id }

// EnqueueOutbound records a message as queued for delivery.
func (o *Outbox) EnqueueOutbound(messageID, destination string, payload []byte) error {
	rec := Record{
		MessageID:   messageID,
		Destination: destination,
		Payload:     payload,
		Status:      StatusQueued,
		EnqueuedAt:  time.Now(),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("outbox: marshal record: %w", err)
	}
	o.kv.Set(key(messageID), b, 0)
	return nil
}

// MarkDelivered resolves a record as delivered after attempts tries.
func (o *Outbox) MarkDelivered(messageID string, attempts uint32) error {
	return o.resolve(messageID, StatusDelivered, attempts, "")
}

// MarkFailed resolves a record as permanently failed.
func (o *Outbox) MarkFailed(messageID string, attempts uint32, reason string) error {
	return o.resolve(messageID, StatusFailed, attempts, reason)
}

func (o *Outbox) resolve(messageID, status string, attempts uint32, reason string) error {
	ok := o.kv.Update(key(messageID), func(old []byte) []byte {
		var rec Record
		if err := json.Unmarshal(old, &rec); err != nil {
			zap.L().Warn("outbox: corrupt record", zap.String("message_id", messageID), zap.Error(err))
			return old
		}
		rec.Status = status
		rec.Attempts = attempts
		rec.ResolvedAt = time.Now()
		rec.Reason = reason
		b, err := json.Marshal(rec)
		if err != nil {
			return old
		}
		return b
	})
	if !ok {
		return fmt.Errorf("outbox: no record for message %s", messageID)
	}
	o.kv.Expire(key(messageID), o.resolvedTTL)
	return nil
}

// Get returns a record by message id.
func (o *Outbox) Get(messageID string) (Record, bool) {
	b, ok := o.kv.Get(key(messageID))
	if !ok {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, false
	}
	return rec, true
}

// Pending lists records still in the queued state.
func (o *Outbox) Pending() []Record {
	var out []Record
	for _, k := range o.kv.Keys("outbox/") {
		b, ok := o.kv.Get(k)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			continue
		}
		if rec.Status == StatusQueued {
			out = append(out, rec)
		}
	}
	return out
}
