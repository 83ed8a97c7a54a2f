package dispatch

import (
	"time"

	"github.com/secnot/bitcallback/bitcallback/command"
)

// SubscriptionRef is the subset of a subscription embedded in the outbound
// callback JSON.
type SubscriptionRef struct {
	ID      int64
	Address string
}

// CallbackRecord is everything needed to build one outbound callback POST
// and to persist its signature's identifying
// fields.
type CallbackRecord struct {
	ID           string
	Subscription SubscriptionRef
	CallbackURL  string
	Txid         string
	Amount       int64
	Created      time.Time
	LastRetry    time.Time
	Retries      int32
	Acknowledged bool
}

// PendingCallback is the recovery-time view of an unfinished callback: just
// enough to rebuild the in-memory retry queue in last_retry order.
type PendingCallback struct {
	ID        string
	Retries   int32
	LastRetry time.Time
}

// Store is the narrow slice of the durable store the Callback
// Dispatcher needs.
type Store interface {
	// CreateCallback persists a new Callback row with retries = retriesMax+1
	// and last_retry set far in the past, so it is immediately eligible.
	CreateCallback(data command.CallbackData, retriesMax int32) error

	// AckCallback sets acknowledged = true on the row.
	AckCallback(id string) error

	// UpdateRetry persists the new retries/last_retry pair after a send
	// attempt completes.
	UpdateRetry(id string, retries int32, lastRetry time.Time) error

	// LoadForSend loads everything needed to build one outbound request.
	LoadForSend(id string) (CallbackRecord, error)

	// PendingCallbacks returns every unacknowledged callback with retries
	// remaining, for crash recovery.
	PendingCallbacks() ([]PendingCallback, error)
}
