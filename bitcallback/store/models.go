// Package store is the durable store: Gorm models for the
// three persisted tables and a Store implementing both the Chain Monitor
// Task's and the Callback Dispatcher's narrow store interfaces.
package store

import "time"

// SubscriptionState is a Subscription's lifecycle state. It only
// ever advances forward, never back to active.
type SubscriptionState string

const (
	StateActive    SubscriptionState = "active"
	StateCanceled  SubscriptionState = "canceled"
	StateExpired   SubscriptionState = "expired"
	StateSuspended SubscriptionState = "suspended"
)

// Subscription is immutable after creation except State.
type Subscription struct {
	ID          int64 `gorm:"primary_key"`
	Address     string `gorm:"size:40;index"`
	CallbackURL string `gorm:"size:1024"`
	Created     time.Time
	Expiration  time.Time
	State       SubscriptionState `gorm:"size:16;default:'active'"`

	Callbacks []Callback `gorm:"foreignkey:SubscriptionID"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Callback is the record of one transaction notification.
// Retries is monotonically non-increasing while Acknowledged is false; once
// Acknowledged is true the row is never mutated again.
type Callback struct {
	ID             string `gorm:"primary_key;size:32"`
	SubscriptionID int64  `gorm:"index"`
	Txid           string `gorm:"size:64;index"`
	Amount         int64
	Created        time.Time
	LastRetry      time.Time
	Retries        int32
	Acknowledged   bool

	Subscription Subscription `gorm:"foreignkey:SubscriptionID"`
}

func (Callback) TableName() string { return "callbacks" }

// ChainCursor is a singleton row holding the Chain Monitor's block cursor:
// the height of the next block it will consider.
// It is created on the first block processed and updated in place
// thereafter.
type ChainCursor struct {
	ID          int32 `gorm:"primary_key"`
	BlockNumber int32
}

func (ChainCursor) TableName() string { return "chain_cursor" }

// chainCursorSingletonID is the fixed primary key of the one ChainCursor
// row this store ever writes.
const chainCursorSingletonID = 1
