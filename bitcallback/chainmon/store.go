package chainmon

import "github.com/secnot/bitcallback/bitcallback/command"

// Store is the narrow slice of the durable store the Chain
// Monitor Task needs: loading still-active subscriptions on start,
// recording expirations, and persisting the chain cursor. store.Store
// implements this interface; it is expressed here, rather than imported
// directly, so chainmon depends on a contract instead of a concrete ORM
// model.
type Store interface {
	ActiveSubscriptions() ([]command.SubscriptionData, error)
	ExpireSubscriptions(ids []int64) error
	LoadCursor() (int32, error)
	SaveCursor(height int32) error
}
