package chainmon

import (
	"time"

	"github.com/secnot/bitcallback/bitcallback/command"
)

// SubscriptionManager maintains the set of active subscriptions indexed by
// address and by id, with an expiration-ordered priority structure, and
// converts matching transactions into Callback records.
type SubscriptionManager struct {
	subsByAddr map[string]map[int64]command.SubscriptionData
	subsByID   map[int64]command.SubscriptionData
	expiration *expirationHeap

	monitor *TransactionMonitor
	store   Store
}

// NewSubscriptionManager builds a manager with no monitor attached
// (disconnected) and, if reload is true, reloads every currently-active
// subscription from the store.
func NewSubscriptionManager(store Store, reload bool) (*SubscriptionManager, error) {
	m := &SubscriptionManager{
		subsByAddr: make(map[string]map[int64]command.SubscriptionData),
		subsByID:   make(map[int64]command.SubscriptionData),
		expiration: newExpirationHeap(),
		store:      store,
	}

	if !reload {
		return m, nil
	}

	active, err := store.ActiveSubscriptions()
	if err != nil {
		return nil, err
	}
	for _, sub := range active {
		log.Debugf("loaded subscription: %d (%s)", sub.ID, sub.Address)
		m.Add(sub)
	}

	return m, nil
}

// SetMonitor replaces the active Transaction Monitor. If monitor is
// non-nil, every currently-watched address is re-registered with it — this
// is how a reconnect picks back up monitoring state.
func (m *SubscriptionManager) SetMonitor(monitor *TransactionMonitor) {
	m.monitor = monitor

	if monitor == nil {
		return
	}
	for addr := range m.subsByAddr {
		monitor.AddAddr(addr)
	}
}

// CurrentBlock returns the current monitor's cursor, or -1 if disconnected.
func (m *SubscriptionManager) CurrentBlock() int32 {
	if m.monitor == nil {
		return -1
	}
	return m.monitor.CurrentBlock()
}

// Add registers a new subscription, idempotent on (address, id). If the
// address wasn't already monitored and a monitor is attached, the address
// is registered with it.
func (m *SubscriptionManager) Add(sub command.SubscriptionData) {
	if _, exists := m.subsByAddr[sub.Address]; !exists {
		m.subsByAddr[sub.Address] = make(map[int64]command.SubscriptionData)
		if m.monitor != nil {
			m.monitor.AddAddr(sub.Address)
		}
	}

	if _, exists := m.subsByAddr[sub.Address][sub.ID]; exists {
		return
	}

	m.subsByAddr[sub.Address][sub.ID] = sub
	m.subsByID[sub.ID] = sub
	m.expiration.push(sub.Expiration, sub.ID)
}

// Cancel removes a subscription by id. Silent on an unknown id. Only
// un-registers the address from the monitor once the last subscription on
// it is cancelled.
func (m *SubscriptionManager) Cancel(id int64) {
	sub, ok := m.subsByID[id]
	if !ok {
		return
	}

	delete(m.subsByID, id)
	delete(m.subsByAddr[sub.Address], id)

	if len(m.subsByAddr[sub.Address]) == 0 {
		delete(m.subsByAddr, sub.Address)
		if m.monitor != nil {
			m.monitor.DelAddr(sub.Address)
		}
	}
}

// sweepExpired cancels every subscription whose expiration has passed,
// marking them expired in the store in one transactional update. Ids
// popped from the heap but already canceled/expired are ignored.
func (m *SubscriptionManager) sweepExpired(now time.Time) error {
	var expired []int64

	for {
		entry, ok := m.expiration.peek()
		if !ok || !entry.expiration.Before(now) {
			break
		}
		m.expiration.pop()

		if _, stillLive := m.subsByID[entry.id]; stillLive {
			expired = append(expired, entry.id)
		}
		m.Cancel(entry.id)
	}

	if len(expired) == 0 {
		return nil
	}

	return m.store.ExpireSubscriptions(expired)
}

// transactionToCallbacks applies the matching rule: any
// output to a monitored address that nets to a non-zero change relative to
// that same address's inputs produces a callback for the gross output
// amount; any input from a monitored address that does not also appear
// among the outputs produces a callback for the negated input amount.
func (m *SubscriptionManager) transactionToCallbacks(tran Transaction) ([]command.CallbackData, error) {
	var callbacks []command.CallbackData

	for addr, amountOut := range tran.TOut {
		subs, ok := m.subsByAddr[addr]
		if !ok {
			continue
		}

		change := amountOut - tran.TIn[addr]
		if change == 0 {
			continue
		}

		for _, sub := range subs {
			id, err := newCallbackID()
			if err != nil {
				return nil, err
			}
			callbacks = append(callbacks, command.CallbackData{
				ID:           id,
				Subscription: sub,
				Txid:         tran.Hash,
				Amount:       amountOut,
			})
		}
	}

	for addr, amountIn := range tran.TIn {
		subs, ok := m.subsByAddr[addr]
		if !ok {
			continue
		}
		if _, inOut := tran.TOut[addr]; inOut {
			continue
		}

		for _, sub := range subs {
			id, err := newCallbackID()
			if err != nil {
				return nil, err
			}
			callbacks = append(callbacks, command.CallbackData{
				ID:           id,
				Subscription: sub,
				Txid:         tran.Hash,
				Amount:       -amountIn,
			})
		}
	}

	return callbacks, nil
}

// Poll sweeps expired subscriptions, pulls newly confirmed transactions
// from the monitor, and returns every callback they generate.
func (m *SubscriptionManager) Poll() ([]command.CallbackData, error) {
	if err := m.sweepExpired(time.Now().UTC()); err != nil {
		return nil, err
	}

	if m.monitor == nil {
		return nil, ErrConnectionFailed
	}

	transactions, err := m.monitor.GetConfirmed()
	if err != nil {
		return nil, err
	}

	var callbacks []command.CallbackData
	for _, tran := range transactions {
		cbs, err := m.transactionToCallbacks(tran)
		if err != nil {
			return nil, err
		}
		callbacks = append(callbacks, cbs...)
	}

	return callbacks, nil
}

// Len returns the number of active subscriptions.
func (m *SubscriptionManager) Len() int {
	return len(m.subsByID)
}
