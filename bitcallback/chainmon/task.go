package chainmon

import (
	"sync"
	"time"

	"github.com/secnot/bitcallback/bitcallback/command"
)

// Config holds every Chain Monitor Task setting sourced from §6's
// configuration keys.
type Config struct {
	BitcoindURL         string
	BitcoindUser        string
	BitcoindPass        string
	BitcoindDisableTLS  bool
	Chain               string
	Confirmations       int32
	StartBlock          int32
	ReloadSubscriptions bool
	CacheCapacity       int

	// PollPeriod is T_poll: the minimum time between successive chain
	// polls (default 5s).
	PollPeriod time.Duration
}

// DefaultPollPeriod is T_poll's default value.
const DefaultPollPeriod = 5 * time.Second

func (c Config) pollPeriod() time.Duration {
	if c.PollPeriod <= 0 {
		return DefaultPollPeriod
	}
	return c.PollPeriod
}

// Task is the top-level Chain Monitor loop: it owns the
// Subscription Manager and the Chain Client, polls every PollPeriod,
// handles reconnect, persists the chain cursor, and forwards generated
// callbacks to the Dispatcher.
type Task struct {
	cfg   Config
	store Store

	cmdCh      chan command.Command
	dispatchCh chan<- command.Command

	subMgr       *SubscriptionManager
	client       ChainClient
	currentBlock int32
	lastPoll     time.Time

	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
}

// NewTask constructs a Chain Monitor Task. dispatchCh is the Dispatcher
// Task's inbound command channel, used to forward NewCallback commands.
func NewTask(cfg Config, store Store, dispatchCh chan<- command.Command) (*Task, error) {
	cursor, err := store.LoadCursor()
	if err != nil {
		return nil, err
	}
	// No cursor persisted yet: start from the configured block.
	if cursor == 0 {
		cursor = cfg.StartBlock
	}

	subMgr, err := NewSubscriptionManager(store, cfg.ReloadSubscriptions)
	if err != nil {
		return nil, err
	}

	return &Task{
		cfg:          cfg,
		store:        store,
		cmdCh:        make(chan command.Command, command.DefaultQueueSize),
		dispatchCh:   dispatchCh,
		subMgr:       subMgr,
		currentBlock: cursor,
		quit:         make(chan struct{}),
	}, nil
}

// Commands returns the channel the admission layer sends NewSubscription,
// CancelSubscription, and Exit commands on.
func (t *Task) Commands() chan<- command.Command {
	return t.cmdCh
}

// Start runs the dispatch loop in its own goroutine.
func (t *Task) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run()
	}()
}

// Stop requests graceful shutdown and waits for the loop to exit.
func (t *Task) Stop() {
	t.quitOnce.Do(func() { close(t.quit) })
	t.wg.Wait()
}

// run is the main dispatch loop.
func (t *Task) run() {
	for {
		select {
		case <-t.quit:
			return

		case cmd := <-t.cmdCh:
			switch cmd.Kind {
			case command.NewSubscription:
				log.Debugf("new subscription (id: %d)", cmd.Subscription.ID)
				t.subMgr.Add(cmd.Subscription)
			case command.CancelSubscription:
				log.Debugf("cancel subscription (id: %d)", cmd.CancelID)
				t.subMgr.Cancel(cmd.CancelID)
			case command.Exit:
				return
			default:
				log.Warnf("unknown command %v", cmd.Kind)
			}
			continue

		case <-time.After(time.Second):
		}

		if time.Since(t.lastPoll) < t.cfg.pollPeriod() {
			continue
		}
		t.lastPoll = time.Now()

		if t.client == nil {
			if err := t.reconnect(); err != nil {
				log.Debugf("bitcoind reconnect failed: %v", err)
				continue
			}
		}

		t.sendConfirmed()
	}
}

// reconnect attempts to establish a fresh Chain Client and Transaction
// Monitor, and swap them into the Subscription Manager.
func (t *Task) reconnect() error {
	client, err := NewRPCClient(
		t.cfg.BitcoindURL, t.cfg.BitcoindUser, t.cfg.BitcoindPass,
		t.cfg.BitcoindDisableTLS, t.cfg.Chain,
	)
	if err != nil {
		return err
	}

	monitor, err := NewTransactionMonitor(
		client, t.cfg.Confirmations, t.currentBlock, t.cfg.CacheCapacity,
	)
	if err != nil {
		return err
	}

	t.client = client
	t.subMgr.SetMonitor(monitor)
	log.Infof("bitcoind connected")
	return nil
}

// sendConfirmed polls the subscription manager for new callbacks, forwards
// them to the Dispatcher, and persists the cursor only after dispatch, so a
// crash between the two replays rather than silently drops a callback.
func (t *Task) sendConfirmed() {
	callbacks, err := t.subMgr.Poll()
	if err != nil {
		switch err {
		case ErrConnectionFailed, ErrProtocolError:
			log.Infof("bitcoind connection lost: %v", err)
		default:
			log.Errorf("unexpected error polling bitcoind: %v", err)
		}
		t.subMgr.SetMonitor(nil)
		t.client = nil
		return
	}

	for _, cb := range callbacks {
		log.Debugf("new callback: %s", cb.ID)
		t.dispatchCh <- command.NewCallbackCmd(cb)
	}

	newBlock := t.subMgr.CurrentBlock()
	if newBlock != t.currentBlock {
		if err := t.store.SaveCursor(newBlock); err != nil {
			log.Errorf("failed to persist chain cursor: %v", err)
			return
		}
		t.currentBlock = newBlock
	}
}
