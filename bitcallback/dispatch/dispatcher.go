package dispatch

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/secnot/bitcallback/bitcallback/command"
)

// Default tuning values.
const (
	DefaultRetries        = 3
	DefaultRetryPeriod    = 120 * time.Second
	DefaultNWorkers       = 4
	DefaultRequestTimeout = time.Second
)

// farPast is used as the initial last_retry of a freshly created callback
// so it is immediately eligible for its first send.
var farPast = time.Unix(0, 0).UTC()

// retryState is the Dispatcher's in-memory view of one unfinished
// callback. A callback id is present here iff it is unacknowledged and has
// retriesRemaining > 0.
type retryState struct {
	retriesRemaining int32
	lastRetry        time.Time
}

// Config tunes a Dispatcher.
type Config struct {
	RetriesMax     int32
	RetryPeriod    time.Duration
	NWorkers       int
	QueueLength    int
	RequestTimeout time.Duration
	Recover        bool
}

func (c Config) withDefaults() Config {
	if c.RetriesMax <= 0 {
		c.RetriesMax = DefaultRetries
	}
	if c.RetryPeriod <= 0 {
		c.RetryPeriod = DefaultRetryPeriod
	}
	if c.NWorkers <= 0 {
		c.NWorkers = DefaultNWorkers
	}
	if c.QueueLength <= 0 {
		c.QueueLength = DefaultQueueLength
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Dispatcher is the durable, at-least-once callback delivery engine: an
// in-memory index of unfinished callbacks plus a retry queue ordered by
// last-attempt time, coordinating a worker pool, store persistence,
// acknowledgement, and crash recovery.
//
// Two locks guard Dispatcher state: stateLock for callbacks/retryQueue, and
// the Store's own serialization for persistence. stateLock is always
// released before a store call is made — the two are never held at once —
// which rules out lock-order deadlock.
type Dispatcher struct {
	cfg     Config
	store   Store
	signKey *btcec.PrivateKey

	stateLock  sync.Mutex
	callbacks  map[string]*retryState
	retryQueue *list.List // holds string ids

	sentQueue chan string
	pool      *WorkerPool
	sender    Sender

	quit       chan struct{}
	quitOnce   sync.Once
	driverDone chan struct{}
}

// Sender delivers one outbound callback request. Production code uses
// HTTPSender; tests substitute a fake.
type Sender interface {
	Send(url string, body []byte, timeout time.Duration)
}

// New builds a Dispatcher. If cfg.Recover is true, unfinished callbacks are
// loaded from the store and the retry queue is seeded in their last_retry
// order.
func New(store Store, signKey *btcec.PrivateKey, cfg Config, sender Sender) (*Dispatcher, error) {
	cfg = cfg.withDefaults()

	d := &Dispatcher{
		cfg:        cfg,
		store:      store,
		signKey:    signKey,
		callbacks:  make(map[string]*retryState),
		retryQueue: list.New(),
		sentQueue:  make(chan string, cfg.QueueLength),
		sender:     sender,
		quit:       make(chan struct{}),
		driverDone: make(chan struct{}),
	}
	d.pool = NewWorkerPool(cfg.NWorkers, cfg.QueueLength, d.sendWorker)

	if cfg.Recover {
		if err := d.recover(); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func (d *Dispatcher) recover() error {
	pending, err := d.store.PendingCallbacks()
	if err != nil {
		return err
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].LastRetry.Before(pending[j].LastRetry)
	})

	d.stateLock.Lock()
	defer d.stateLock.Unlock()
	for _, p := range pending {
		d.callbacks[p.ID] = &retryState{
			retriesRemaining: p.Retries,
			lastRetry:        p.LastRetry,
		}
		d.retryQueue.PushBack(p.ID)
	}
	return nil
}

// NewCallback persists a fresh Callback row and makes it immediately
// eligible for delivery, jumping the retry queue's front.
func (d *Dispatcher) NewCallback(data command.CallbackData) error {
	if err := d.store.CreateCallback(data, d.cfg.RetriesMax); err != nil {
		return err
	}

	d.stateLock.Lock()
	d.callbacks[data.ID] = &retryState{
		retriesRemaining: d.cfg.RetriesMax + 1,
		lastRetry:        farPast,
	}
	d.retryQueue.PushFront(data.ID)
	d.stateLock.Unlock()

	return nil
}

// Ack marks a callback acknowledged, returning false if it was already
// acknowledged, already exhausted its retries, or never existed. Any
// in-flight send for the same id is a no-op once it completes, because
// the completion handler re-checks map membership.
func (d *Dispatcher) Ack(id string) (bool, error) {
	d.stateLock.Lock()
	_, ok := d.callbacks[id]
	if ok {
		delete(d.callbacks, id)
	}
	d.stateLock.Unlock()

	if !ok {
		return false, nil
	}

	if err := d.store.AckCallback(id); err != nil {
		return false, err
	}
	return true, nil
}

// Len returns the number of unfinished, tracked callbacks.
func (d *Dispatcher) Len() int {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()
	return len(d.callbacks)
}

// Start launches the driver loop.
func (d *Dispatcher) Start() {
	go d.driver()
}

// Close stops accepting new sends, signals the driver, purges any jobs
// still queued (not yet picked up by a worker), and joins within timeout.
// Jobs already in flight on a worker complete, bounded by the request
// timeout.
func (d *Dispatcher) Close(timeout time.Duration) {
	d.quitOnce.Do(func() { close(d.quit) })

	select {
	case <-d.driverDone:
	case <-time.After(timeout):
	}

	d.pool.Close(false, timeout)
}

func (d *Dispatcher) driver() {
	defer close(d.driverDone)
	for {
		select {
		case <-d.quit:
			return
		default:
		}

		d.sendReady()
		d.processSent()
	}
}

// sendReady implements the send phase: walk the retry queue
// from the front, dropping acknowledged ids, stopping at the first id not
// yet due for a retry, and handing due ids to the worker pool.
func (d *Dispatcher) sendReady() {
	for {
		d.stateLock.Lock()
		front := d.retryQueue.Front()
		if front == nil {
			d.stateLock.Unlock()
			return
		}
		id := front.Value.(string)

		rec, ok := d.callbacks[id]
		if !ok {
			d.retryQueue.Remove(front)
			d.stateLock.Unlock()
			continue
		}

		if rec.lastRetry.After(time.Now().Add(-d.cfg.RetryPeriod)) {
			d.stateLock.Unlock()
			return
		}

		d.retryQueue.Remove(front)
		d.stateLock.Unlock()

		record, err := d.store.LoadForSend(id)
		if err != nil {
			// Not re-queued: a store read that keeps failing for this id
			// would otherwise busy-loop the driver forever.
			log.Errorf("failed to load callback %s for send: %v", id, err)
			continue
		}

		body, err := BuildRequestBody(record, d.signKey)
		if err != nil {
			log.Errorf("failed to build request for callback %s: %v", id, err)
			continue
		}

		err = d.pool.AddJob(sendJob{id: id, url: record.CallbackURL, body: body}, false, 0)
		if err == ErrQueueFull {
			d.stateLock.Lock()
			d.retryQueue.PushFront(id)
			d.stateLock.Unlock()
			return
		}
	}
}

// processSent implements the completion phase: drain the
// sent queue (with a short timeout so the driver loop can re-check quit
// and the send phase), updating retry state for each completed id.
func (d *Dispatcher) processSent() {
	timeout := time.After(time.Second)
	for {
		select {
		case id := <-d.sentQueue:
			d.completeSend(id)
		case <-timeout:
			return
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) completeSend(id string) {
	d.stateLock.Lock()
	rec, ok := d.callbacks[id]
	if !ok {
		d.stateLock.Unlock()
		return
	}

	newRetries := rec.retriesRemaining - 1
	now := time.Now().UTC()

	if newRetries <= 0 {
		delete(d.callbacks, id)
	} else {
		d.callbacks[id] = &retryState{retriesRemaining: newRetries, lastRetry: now}
		d.retryQueue.PushBack(id)
	}
	d.stateLock.Unlock()

	if err := d.store.UpdateRetry(id, newRetries, now); err != nil {
		log.Errorf("failed to persist retry state for callback %s: %v", id, err)
	}
}

type sendJob struct {
	id   string
	url  string
	body []byte
}

// sendWorker is the worker-pool function: it
// performs the POST and unconditionally reports completion on sentQueue —
// lack of a later Ack, not the HTTP outcome, is what drives retries.
func (d *Dispatcher) sendWorker(payload interface{}) {
	job := payload.(sendJob)
	d.sender.Send(job.url, job.body, d.cfg.RequestTimeout)
	d.sentQueue <- job.id
}
