package dispatch

import (
	"sync"
	"time"

	"github.com/secnot/bitcallback/bitcallback/command"
)

// Task wraps a Dispatcher in the same bounded command-channel shape as the
// Chain Monitor Task, so the admission layer talks to both
// tasks identically: NewCallback and AckCallback commands in, nothing out.
type Task struct {
	dispatcher *Dispatcher
	closeWait  time.Duration

	cmdCh chan command.Command

	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
}

// NewTask builds a Dispatcher Task around dispatcher. closeWait bounds how
// long Stop waits for in-flight sends to finish.
func NewTask(dispatcher *Dispatcher, closeWait time.Duration) *Task {
	if closeWait <= 0 {
		closeWait = 5 * time.Second
	}
	return &Task{
		dispatcher: dispatcher,
		closeWait:  closeWait,
		cmdCh:      make(chan command.Command, command.DefaultQueueSize),
		quit:       make(chan struct{}),
	}
}

// Commands returns the channel the admission layer sends NewCallback and
// AckCallback commands on.
func (t *Task) Commands() chan<- command.Command {
	return t.cmdCh
}

// Start launches the Dispatcher's driver loop and this Task's command loop.
func (t *Task) Start() {
	t.dispatcher.Start()
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run()
	}()
}

// Stop requests graceful shutdown of both the command loop and the
// Dispatcher, and waits for them to finish.
func (t *Task) Stop() {
	t.quitOnce.Do(func() { close(t.quit) })
	t.wg.Wait()
	t.dispatcher.Close(t.closeWait)
}

func (t *Task) run() {
	for {
		select {
		case <-t.quit:
			return

		case cmd := <-t.cmdCh:
			switch cmd.Kind {
			case command.NewCallback:
				if err := t.dispatcher.NewCallback(cmd.Callback); err != nil {
					log.Errorf("failed to persist new callback %s: %v", cmd.Callback.ID, err)
				}
			case command.AckCallback:
				ok, err := t.dispatcher.Ack(cmd.AckID)
				if err != nil {
					log.Errorf("failed to ack callback %s: %v", cmd.AckID, err)
				} else if !ok {
					log.Debugf("ack for unknown or already-finished callback %s", cmd.AckID)
				}
			case command.Exit:
				return
			default:
				log.Warnf("unknown command %v", cmd.Kind)
			}
		}
	}
}
