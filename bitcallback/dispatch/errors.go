package dispatch

import "github.com/go-errors/errors"

// ErrQueueFull is returned by WorkerPool.AddJob when the bounded job queue
// has no room and the caller asked for a non-blocking add, or its blocking
// wait timed out.
var ErrQueueFull = errors.New("dispatch: worker pool queue is full")

// ErrPoolClosed is returned by WorkerPool.AddJob once Close has been
// called: the pool rejects new jobs after close is initiated.
var ErrPoolClosed = errors.New("dispatch: worker pool is closed")
