package application

import (
	"context"
	"sync"
)

// inbox runs the handling of inbound envelopes off the transport goroutines.
// Tasks sharing a key run one at a time in the order they were pushed, tasks
// of different keys run in parallel.
type inbox struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lock   sync.Mutex
	queues map[string][]func(ctx context.Context)
}

func newInbox() *inbox {
	ctx, cancel := context.WithCancel(context.Background())
	return &inbox{
		ctx:    ctx,
		cancel: cancel,
		queues: make(map[string][]func(ctx context.Context)),
	}
}

// push enqueues task without blocking. It returns false once the inbox is
// stopped.
func (i *inbox) push(key string, task func(ctx context.Context)) bool {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.ctx.Err() != nil {
		return false
	}
	if q, ok := i.queues[key]; ok {
		i.queues[key] = append(q, task)
		return true
	}
	i.queues[key] = []func(ctx context.Context){task}
	i.wg.Add(1)
	go i.drain(key)
	return true
}

// stop drops the queued tasks and waits for the running ones, whose context
// is cancelled.
func (i *inbox) stop() {
	i.cancel()
	i.wg.Wait()
}

func (i *inbox) pending() int {
	i.lock.Lock()
	defer i.lock.Unlock()
	count := 0
	for _, q := range i.queues {
		count += len(q)
	}
	return count
}

func (i *inbox) drain(key string) {
	defer i.wg.Done()
	for {
		i.lock.Lock()
		q := i.queues[key]
		if len(q) == 0 || i.ctx.Err() != nil {
			delete(i.queues, key)
			i.lock.Unlock()
			return
		}
		task := q[0]
		i.lock.Unlock()

		task(i.ctx)

		// The head is only popped once done, so that a push meanwhile
		// doesn't start a second worker for the key.
		i.lock.Lock()
		i.queues[key] = i.queues[key][1:]
		i.lock.Unlock()
	}
}
