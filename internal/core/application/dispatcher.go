package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	log "github.com/sirupsen/logrus"
)

type outbound struct {
	msg      *envelope.Message
	raw      []byte
	deadline time.Time
}

type outQueue struct {
	pending []outbound
}

// dispatcher sends outbound messages through the transport. Messages sharing
// a queue (those of a swap, or those to a peer outside of swaps) are sent in
// order, each one retried with backoff while the peer is unreachable and its
// deadline did not pass.
type dispatcher struct {
	transport ports.Transport
	retry     time.Duration
	maxRetry  time.Duration
	now       func() time.Time
	// expire is told about swaps whose messages could not be delivered in
	// time.
	expire func(ctx context.Context, swapId, reason string) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lock   sync.Mutex
	queues map[string]*outQueue
}

func newDispatcher(transport ports.Transport, retry, maxRetry time.Duration, now func() time.Time) *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &dispatcher{
		transport: transport,
		retry:     retry,
		maxRetry:  maxRetry,
		now:       now,
		ctx:       ctx,
		cancel:    cancel,
		queues:    make(map[string]*outQueue),
	}
}

// Dispatch enqueues msg without blocking.
func (d *dispatcher) Dispatch(msg *envelope.Message, deadline time.Time) {
	raw, err := envelope.Encode(msg)
	if err != nil {
		log.WithError(err).WithField("intent", msg.IntentId).Errorf("failed to encode %s", msg.Type)
		return
	}

	key := "peer/" + msg.Recipient
	if msg.SwapId != "" {
		key = "swap/" + msg.SwapId
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	if d.ctx.Err() != nil {
		return
	}
	q, ok := d.queues[key]
	if ok {
		q.pending = append(q.pending, outbound{msg, raw, deadline})
		return
	}
	q = &outQueue{pending: []outbound{{msg, raw, deadline}}}
	d.queues[key] = q
	d.wg.Add(1)
	go d.drain(key, q)
}

func (d *dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *dispatcher) pending() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	count := 0
	for _, q := range d.queues {
		count += len(q.pending)
	}
	return count
}

func (d *dispatcher) drain(key string, q *outQueue) {
	defer d.wg.Done()
	for {
		d.lock.Lock()
		if len(q.pending) == 0 || d.ctx.Err() != nil {
			delete(d.queues, key)
			d.lock.Unlock()
			return
		}
		next := q.pending[0]
		d.lock.Unlock()

		d.deliver(next)

		d.lock.Lock()
		q.pending = q.pending[1:]
		d.lock.Unlock()
	}
}

func (d *dispatcher) deliver(out outbound) {
	entry := log.WithFields(log.Fields{
		"peer":   out.msg.Recipient,
		"intent": out.msg.IntentId,
		"type":   out.msg.Type.String(),
	})
	if out.msg.SwapId != "" {
		entry = entry.WithField("swap", out.msg.SwapId)
	}

	for attempt := 1; ; attempt++ {
		err := d.transport.SendTo(d.ctx, out.msg.Recipient, out.raw)
		if err == nil {
			entry.Debug("message sent")
			return
		}
		if d.ctx.Err() != nil {
			return
		}
		if !errors.Is(err, errcode.ErrPeerUnreachable) {
			entry.WithError(err).Warn("failed to send message, dropping it")
			return
		}

		now := d.now()
		if !now.Before(out.deadline) {
			entry.WithError(err).WithField("attempts", attempt).Warn("peer unreachable past deadline")
			if out.msg.SwapId != "" && d.expire != nil {
				if err := d.expire(d.ctx, out.msg.SwapId, "counterparty unreachable"); err != nil {
					entry.WithError(err).Debug("swap not expired")
				}
			}
			return
		}

		delay := d.backoff(attempt)
		if left := out.deadline.Sub(now); delay > left {
			delay = left
		}
		entry.WithError(err).WithField("attempts", attempt).Debugf("peer unreachable, retrying in %s", delay)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-d.ctx.Done():
			t.Stop()
			return
		}
	}
}

func (d *dispatcher) backoff(attempt int) time.Duration {
	delay := d.retry
	for i := 1; i < attempt && delay < d.maxRetry; i++ {
		delay *= 2
	}
	if delay > d.maxRetry {
		delay = d.maxRetry
	}
	return delay
}
