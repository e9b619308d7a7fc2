// Package natstransport carries envelopes between peers through a NATS
// server. Every node subscribes to intentd.peer.<networkId> and peers are
// reached with a request on their subject, so a missing subscriber is
// reported as unreachable.
package natstransport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	subjectPrefix = "intentd.peer."
	fromHeader    = "Intentd-From"
)

var ackPayload = []byte("ok")

type Config struct {
	Url       string
	NetworkId string
	// RequestTimeout bounds the wait for the peer to take a message.
	RequestTimeout time.Duration
}

type transport struct {
	cfg Config

	lock    sync.RWMutex
	handler ports.MessageHandler
	nc      *nats.Conn
	sub     *nats.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewTransport(cfg Config) (ports.Transport, error) {
	if cfg.Url == "" {
		return nil, fmt.Errorf("missing nats url")
	}
	if cfg.NetworkId == "" {
		return nil, fmt.Errorf("missing network id")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &transport{cfg: cfg, ctx: ctx, cancel: cancel}, nil
}

// Subject returns the subject a peer listens on.
func Subject(networkId string) string {
	return subjectPrefix + networkId
}

func (t *transport) OnReceive(handler ports.MessageHandler) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.handler = handler
}

func (t *transport) Start(ctx context.Context) error {
	nc, err := nats.Connect(
		t.cfg.Url,
		nats.Name("intentd "+t.cfg.NetworkId),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	sub, err := nc.Subscribe(Subject(t.cfg.NetworkId), t.receive)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	t.lock.Lock()
	t.nc, t.sub = nc, sub
	t.lock.Unlock()
	log.Infof("p2p nats subscribed to %s", sub.Subject)
	return nil
}

func (t *transport) SendTo(ctx context.Context, peer string, raw []byte) error {
	t.lock.RLock()
	nc := t.nc
	t.lock.RUnlock()
	if nc == nil || nc.IsClosed() {
		return errcode.ErrPeerUnreachable.New("transport not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()

	msg := nats.NewMsg(Subject(peer))
	msg.Header.Set(fromHeader, t.cfg.NetworkId)
	msg.Data = raw
	if _, err := nc.RequestMsgWithContext(ctx, msg); err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrConnectionClosed) {
			return errcode.ErrPeerUnreachable.Wrap(err, peer)
		}
		return fmt.Errorf("failed to send to %s: %w", peer, err)
	}
	return nil
}

func (t *transport) Close() {
	t.cancel()

	t.lock.Lock()
	nc, sub := t.nc, t.sub
	t.nc, t.sub = nil, nil
	t.lock.Unlock()

	if sub != nil {
		// nolint:all
		sub.Unsubscribe()
	}
	if nc != nil {
		nc.Close()
	}
}

// receive hands the message to the handler and acknowledges it, the
// acknowledgement only tells the sender the message was taken.
func (t *transport) receive(msg *nats.Msg) {
	from := msg.Header.Get(fromHeader)
	if from == "" {
		from = msg.Subject
	}
	if msg.Reply != "" {
		if err := msg.Respond(ackPayload); err != nil {
			log.WithError(err).WithField("from", from).Debug("failed to acknowledge message")
		}
	}

	t.lock.RLock()
	handler := t.handler
	t.lock.RUnlock()
	if handler != nil {
		handler(t.ctx, from, msg.Data)
	}
}
