package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/coordinator"
	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T) envelope.Signer {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return envelope.NewKeySigner(key)
}

type clock struct {
	lock sync.Mutex
	t    time.Time
}

func (c *clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.t = c.t.Add(d)
}

type rejection struct {
	swapId, refIntentId string
	code                uint32
}

type swapHandler struct {
	// hook runs before a message is handled, outside of the lock.
	hook func(msg *envelope.Message)

	lock       sync.Mutex
	err        error
	handled    []*envelope.Message
	rejections []rejection
}

func (h *swapHandler) HandleMessage(_ context.Context, msg *envelope.Message) (*coordinator.TransitionResult, error) {
	if h.hook != nil {
		h.hook(msg)
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	h.handled = append(h.handled, msg)
	if h.err != nil {
		return nil, h.err
	}
	return &coordinator.TransitionResult{SwapId: msg.SwapId, State: domain.SwapLocked}, nil
}

// Handled returns the intent ids of the handled messages, in order.
func (h *swapHandler) Handled() []string {
	h.lock.Lock()
	defer h.lock.Unlock()
	ids := make([]string, 0, len(h.handled))
	for _, msg := range h.handled {
		ids = append(ids, msg.IntentId)
	}
	return ids
}

func (h *swapHandler) HandleRejection(_ context.Context, swapId, refIntentId string, code uint32, _ string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.rejections = append(h.rejections, rejection{swapId, refIntentId, code})
}

type whitelist map[string]domain.WhitelistPolicy

func (w whitelist) IsWhitelisted(networkId string) bool {
	_, ok := w[networkId]
	return ok
}

func (w whitelist) Policy(networkId string) (domain.WhitelistPolicy, bool) {
	p, ok := w[networkId]
	return p, ok
}

type outbox struct {
	lock sync.Mutex
	sent []*envelope.Message
}

func (o *outbox) Dispatch(msg *envelope.Message, _ time.Time) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.sent = append(o.sent, msg)
}

func (o *outbox) Sent() []*envelope.Message {
	o.lock.Lock()
	defer o.lock.Unlock()
	return append([]*envelope.Message(nil), o.sent...)
}

type sentMessage struct {
	peer string
	raw  []byte
}

// transport records sent messages, send decides the outcome of every
// attempt.
type transport struct {
	lock    sync.Mutex
	send    func(peer string, attempt int) error
	sent    []sentMessage
	tries   map[string]int
	handler ports.MessageHandler
}

func newTransport() *transport {
	return &transport{tries: make(map[string]int)}
}

func (t *transport) Start(context.Context) error { return nil }

func (t *transport) SendTo(_ context.Context, peer string, raw []byte) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.tries[peer]++
	if t.send != nil {
		if err := t.send(peer, t.tries[peer]); err != nil {
			return err
		}
	}
	t.sent = append(t.sent, sentMessage{peer, raw})
	return nil
}

func (t *transport) OnReceive(handler ports.MessageHandler) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.handler = handler
}

func (t *transport) Close() {}

func (t *transport) Sent() []sentMessage {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]sentMessage(nil), t.sent...)
}

func (t *transport) Tries(peer string) int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.tries[peer]
}

// signedRaw signs msg as signer and encodes it.
func signedRaw(t *testing.T, signer envelope.Signer, msg *envelope.Message) []byte {
	require.NoError(t, envelope.Sign(msg, signer))
	raw, err := envelope.Encode(msg)
	require.NoError(t, err)
	return raw
}
