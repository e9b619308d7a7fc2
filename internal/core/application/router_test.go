package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/infrastructure/gateway"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/gateway/memory"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/stretchr/testify/require"
)

type routerEnv struct {
	node, alice envelope.Signer
	clock       *clock
	ledger      *memory.Ledger
	swaps       *swapHandler
	outbox      *outbox
	router      *Router
}

func newRouterEnv(t *testing.T, cfg RouterConfig, policies whitelist) *routerEnv {
	env := &routerEnv{
		node:   newSigner(t),
		alice:  newSigner(t),
		clock:  &clock{t: time.Unix(1_700_000_000, 0)},
		ledger: memory.New("stellar"),
		swaps:  &swapHandler{},
		outbox: &outbox{},
	}
	registry, err := gateway.NewRegistry(env.ledger)
	require.NoError(t, err)
	if policies == nil {
		policies = whitelist{}
	}
	cfg.Now = env.clock.Now
	env.router = NewRouter(cfg, env.node, env.swaps, registry, time.Second, policies, env.outbox)
	return env
}

func (e *routerEnv) payment(tx string) *envelope.Message {
	return &envelope.Message{
		Type:      envelope.TypePaymentRequest,
		IntentId:  envelope.NewIntentId(),
		Recipient: e.node.NetworkId(),
		Expiry:    e.clock.Now().Add(time.Minute).Unix(),
		Payload:   envelope.PaymentRequest{Chain: "stellar", TxEnvelope: []byte(tx)},
	}
}

func (e *routerEnv) offer(amount uint64) *envelope.Message {
	intentId := envelope.NewIntentId()
	return &envelope.Message{
		Type:      envelope.TypeSwapOffer,
		IntentId:  intentId,
		SwapId:    envelope.DeriveSwapId(e.alice.NetworkId(), intentId),
		Recipient: e.node.NetworkId(),
		Expiry:    e.clock.Now().Add(time.Minute).Unix(),
		Payload: envelope.SwapOffer{
			From:           envelope.Asset{Chain: "stellar", Code: "XLM"},
			To:             envelope.Asset{Chain: "ethereum", Code: "ETH"},
			Amount:         amount,
			CounterAmount:  7,
			HashlockDigest: envelope.HashPreimage([]byte("preimage")),
			TimeoutAt:      e.clock.Now().Add(time.Hour).Unix(),
			ReceiveAccount: "GALICE",
		},
	}
}

func (e *routerEnv) abort(swapId string) *envelope.Message {
	return &envelope.Message{
		Type:      envelope.TypeSwapAbort,
		IntentId:  envelope.NewIntentId(),
		SwapId:    swapId,
		Recipient: e.node.NetworkId(),
		Expiry:    e.clock.Now().Add(time.Minute).Unix(),
		Payload:   envelope.SwapAbort{Reason: "changed my mind"},
	}
}

func (e *routerEnv) lastReply(t *testing.T) (*envelope.Message, envelope.Acknowledgement) {
	sent := e.outbox.Sent()
	require.NotEmpty(t, sent)
	reply := sent[len(sent)-1]
	require.Equal(t, envelope.TypeAcknowledgement, reply.Type)
	require.Equal(t, e.node.NetworkId(), reply.Sender)
	require.NoError(t, envelope.Verify(reply))
	return reply, reply.Payload.(envelope.Acknowledgement)
}

func TestRouteStatelessIntent(t *testing.T) {
	env := newRouterEnv(t, RouterConfig{}, nil)
	ctx := context.Background()

	msg := env.payment("tx-1")
	raw := signedRaw(t, env.alice, msg)

	res := env.router.Route(ctx, "alice-conn", raw)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Receipt)
	require.Equal(t, 1, env.ledger.Calls(memory.OpSubmit))

	reply, ack := env.lastReply(t)
	require.Equal(t, env.alice.NetworkId(), reply.Recipient)
	require.True(t, ack.Accepted)
	require.Equal(t, msg.IntentId, ack.RefIntentId)
	require.Equal(t, res.Receipt.TxHash, ack.TxHash)

	t.Run("replay", func(t *testing.T) {
		res := env.router.Route(ctx, "alice-conn", raw)
		require.ErrorIs(t, res.Err, errcode.ErrDuplicateIntent)
		require.Equal(t, 1, env.ledger.Calls(memory.OpSubmit))

		_, ack := env.lastReply(t)
		require.False(t, ack.Accepted)
		require.Equal(t, errcode.ErrDuplicateIntent.Code(), ack.Code)
	})

	t.Run("submission failure", func(t *testing.T) {
		res := env.router.Route(ctx, "alice-conn", signedRaw(t, env.alice, env.payment("tx-1")))
		require.ErrorIs(t, res.Err, errcode.ErrSubmissionFailed)

		_, ack := env.lastReply(t)
		require.False(t, ack.Accepted)
		require.Equal(t, errcode.ErrSubmissionFailed.Code(), ack.Code)
		require.Equal(t, errcode.ErrSubmissionFailed.Error(), ack.Reason)
	})

	t.Run("unknown chain", func(t *testing.T) {
		msg := env.payment("tx-2")
		msg.Payload = envelope.PaymentRequest{Chain: "bitcoin", TxEnvelope: []byte("tx-2")}
		res := env.router.Route(ctx, "alice-conn", signedRaw(t, env.alice, msg))
		require.ErrorIs(t, res.Err, errcode.ErrPolicyViolation)
	})

	stats := env.router.Stats()
	require.Equal(t, uint64(4), stats.Received)
	require.Equal(t, uint64(1), stats.Accepted)
	require.Equal(t, uint64(3), stats.Rejected)
	require.Equal(t, uint64(4), stats.ByType[envelope.TypePaymentRequest.String()])
	require.Equal(t, uint64(1), stats.DistinctPeers)
}

func TestRouteDropped(t *testing.T) {
	env := newRouterEnv(t, RouterConfig{}, nil)
	ctx := context.Background()

	t.Run("malformed", func(t *testing.T) {
		res := env.router.Route(ctx, "conn", []byte("garbage"))
		require.ErrorIs(t, res.Err, errcode.ErrMalformedEnvelope)
		require.Nil(t, res.Message)
	})

	t.Run("wrong recipient", func(t *testing.T) {
		msg := env.payment("tx")
		msg.Recipient = env.alice.NetworkId()
		res := env.router.Route(ctx, "conn", signedRaw(t, env.alice, msg))
		require.ErrorIs(t, res.Err, errcode.ErrMalformedEnvelope)
	})

	t.Run("tampered", func(t *testing.T) {
		msg := env.payment("tx")
		require.NoError(t, envelope.Sign(msg, env.alice))
		msg.Payload = envelope.PaymentRequest{Chain: "stellar", TxEnvelope: []byte("other")}
		raw, err := envelope.Encode(msg)
		require.NoError(t, err)

		res := env.router.Route(ctx, "conn", raw)
		require.ErrorIs(t, res.Err, errcode.ErrInvalidSignature)
	})

	require.Empty(t, env.outbox.Sent())
	require.Zero(t, env.ledger.Calls(memory.OpSubmit))
}

func TestRouteExpired(t *testing.T) {
	env := newRouterEnv(t, RouterConfig{}, nil)

	msg := env.payment("tx")
	msg.Expiry = env.clock.Now().Unix()
	res := env.router.Route(context.Background(), "conn", signedRaw(t, env.alice, msg))
	require.ErrorIs(t, res.Err, errcode.ErrExpiredIntent)
	require.Zero(t, env.ledger.Calls(memory.OpSubmit))

	_, ack := env.lastReply(t)
	require.Equal(t, errcode.ErrExpiredIntent.Code(), ack.Code)
}

func TestRouteRateLimited(t *testing.T) {
	env := newRouterEnv(t, RouterConfig{RateLimit: 1, RateBurst: 2}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res := env.router.Route(ctx, "conn", signedRaw(t, env.alice, env.payment(envelope.NewIntentId())))
		require.NoError(t, res.Err)
	}
	res := env.router.Route(ctx, "conn", signedRaw(t, env.alice, env.payment(envelope.NewIntentId())))
	require.ErrorIs(t, res.Err, errcode.ErrRateLimited)
	require.Nil(t, res.Message)

	// Other origins have their own bucket.
	res = env.router.Route(ctx, "other-conn", signedRaw(t, env.alice, env.payment(envelope.NewIntentId())))
	require.NoError(t, res.Err)

	env.clock.Advance(time.Second)
	res = env.router.Route(ctx, "conn", signedRaw(t, env.alice, env.payment(envelope.NewIntentId())))
	require.NoError(t, res.Err)
}

func TestRoutePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("required whitelist", func(t *testing.T) {
		env := newRouterEnv(t, RouterConfig{RequireWhitelist: true}, nil)
		res := env.router.Route(ctx, "conn", signedRaw(t, env.alice, env.payment("tx")))
		require.ErrorIs(t, res.Err, errcode.ErrUntrustedIdentity)

		_, ack := env.lastReply(t)
		require.Equal(t, errcode.ErrUntrustedIdentity.Code(), ack.Code)
	})

	t.Run("allowances", func(t *testing.T) {
		alice := newSigner(t)
		env := newRouterEnv(t, RouterConfig{}, whitelist{
			alice.NetworkId(): {NetworkId: alice.NetworkId(), AllowSwaps: true, MaxAmount: 100},
		})
		env.alice = alice

		res := env.router.Route(ctx, "conn", signedRaw(t, env.alice, env.payment("tx")))
		require.ErrorIs(t, res.Err, errcode.ErrPolicyViolation)

		res = env.router.Route(ctx, "conn", signedRaw(t, env.alice, env.offer(101)))
		require.ErrorIs(t, res.Err, errcode.ErrPolicyViolation)
		require.Empty(t, env.swaps.handled)

		res = env.router.Route(ctx, "conn", signedRaw(t, env.alice, env.offer(100)))
		require.NoError(t, res.Err)
		require.Len(t, env.swaps.handled, 1)
	})
}

func TestRouteSwapMessage(t *testing.T) {
	env := newRouterEnv(t, RouterConfig{}, nil)
	ctx := context.Background()

	msg := env.offer(100)
	res := env.router.Route(ctx, "conn", signedRaw(t, env.alice, msg))
	require.NoError(t, res.Err)
	require.NotNil(t, res.Transition)
	require.Equal(t, msg.SwapId, res.Transition.SwapId)
	require.Empty(t, env.outbox.Sent())

	env.swaps.err = errcode.ErrPolicyViolation.New("slippage above the accepted one")
	msg = env.offer(100)
	res = env.router.Route(ctx, "conn", signedRaw(t, env.alice, msg))
	require.ErrorIs(t, res.Err, errcode.ErrPolicyViolation)

	reply, ack := env.lastReply(t)
	require.Equal(t, msg.SwapId, reply.SwapId)
	require.Equal(t, msg.IntentId, ack.RefIntentId)
	require.Equal(t, errcode.ErrPolicyViolation.Code(), ack.Code)
}

func TestRouteAcknowledgement(t *testing.T) {
	env := newRouterEnv(t, RouterConfig{}, nil)
	ctx := context.Background()

	refIntentId := envelope.NewIntentId()
	waiter, release := env.router.Await(refIntentId)
	defer release()

	ack := &envelope.Message{
		Type:      envelope.TypeAcknowledgement,
		IntentId:  envelope.NewIntentId(),
		SwapId:    "swap",
		Recipient: env.node.NetworkId(),
		Expiry:    env.clock.Now().Add(time.Minute).Unix(),
		Payload: envelope.Acknowledgement{
			RefIntentId: refIntentId,
			Code:        errcode.ErrPolicyViolation.Code(),
			Reason:      "no",
		},
	}
	res := env.router.Route(ctx, "conn", signedRaw(t, env.alice, ack))
	require.NoError(t, res.Err)

	select {
	case got := <-waiter:
		require.False(t, got.Accepted)
		require.Equal(t, "no", got.Reason)
	case <-time.After(time.Second):
		require.Fail(t, "acknowledgement not delivered")
	}
	require.Equal(t, []rejection{{"swap", refIntentId, errcode.ErrPolicyViolation.Code()}}, env.swaps.rejections)

	// Acknowledgements are never answered.
	res = env.router.Route(ctx, "conn", signedRaw(t, env.alice, ack))
	require.ErrorIs(t, res.Err, errcode.ErrDuplicateIntent)
	require.Empty(t, env.outbox.Sent())
}

func TestHandleDoesNotBlock(t *testing.T) {
	env := newRouterEnv(t, RouterConfig{}, nil)
	t.Cleanup(env.router.Stop)

	slow := env.offer(100)
	entered, release := make(chan struct{}), make(chan struct{})
	env.swaps.hook = func(msg *envelope.Message) {
		if msg.IntentId == slow.IntentId {
			close(entered)
			<-release
		}
	}
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	handle := func(msg *envelope.Message) {
		raw := signedRaw(t, env.alice, msg)
		done := make(chan struct{})
		go func() {
			env.router.Handle(context.Background(), "alice-conn", raw)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			require.FailNow(t, "transport callback blocked")
		}
	}

	handle(slow)
	select {
	case <-entered:
	case <-time.After(time.Second):
		require.FailNow(t, "offer not routed")
	}

	// Queued behind the offer of the same swap.
	abort := env.abort(slow.SwapId)
	handle(abort)

	other := env.offer(100)
	handle(other)
	handle(env.payment("tx-1"))

	require.Eventually(t, func() bool {
		return env.ledger.Calls(memory.OpSubmit) == 1
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return env.router.Stats().InboundPending == 2
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{other.IntentId}, env.swaps.Handled())

	unblock()
	require.Eventually(t, func() bool {
		return len(env.swaps.Handled()) == 3 && env.router.Stats().InboundPending == 0
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{other.IntentId, slow.IntentId, abort.IntentId}, env.swaps.Handled())
}

func TestRouterPrune(t *testing.T) {
	env := newRouterEnv(t, RouterConfig{}, nil)

	res := env.router.Route(context.Background(), "conn", signedRaw(t, env.alice, env.payment("tx")))
	require.NoError(t, res.Err)
	require.Equal(t, 1, env.router.Stats().ReplayEntries)

	env.router.Prune(time.Hour)
	require.Equal(t, 1, env.router.Stats().ReplayEntries)

	env.clock.Advance(2 * time.Minute)
	env.router.Prune(time.Minute)
	require.Zero(t, env.router.Stats().ReplayEntries)
	require.Empty(t, env.router.limiter.peers)
}

func TestReplayCache(t *testing.T) {
	cache := newReplayCache()
	require.True(t, cache.add("alice", "1", 10))
	require.False(t, cache.add("alice", "1", 20))
	require.True(t, cache.add("bob", "1", 10))
	require.True(t, cache.add("alice", "2", 30))
	require.True(t, cache.contains("alice", "1"))

	require.Equal(t, 2, cache.prune(10))
	require.False(t, cache.contains("alice", "1"))
	require.True(t, cache.contains("alice", "2"))
	require.Equal(t, 1, cache.len())
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(0, 0)

	limiter := newRateLimiter(2, 2)
	require.True(t, limiter.allow("alice", now))
	require.True(t, limiter.allow("alice", now))
	require.False(t, limiter.allow("alice", now))
	require.True(t, limiter.allow("bob", now))
	require.True(t, limiter.allow("alice", now.Add(500*time.Millisecond)))

	require.Equal(t, 1, limiter.prune(now.Add(2*time.Second), 1600*time.Millisecond))

	unlimited := newRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.allow("alice", now))
	}
}
