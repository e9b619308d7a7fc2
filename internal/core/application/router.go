package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/coordinator"
	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	log "github.com/sirupsen/logrus"
)

// SwapHandler is the part of the coordinator the router feeds.
type SwapHandler interface {
	HandleMessage(ctx context.Context, msg *envelope.Message) (*coordinator.TransitionResult, error)
	HandleRejection(ctx context.Context, swapId, refIntentId string, code uint32, reason string)
}

type Whitelist interface {
	IsWhitelisted(networkId string) bool
	Policy(networkId string) (domain.WhitelistPolicy, bool)
}

// RoutingResult is the outcome of routing one inbound envelope.
type RoutingResult struct {
	// Message is nil when the bytes could not be decoded.
	Message    *envelope.Message
	Transition *coordinator.TransitionResult
	Receipt    *ports.TxReceipt
	// Reply is the acknowledgement sent back to the sender, if any.
	Reply *envelope.Message
	Err   error
}

type RouterConfig struct {
	RateLimit        float64
	RateBurst        int
	RequireWhitelist bool
	MessageTTL       time.Duration
	Now              func() time.Time
}

type Router struct {
	cfg       RouterConfig
	signer    envelope.Signer
	swaps     SwapHandler
	executor  *executor
	whitelist Whitelist
	outbox    coordinator.Outbox

	limiter *rateLimiter
	replay  *replayCache
	stats   *statsCollector
	inbox   *inbox

	lock    sync.Mutex
	waiters map[string]chan envelope.Acknowledgement
}

func NewRouter(
	cfg RouterConfig, signer envelope.Signer, swaps SwapHandler,
	gateways ports.GatewayRegistry, gatewayTimeout time.Duration,
	whitelist Whitelist, outbox coordinator.Outbox,
) *Router {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = 10 * time.Minute
	}
	if gatewayTimeout <= 0 {
		gatewayTimeout = time.Minute
	}
	return &Router{
		cfg:       cfg,
		signer:    signer,
		swaps:     swaps,
		executor:  &executor{gateways, gatewayTimeout},
		whitelist: whitelist,
		outbox:    outbox,
		limiter:   newRateLimiter(cfg.RateLimit, cfg.RateBurst),
		replay:    newReplayCache(),
		stats:     newStatsCollector(),
		inbox:     newInbox(),
		waiters:   make(map[string]chan envelope.Acknowledgement),
	}
}

// Handle is the transport receive callback. It never waits for the
// envelope to be handled: envelopes of a swap are routed in arrival order,
// independently of other swaps and of stateless intents.
func (r *Router) Handle(_ context.Context, from string, raw []byte) {
	if !r.limiter.allow(from, r.cfg.Now()) {
		err := errcode.ErrRateLimited.Newf("peer %s exceeded its rate limit", from)
		r.stats.outcome(errcode.CodeOf(err), false)
		log.WithError(err).WithField("from", from).Debug("inbound message rejected")
		return
	}
	if !r.inbox.push(inboundKey(from, raw), func(ctx context.Context) {
		r.logRejection(from, r.route(ctx, raw))
	}) {
		log.WithField("from", from).Debug("router stopped, inbound message dropped")
	}
}

// Stop waits for the inbound envelopes being routed and drops the queued
// ones.
func (r *Router) Stop() {
	r.inbox.stop()
}

// inboundKey orders the envelopes of one swap, and those a peer sends
// outside of swaps. Every stateless intent gets its own key.
func inboundKey(from string, raw []byte) string {
	msg, err := envelope.Decode(raw)
	if err != nil {
		return "conn/" + from
	}
	switch {
	case msg.SwapId != "":
		return "swap/" + msg.SwapId
	case msg.Type == envelope.TypePaymentRequest || msg.Type == envelope.TypeTrustlineUpdate:
		return "intent/" + msg.Sender + "/" + msg.IntentId
	default:
		return "peer/" + msg.Sender
	}
}

func (r *Router) logRejection(from string, res *RoutingResult) {
	if res.Err == nil {
		return
	}
	entry := log.WithError(res.Err).WithField("from", from)
	if res.Message != nil {
		entry = entry.WithFields(log.Fields{
			"peer":   res.Message.Sender,
			"intent": res.Message.IntentId,
			"type":   res.Message.Type.String(),
		})
	}
	entry.Debug("inbound message rejected")
}

// Route validates raw and hands it to the coordinator, the stateless
// executor or the waiter of an acknowledgement. Rejections of authenticated
// senders are answered with a negative acknowledgement; acknowledgements are
// never answered.
func (r *Router) Route(ctx context.Context, from string, raw []byte) *RoutingResult {
	if !r.limiter.allow(from, r.cfg.Now()) {
		res := &RoutingResult{Err: errcode.ErrRateLimited.Newf("peer %s exceeded its rate limit", from)}
		r.stats.outcome(errcode.CodeOf(res.Err), false)
		return res
	}
	return r.route(ctx, raw)
}

func (r *Router) route(ctx context.Context, raw []byte) *RoutingResult {
	now := r.cfg.Now()
	res := &RoutingResult{}

	msg, err := envelope.Decode(raw)
	if err != nil {
		res.Err = err
		r.stats.outcome(errcode.CodeOf(err), false)
		return res
	}
	res.Message = msg

	if msg.Recipient != r.signer.NetworkId() {
		res.Err = errcode.ErrMalformedEnvelope.Newf("message addressed to %s", msg.Recipient)
		r.stats.outcome(errcode.CodeOf(res.Err), false)
		return res
	}
	if err := envelope.Verify(msg); err != nil {
		res.Err = err
		r.stats.outcome(errcode.CodeOf(err), false)
		return res
	}
	r.stats.observe(msg.Sender, msg.Type)

	if err := r.admit(msg, now); err != nil {
		return r.reject(res, err)
	}

	switch msg.Type {
	case envelope.TypeAcknowledgement:
		r.acknowledged(ctx, msg)
	case envelope.TypePaymentRequest, envelope.TypeTrustlineUpdate:
		receipt, err := r.executor.execute(ctx, msg)
		if err != nil {
			return r.reject(res, err)
		}
		res.Receipt = receipt
		res.Reply = r.reply(msg, envelope.Acknowledgement{
			RefIntentId: msg.IntentId,
			Accepted:    true,
			TxHash:      receipt.TxHash,
		})
	default:
		transition, err := r.swaps.HandleMessage(ctx, msg)
		res.Transition = transition
		if err != nil {
			return r.reject(res, err)
		}
	}

	r.stats.outcome(0, true)
	return res
}

// admit applies expiry, whitelist and replay checks to an authenticated
// message.
func (r *Router) admit(msg *envelope.Message, now time.Time) error {
	if msg.Expiry <= now.Unix() {
		return errcode.ErrExpiredIntent.Newf("intent expired at %d", msg.Expiry)
	}

	if msg.Type != envelope.TypeAcknowledgement {
		if err := r.checkPolicy(msg); err != nil {
			return err
		}
	}

	if !r.replay.add(msg.Sender, msg.IntentId, msg.Expiry) {
		return errcode.ErrDuplicateIntent.Newf("intent %s already received", msg.IntentId)
	}
	return nil
}

func (r *Router) checkPolicy(msg *envelope.Message) error {
	policy, ok := r.whitelist.Policy(msg.Sender)
	if !ok {
		if r.cfg.RequireWhitelist {
			return errcode.ErrUntrustedIdentity.Newf("peer %s is not whitelisted", msg.Sender)
		}
		return nil
	}

	switch msg.Type {
	case envelope.TypePaymentRequest:
		if !policy.AllowPayments {
			return errcode.ErrPolicyViolation.New("payments not allowed")
		}
	case envelope.TypeTrustlineUpdate:
		if !policy.AllowTrustlines {
			return errcode.ErrPolicyViolation.New("trustline updates not allowed")
		}
	case envelope.TypeSwapOffer:
		if !policy.AllowSwaps {
			return errcode.ErrPolicyViolation.New("swaps not allowed")
		}
		offer := msg.Payload.(envelope.SwapOffer)
		if policy.MaxAmount > 0 && offer.Amount > policy.MaxAmount {
			return errcode.ErrPolicyViolation.Newf(
				"amount %d above the %d allowed to the peer", offer.Amount, policy.MaxAmount,
			)
		}
	}
	return nil
}

func (r *Router) acknowledged(ctx context.Context, msg *envelope.Message) {
	ack := msg.Payload.(envelope.Acknowledgement)
	if !ack.Accepted && msg.SwapId != "" {
		r.swaps.HandleRejection(ctx, msg.SwapId, ack.RefIntentId, ack.Code, ack.Reason)
	}

	r.lock.Lock()
	waiter, ok := r.waiters[ack.RefIntentId]
	delete(r.waiters, ack.RefIntentId)
	r.lock.Unlock()
	if ok {
		waiter <- ack
	}
}

func (r *Router) reject(res *RoutingResult, err error) *RoutingResult {
	res.Err = err
	code := errcode.CodeOf(err)
	r.stats.outcome(code, false)

	msg := res.Message
	if msg.Type == envelope.TypeAcknowledgement {
		return res
	}
	if code == 0 {
		code = errcode.ErrPolicyViolation.Code()
	}
	reason := err.Error()
	if errors.Is(err, errcode.ErrSubmissionFailed) {
		reason = errcode.ErrSubmissionFailed.Error()
	}
	res.Reply = r.reply(msg, envelope.Acknowledgement{
		RefIntentId: msg.IntentId,
		Code:        code,
		Reason:      reason,
	})
	return res
}

// reply signs and dispatches an acknowledgement of msg to its sender.
func (r *Router) reply(msg *envelope.Message, ack envelope.Acknowledgement) *envelope.Message {
	now := r.cfg.Now()
	out := &envelope.Message{
		Type:      envelope.TypeAcknowledgement,
		IntentId:  envelope.NewIntentId(),
		SwapId:    msg.SwapId,
		Recipient: msg.Sender,
		Expiry:    now.Add(r.cfg.MessageTTL).Unix(),
		Payload:   ack,
	}
	if err := envelope.Sign(out, r.signer); err != nil {
		log.WithError(err).Error("failed to sign acknowledgement")
		return nil
	}
	r.outbox.Dispatch(out, now.Add(r.cfg.MessageTTL))
	return out
}

// Await returns a channel receiving the acknowledgement of the given intent
// and a function releasing it.
func (r *Router) Await(intentId string) (<-chan envelope.Acknowledgement, func()) {
	ch := make(chan envelope.Acknowledgement, 1)
	r.lock.Lock()
	r.waiters[intentId] = ch
	r.lock.Unlock()
	return ch, func() {
		r.lock.Lock()
		defer r.lock.Unlock()
		if current, ok := r.waiters[intentId]; ok && current == ch {
			delete(r.waiters, intentId)
		}
	}
}

// Prune forgets expired intents and idle rate limit buckets.
func (r *Router) Prune(idle time.Duration) {
	now := r.cfg.Now()
	intents := r.replay.prune(now.Unix())
	peers := r.limiter.prune(now, idle)
	if intents > 0 || peers > 0 {
		log.WithFields(log.Fields{"intents": intents, "peers": peers}).Debug("router pruned")
	}
}

func (r *Router) Stats() Stats {
	stats := r.stats.snapshot()
	stats.ReplayEntries = r.replay.len()
	stats.InboundPending = r.inbox.pending()
	return stats
}
