// Package coordinator drives hashlock/timelock swap sessions. Each session is
// owned by its own goroutine fed through a mailbox, sessions progress in
// parallel and every transition of one session is serialized.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	log "github.com/sirupsen/logrus"
)

// Outbox delivers the messages emitted by sessions. Messages of one swap
// must be delivered in order, until deadline.
type Outbox interface {
	Dispatch(msg *envelope.Message, deadline time.Time)
}

// AccountResolver returns the ledger account linked by a peer on a chain.
type AccountResolver interface {
	ResolveAccount(networkId, chain string) (string, bool)
}

// TransitionResult is what a session produced while handling an event.
type TransitionResult struct {
	SwapId   string
	State    domain.SwapState
	Outbound []*envelope.Message
	Proof    *domain.ExecutionProof
}

type InitiateRequest struct {
	Responder     string
	From          envelope.Asset
	To            envelope.Asset
	Amount        uint64
	CounterAmount uint64
	SlippageBps   uint32
	TimeoutAt     int64
	TimeoutHeight uint32
}

type Coordinator struct {
	cfg       Config
	signer    envelope.Signer
	gateways  ports.GatewayRegistry
	swaps     domain.SwapRepository
	proofs    domain.ProofRepository
	scheduler ports.SchedulerService
	outbox    Outbox
	accounts  AccountResolver

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lock     sync.Mutex
	sessions map[string]*session
}

func New(
	cfg Config, signer envelope.Signer, gateways ports.GatewayRegistry,
	swaps domain.SwapRepository, proofs domain.ProofRepository,
	scheduler ports.SchedulerService, outbox Outbox, accounts AccountResolver,
) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid coordinator config: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:       cfg,
		signer:    signer,
		gateways:  gateways,
		swaps:     swaps,
		proofs:    proofs,
		scheduler: scheduler,
		outbox:    outbox,
		accounts:  accounts,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*session),
	}, nil
}

// Start resumes the sessions that were not settled when the node stopped.
func (c *Coordinator) Start(ctx context.Context) error {
	pending, err := c.swaps.GetPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending swaps: %w", err)
	}

	for _, swap := range pending {
		s := c.spawn(swap)
		s.resume()
	}
	if len(pending) > 0 {
		log.Infof("resumed %d pending swap sessions", len(pending))
	}
	return nil
}

// Stop terminates every session actor. Sessions are persisted on every
// transition, the ones not settled are resumed by the next Start.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) NetworkId() string {
	return c.signer.NetworkId()
}

func (c *Coordinator) now() time.Time {
	return c.cfg.Now()
}

// HandleMessage applies a verified swap message to its session, creating the
// session for a new offer.
func (c *Coordinator) HandleMessage(ctx context.Context, msg *envelope.Message) (*TransitionResult, error) {
	if !msg.Type.IsSwapMessage() {
		return nil, errcode.ErrMalformedEnvelope.Newf("%s is not a swap message", msg.Type)
	}
	if msg.Type == envelope.TypeSwapOffer {
		return c.acceptOffer(ctx, msg)
	}

	if s, ok := c.session(msg.SwapId); ok {
		res, err := s.send(ctx, command{kind: eventMessage, msg: msg})
		if !errors.Is(err, errSessionClosed) {
			return res, err
		}
	}
	return c.handleSettled(ctx, msg)
}

// InitiateSwap creates an initiator session and sends the offer to the
// responder.
func (c *Coordinator) InitiateSwap(ctx context.Context, req InitiateRequest) (*domain.SwapSession, error) {
	if _, err := envelope.ParseNetworkId(req.Responder); err != nil {
		return nil, errcode.ErrPolicyViolation.Wrap(err, "responder")
	}
	if req.Responder == c.NetworkId() {
		return nil, errcode.ErrPolicyViolation.New("cannot swap with self")
	}
	if req.Amount == 0 || req.CounterAmount == 0 {
		return nil, errcode.ErrPolicyViolation.New("missing amount")
	}
	if req.SlippageBps > maxBps {
		return nil, errcode.ErrPolicyViolation.Newf("slippage %d bps out of range", req.SlippageBps)
	}
	for _, chain := range []string{req.From.Chain, req.To.Chain} {
		if _, err := c.gateways.Gateway(chain); err != nil {
			return nil, errcode.ErrPolicyViolation.Wrap(err, "gateway")
		}
	}
	account, ok := c.cfg.Accounts[req.From.Chain]
	if !ok {
		return nil, errcode.ErrPolicyViolation.Newf("no receiving account configured for %s", req.From.Chain)
	}
	// The responder lock must leave room for ours.
	now := c.now()
	if req.TimeoutAt <= now.Add(2*c.cfg.SafetyMargin).Unix() {
		return nil, errcode.ErrPolicyViolation.Newf(
			"timeout must be later than %s", now.Add(2*c.cfg.SafetyMargin).UTC(),
		)
	}

	preimage, err := envelope.NewPreimage()
	if err != nil {
		return nil, err
	}
	intentId := envelope.NewIntentId()
	swap := domain.SwapSession{
		Id:               envelope.DeriveSwapId(c.NetworkId(), intentId),
		OfferIntentId:    intentId,
		Role:             domain.RoleInitiator,
		Initiator:        c.NetworkId(),
		Responder:        req.Responder,
		From:             req.From,
		To:               req.To,
		Amount:           req.Amount,
		CounterAmount:    req.CounterAmount,
		SlippageBps:      req.SlippageBps,
		HashlockDigest:   envelope.HashPreimage(preimage),
		Preimage:         preimage,
		TimeoutAt:        req.TimeoutAt,
		TimeoutHeight:    req.TimeoutHeight,
		InitiatorAccount: account,
		State:            domain.SwapProposed,
		CreatedAt:        now.Unix(),
		UpdatedAt:        now.Unix(),
	}

	s, err := c.create(ctx, swap)
	if err != nil {
		return nil, err
	}
	if _, err := s.send(ctx, command{kind: eventStart}); err != nil {
		return nil, err
	}
	return c.swaps.Get(ctx, swap.Id)
}

// Abort records an abort request for the session. The request is applied
// as soon as any in-flight gateway call resolves.
func (c *Coordinator) Abort(ctx context.Context, swapId, reason string) error {
	s, ok := c.session(swapId)
	if !ok {
		return c.notLive(ctx, swapId)
	}
	s.requestAbort(reason)
	if s.awaiting.Load() {
		c.post(swapId, eventAbort)
		return nil
	}
	_, err := s.send(ctx, command{kind: eventAbort, reason: reason})
	if errors.Is(err, errSessionClosed) {
		return c.notLive(ctx, swapId)
	}
	return err
}

// Expire forces the session to expire, no matter its timeout.
func (c *Coordinator) Expire(ctx context.Context, swapId, reason string) error {
	s, ok := c.session(swapId)
	if !ok {
		return c.notLive(ctx, swapId)
	}
	_, err := s.send(ctx, command{kind: eventExpire, reason: reason})
	if errors.Is(err, errSessionClosed) {
		return c.notLive(ctx, swapId)
	}
	return err
}

// HandleRejection reacts to a negative acknowledgement of a message sent for
// the swap. Only the rejection of the offer ends the session.
func (c *Coordinator) HandleRejection(ctx context.Context, swapId, refIntentId string, code uint32, reason string) {
	s, ok := c.session(swapId)
	if !ok {
		return
	}
	// nolint:errcheck
	s.send(ctx, command{
		kind:   eventRejected,
		refId:  refIntentId,
		code:   code,
		reason: reason,
	})
}

// Sweep ticks every live session: expired ones are forced to Expired,
// pending claims and confirmations are retried.
func (c *Coordinator) Sweep() {
	c.lock.Lock()
	live := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		live = append(live, s)
	}
	c.lock.Unlock()

	var wg sync.WaitGroup
	for _, s := range live {
		wg.Add(1)
		go func(s *session) {
			defer wg.Done()
			// nolint:errcheck
			s.send(c.ctx, command{kind: eventTick})
		}(s)
	}
	wg.Wait()
}

// Awaiting tells whether the session is waiting for a gateway call.
func (c *Coordinator) Awaiting(swapId string) bool {
	s, ok := c.session(swapId)
	return ok && s.awaiting.Load()
}

// LiveSessions returns how many sessions are held in memory.
func (c *Coordinator) LiveSessions() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.sessions)
}

func (c *Coordinator) acceptOffer(ctx context.Context, msg *envelope.Message) (*TransitionResult, error) {
	offer := msg.Payload.(envelope.SwapOffer)
	if msg.SwapId != envelope.DeriveSwapId(msg.Sender, msg.IntentId) {
		return nil, errcode.ErrMalformedEnvelope.New("swap id does not derive from the offer")
	}
	known, err := c.isKnown(ctx, msg.SwapId)
	if err != nil {
		return nil, err
	}
	if known {
		return nil, errcode.ErrDuplicateIntent.Newf("swap %s already exists", msg.SwapId)
	}
	if err := c.evaluateOffer(ctx, msg.Sender, offer); err != nil {
		return nil, err
	}

	recipient := offer.ReceiveAccount
	if recipient == "" {
		recipient, _ = c.accounts.ResolveAccount(msg.Sender, offer.From.Chain)
	}
	if recipient == "" {
		return nil, errcode.ErrPolicyViolation.Newf("no account of %s known on %s", msg.Sender, offer.From.Chain)
	}
	account, ok := c.cfg.Accounts[offer.To.Chain]
	if !ok {
		return nil, errcode.ErrPolicyViolation.Newf("no receiving account configured for %s", offer.To.Chain)
	}

	now := c.now().Unix()
	swap := domain.SwapSession{
		Id:               msg.SwapId,
		OfferIntentId:    msg.IntentId,
		Role:             domain.RoleResponder,
		Initiator:        msg.Sender,
		Responder:        c.NetworkId(),
		From:             offer.From,
		To:               offer.To,
		Amount:           offer.Amount,
		CounterAmount:    offer.CounterAmount,
		SlippageBps:      offer.SlippageBps,
		HashlockDigest:   offer.HashlockDigest,
		TimeoutAt:        offer.TimeoutAt,
		TimeoutHeight:    offer.TimeoutHeight,
		InitiatorAccount: recipient,
		ResponderAccount: account,
		State:            domain.SwapProposed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	s, err := c.create(ctx, swap)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, command{kind: eventStart})
}

// evaluateOffer rejects offers that already timed out or that do not fit
// the policy, no session is created for them.
func (c *Coordinator) evaluateOffer(ctx context.Context, sender string, offer envelope.SwapOffer) error {
	now := c.now()
	if offer.TimeoutAt > 0 && offer.TimeoutAt <= now.Unix() {
		return errcode.ErrExpiredIntent.Newf("offer timed out at %d", offer.TimeoutAt)
	}
	if offer.TimeoutHeight > 0 {
		reporter, ok := c.gateways.HeightReporter(offer.From.Chain)
		if !ok {
			return errcode.ErrPolicyViolation.Newf("height timeouts are not supported on %s", offer.From.Chain)
		}
		height, err := reporter.GetBlockHeight(ctx)
		if err != nil {
			return fmt.Errorf("failed to get %s block height: %w", offer.From.Chain, err)
		}
		if height >= offer.TimeoutHeight {
			return errcode.ErrExpiredIntent.Newf(
				"offer timed out at height %d, current height %d", offer.TimeoutHeight, height,
			)
		}
	}
	if offer.TimeoutAt <= 0 {
		return errcode.ErrPolicyViolation.New("offer must time out at a given time")
	}
	if sender == c.NetworkId() {
		return errcode.ErrPolicyViolation.New("cannot swap with self")
	}
	for _, chain := range []string{offer.From.Chain, offer.To.Chain} {
		if _, err := c.gateways.Gateway(chain); err != nil {
			return errcode.ErrPolicyViolation.Wrap(err, "gateway")
		}
	}
	timeLeft := time.Unix(offer.TimeoutAt, 0).Sub(now)
	return c.cfg.Policy.check(offer, timeLeft)
}

// handleSettled answers messages of sessions that are no longer live.
func (c *Coordinator) handleSettled(ctx context.Context, msg *envelope.Message) (*TransitionResult, error) {
	swap, err := c.swaps.Get(ctx, msg.SwapId)
	if err != nil {
		if errors.Is(err, errcode.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get swap %s: %w", msg.SwapId, err)
	}
	if msg.Sender != swap.Counterparty() {
		return nil, errcode.ErrUntrustedIdentity.Newf("%s is not a party of swap %s", msg.Sender, swap.Id)
	}

	res := &TransitionResult{SwapId: swap.Id, State: swap.State}
	if msg.Type == envelope.TypeExecutionProof && swap.State == domain.SwapCompleted {
		proof := msg.Payload.(envelope.ExecutionProof)
		own, err := c.proofs.Get(ctx, swap.Id)
		if err != nil {
			return nil, fmt.Errorf("failed to get proof of swap %s: %w", swap.Id, err)
		}
		if own.SourceChainTxHash != proof.SourceChainTxHash || own.DestChainTxHash != proof.DestChainTxHash {
			log.WithField("swap", swap.Id).Warn("counterparty execution proof does not match ours")
			return nil, errcode.ErrPolicyViolation.New("execution proof does not match")
		}
		return res, nil
	}
	return nil, errcode.ErrDuplicateIntent.Newf("swap %s is %s", swap.Id, swap.State)
}

func (c *Coordinator) notLive(ctx context.Context, swapId string) error {
	swap, err := c.swaps.Get(ctx, swapId)
	if err != nil {
		return err
	}
	return errcode.ErrDuplicateIntent.Newf("swap %s is %s", swapId, swap.State)
}

func (c *Coordinator) isKnown(ctx context.Context, swapId string) (bool, error) {
	if _, ok := c.session(swapId); ok {
		return true, nil
	}
	if _, err := c.swaps.Get(ctx, swapId); err != nil {
		if errors.Is(err, errcode.ErrSessionNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get swap %s: %w", swapId, err)
	}
	return true, nil
}

func (c *Coordinator) session(swapId string) (*session, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	s, ok := c.sessions[swapId]
	return s, ok
}

// create persists a new session and starts its actor.
func (c *Coordinator) create(ctx context.Context, swap domain.SwapSession) (*session, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.sessions[swap.Id]; ok {
		return nil, errcode.ErrDuplicateIntent.Newf("swap %s already exists", swap.Id)
	}
	if err := c.swaps.Add(ctx, swap); err != nil {
		return nil, errcode.ErrDuplicateIntent.Wrap(err, "add swap")
	}
	return c.spawnLocked(swap), nil
}

func (c *Coordinator) spawn(swap domain.SwapSession) *session {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.spawnLocked(swap)
}

func (c *Coordinator) spawnLocked(swap domain.SwapSession) *session {
	s := newSession(c, swap)
	c.sessions[swap.Id] = s
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		s.run(c.ctx)
	}()
	return s
}

func (c *Coordinator) release(s *session) {
	c.lock.Lock()
	if current, ok := c.sessions[s.id]; ok && current == s {
		delete(c.sessions, s.id)
	}
	c.lock.Unlock()

	for _, job := range jobIds(s.id) {
		c.scheduler.Cancel(job)
	}
}

// post delivers an internal event to a live session without waiting for it
// to be handled.
func (c *Coordinator) post(swapId string, kind eventKind) {
	s, ok := c.session(swapId)
	if !ok {
		return
	}
	go func() {
		// nolint:errcheck
		s.send(c.ctx, command{kind: kind, async: true})
	}()
}

// sign builds an outbound message of the session for the counterparty.
func (c *Coordinator) sign(swap *domain.SwapSession, payload envelope.Payload) (*envelope.Message, error) {
	expiry := c.now().Add(c.cfg.MessageTTL).Unix()
	if deadline := c.deadline(swap).Unix(); deadline > expiry {
		expiry = deadline
	}
	msg := &envelope.Message{
		Type:      payload.Type(),
		IntentId:  envelope.NewIntentId(),
		SwapId:    swap.Id,
		Recipient: swap.Counterparty(),
		Expiry:    expiry,
		Payload:   payload,
	}
	if err := envelope.Sign(msg, c.signer); err != nil {
		return nil, err
	}
	return msg, nil
}

// deadline is the latest time messages of the session are worth delivering:
// the initiator lock timeout.
func (c *Coordinator) deadline(swap *domain.SwapSession) time.Time {
	return time.Unix(swap.TimeoutAt, 0).Add(c.cfg.SafetyMargin)
}

const (
	jobExpireAt     = "expire-at"
	jobExpireHeight = "expire-height"
	jobReclaim      = "reclaim"
)

func jobId(swapId, kind string) string {
	return fmt.Sprintf("%s/%s", swapId, kind)
}

func jobIds(swapId string) []string {
	return []string{
		jobId(swapId, jobExpireAt),
		jobId(swapId, jobExpireHeight),
		jobId(swapId, jobReclaim),
	}
}
