package coordinator

import (
	"context"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
)

func (s *session) sendOffer() error {
	offer := envelope.SwapOffer{
		From:           s.swap.From,
		To:             s.swap.To,
		Amount:         s.swap.Amount,
		CounterAmount:  s.swap.CounterAmount,
		SlippageBps:    s.swap.SlippageBps,
		HashlockDigest: s.swap.HashlockDigest,
		TimeoutAt:      s.swap.TimeoutAt,
		TimeoutHeight:  s.swap.TimeoutHeight,
		ReceiveAccount: s.swap.InitiatorAccount,
	}
	msg := &envelope.Message{
		Type:      envelope.TypeSwapOffer,
		IntentId:  s.swap.OfferIntentId,
		SwapId:    s.id,
		Recipient: s.swap.Responder,
		Expiry:    s.swap.TimeoutAt,
		Payload:   offer,
	}
	if err := envelope.Sign(msg, s.c.signer); err != nil {
		s.abort(context.Background(), errcode.ErrPolicyViolation.Code(), err.Error(), false)
		return err
	}
	s.res.Outbound = append(s.res.Outbound, msg)
	s.c.outbox.Dispatch(msg, time.Unix(s.swap.TimeoutAt, 0))
	return nil
}

// responderLocked verifies the responder lock, then locks To for the
// responder with a timeout SafetyMargin later than the responder one and
// claims the responder lock.
func (s *session) responderLocked(ctx context.Context, lc envelope.LockConfirmation) error {
	margin := s.c.cfg.marginSeconds()
	lock, err := s.verifyCounterLock(ctx, lc, expectedLock{
		asset:         s.swap.From,
		minAmount:     s.swap.Amount,
		minTimeoutAt:  s.c.now().Unix() + margin,
		recipient:     s.swap.InitiatorAccount,
		timeoutReason: "responder lock leaves no time to claim",
	})
	if err != nil {
		s.log.WithError(err).Warn("inconsistent responder lock")
		s.abort(ctx, errcode.CodeOf(err), err.Error(), true)
		return nil
	}
	s.swap.CounterLock = lock

	recipient := lc.ReceiveAccount
	if recipient == "" {
		recipient, _ = s.c.accounts.ResolveAccount(s.swap.Responder, s.swap.To.Chain)
	}
	if recipient == "" {
		s.abort(ctx, errcode.ErrPolicyViolation.Code(), "no responder account known on "+s.swap.To.Chain, true)
		return nil
	}
	s.swap.ResponderAccount = recipient
	s.persist(ctx)

	gw, err := s.c.gateways.Gateway(s.swap.To.Chain)
	if err != nil {
		s.abort(ctx, errcode.ErrLockFailed.Code(), err.Error(), true)
		return nil
	}
	req := ports.LockRequest{
		SwapId:         s.id,
		Asset:          s.swap.To,
		Amount:         s.swap.CounterAmount,
		HashlockDigest: s.swap.HashlockDigest,
		TimeoutAt:      lock.TimeoutAt + margin,
		Recipient:      recipient,
	}
	var receipt *ports.LockReceipt
	err = s.call(ctx, func(ctx context.Context) (err error) {
		receipt, err = gw.LockFunds(ctx, req)
		return
	})
	if err != nil {
		s.log.WithError(err).Warn("failed to lock counter funds")
		s.abort(ctx, errcode.ErrLockFailed.Code(), err.Error(), true)
		return nil
	}
	s.swap.OwnLock = lockInfo(req, receipt)
	if s.cancelled(ctx) {
		return nil
	}

	s.transition(ctx, domain.SwapLocked)
	s.emit(lockConfirmation(s.swap.OwnLock, s.swap.HashlockDigest, s.swap.InitiatorAccount))
	// The responder lock was verified before locking.
	s.transition(ctx, domain.SwapCounterLocked)

	s.claimCounter(ctx)
	return nil
}
