package coordinator

import (
	"bytes"
	"context"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	log "github.com/sirupsen/logrus"
)

// lockOffered locks the offered amount of From for the initiator.
func (s *session) lockOffered(ctx context.Context) error {
	gw, err := s.c.gateways.Gateway(s.swap.From.Chain)
	if err != nil {
		s.abort(ctx, errcode.ErrLockFailed.Code(), err.Error(), true)
		return errcode.ErrLockFailed.Wrap(err, "gateway")
	}

	req := ports.LockRequest{
		SwapId:         s.id,
		Asset:          s.swap.From,
		Amount:         s.swap.Amount,
		HashlockDigest: s.swap.HashlockDigest,
		TimeoutAt:      s.swap.TimeoutAt,
		TimeoutHeight:  s.swap.TimeoutHeight,
		Recipient:      s.swap.InitiatorAccount,
	}
	var receipt *ports.LockReceipt
	err = s.call(ctx, func(ctx context.Context) (err error) {
		receipt, err = gw.LockFunds(ctx, req)
		return
	})
	if err != nil {
		s.log.WithError(err).Warn("failed to lock offered funds")
		s.abort(ctx, errcode.ErrLockFailed.Code(), err.Error(), true)
		return errcode.ErrLockFailed.Wrap(err, "lock offered funds")
	}

	s.swap.OwnLock = lockInfo(req, receipt)
	if s.cancelled(ctx) {
		return nil
	}
	s.transition(ctx, domain.SwapLocked)
	s.emit(lockConfirmation(s.swap.OwnLock, s.swap.HashlockDigest, s.swap.ResponderAccount))
	return nil
}

// counterLocked checks the initiator lock against the chain.
func (s *session) counterLocked(ctx context.Context, lc envelope.LockConfirmation) error {
	lock, err := s.verifyCounterLock(ctx, lc, expectedLock{
		asset:         s.swap.To,
		minAmount:     minCounterAmount(s.swap.CounterAmount, s.swap.SlippageBps),
		minTimeoutAt:  s.swap.OwnLock.TimeoutAt + s.c.cfg.marginSeconds(),
		recipient:     s.swap.ResponderAccount,
		timeoutReason: "counterparty lock times out too early for the safety margin",
	})
	if err != nil {
		s.log.WithError(err).Warn("inconsistent counterparty lock")
		s.abort(ctx, errcode.CodeOf(err), err.Error(), true)
		return nil
	}

	s.swap.CounterLock = lock
	s.transition(ctx, domain.SwapCounterLocked)
	return nil
}

// preimageRevealed claims the initiator lock with the preimage the
// initiator revealed by claiming ours.
func (s *session) preimageRevealed(ctx context.Context, cn envelope.ClaimNotification) error {
	if !envelope.MatchesDigest(cn.Preimage, s.swap.HashlockDigest) {
		return errcode.ErrPolicyViolation.New("preimage does not open the hashlock")
	}
	s.swap.Preimage = cn.Preimage
	s.persist(ctx)

	if s.claimCounter(ctx) {
		s.confirm(ctx)
	}
	return nil
}

type expectedLock struct {
	asset         envelope.Asset
	minAmount     uint64
	minTimeoutAt  int64
	recipient     string
	timeoutReason string
}

// verifyCounterLock fetches the counterparty lock from the chain and checks
// it against what this party expects.
func (s *session) verifyCounterLock(
	ctx context.Context, lc envelope.LockConfirmation, want expectedLock,
) (*domain.LockInfo, error) {
	gw, err := s.c.gateways.Gateway(want.asset.Chain)
	if err != nil {
		return nil, errcode.ErrPolicyViolation.Wrap(err, "gateway")
	}

	var status *ports.ReceiptStatus
	for attempt := 1; attempt <= queryAttempts; attempt++ {
		err = s.call(ctx, func(ctx context.Context) (err error) {
			status, err = gw.QueryReceipt(ctx, lc.LockRef)
			return
		})
		if err == nil || !s.wait(ctx, s.c.cfg.RetryInterval) {
			break
		}
	}
	if err != nil {
		return nil, errcode.ErrLockFailed.Wrap(err, "counterparty lock not found")
	}

	entry := s.log.WithFields(log.Fields{"lock": lc.LockRef, "chain": want.asset.Chain})
	switch {
	case status.State != ports.LockActive:
		return nil, errcode.ErrPolicyViolation.Newf("counterparty lock is %s", status.State)
	case status.Asset != want.asset:
		return nil, errcode.ErrPolicyViolation.Newf("counterparty locked %s, expected %s", status.Asset, want.asset)
	case status.Amount < want.minAmount:
		return nil, errcode.ErrPolicyViolation.Newf(
			"counterparty locked %d, expected at least %d", status.Amount, want.minAmount,
		)
	case !bytes.Equal(status.HashlockDigest, s.swap.HashlockDigest):
		return nil, errcode.ErrPolicyViolation.New("counterparty lock uses another hashlock")
	case status.TimeoutAt < want.minTimeoutAt:
		return nil, errcode.ErrPolicyViolation.Newf(
			"%s: %d < %d", want.timeoutReason, status.TimeoutAt, want.minTimeoutAt,
		)
	case want.recipient != "" && status.Recipient != want.recipient:
		return nil, errcode.ErrPolicyViolation.Newf(
			"counterparty lock pays %s, expected %s", status.Recipient, want.recipient,
		)
	}
	entry.Debug("counterparty lock verified")

	return &domain.LockInfo{
		LockRef:       status.LockRef,
		TxHash:        status.TxHash,
		Asset:         status.Asset,
		Amount:        status.Amount,
		TimeoutAt:     status.TimeoutAt,
		TimeoutHeight: status.TimeoutHeight,
		Recipient:     status.Recipient,
	}, nil
}

func lockInfo(req ports.LockRequest, receipt *ports.LockReceipt) *domain.LockInfo {
	info := &domain.LockInfo{
		LockRef:       receipt.LockRef,
		TxHash:        receipt.TxHash,
		Asset:         req.Asset,
		Amount:        req.Amount,
		TimeoutAt:     req.TimeoutAt,
		TimeoutHeight: req.TimeoutHeight,
		Recipient:     req.Recipient,
	}
	if receipt.TimeoutAt > 0 {
		info.TimeoutAt = receipt.TimeoutAt
	}
	if receipt.TimeoutHeight > 0 {
		info.TimeoutHeight = receipt.TimeoutHeight
	}
	return info
}

func lockConfirmation(lock *domain.LockInfo, digest []byte, receiveAccount string) envelope.LockConfirmation {
	return envelope.LockConfirmation{
		LockRef:        lock.LockRef,
		TxHash:         lock.TxHash,
		Asset:          lock.Asset,
		Amount:         lock.Amount,
		HashlockDigest: digest,
		TimeoutAt:      lock.TimeoutAt,
		TimeoutHeight:  lock.TimeoutHeight,
		ReceiveAccount: receiveAccount,
	}
}
