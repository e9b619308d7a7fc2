package coordinator

import (
	"context"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	log "github.com/sirupsen/logrus"
)

const queryAttempts = 3

// claimCounter claims the counterparty lock with the preimage. On failure the
// session stays CounterLocked and the claim is retried on the next tick.
func (s *session) claimCounter(ctx context.Context) bool {
	gw, err := s.c.gateways.Gateway(s.swap.CounterLock.Asset.Chain)
	if err != nil {
		s.log.WithError(err).Error("no gateway to claim counterparty lock")
		return false
	}

	var receipt *ports.ClaimReceipt
	err = s.call(ctx, func(ctx context.Context) (err error) {
		receipt, err = gw.ClaimWithPreimage(ctx, s.swap.CounterLock.LockRef, s.swap.Preimage)
		return
	})
	if err != nil {
		s.log.WithError(errcode.ErrClaimFailed.Wrap(err, "claim")).Warn("failed to claim counterparty lock, will retry")
		return false
	}

	s.swap.OwnClaim = &domain.ClaimInfo{LockRef: s.swap.CounterLock.LockRef, TxHash: receipt.TxHash}
	if s.swap.State.IsTerminal() {
		s.persist(ctx)
		return true
	}
	s.transition(ctx, domain.SwapClaimed)
	if s.swap.Role == domain.RoleInitiator {
		s.scheduleExpiry()
	}
	s.emit(envelope.ClaimNotification{
		LockRef:  s.swap.CounterLock.LockRef,
		TxHash:   receipt.TxHash,
		Preimage: s.swap.Preimage,
	})
	s.cancelled(ctx)
	return true
}

// confirm completes the session once the counterparty claimed our lock.
func (s *session) confirm(ctx context.Context) {
	status, err := s.queryOwnLock(ctx)
	if err != nil {
		s.log.WithError(err).Warn("failed to query own lock")
		return
	}
	if status.State != ports.LockClaimed {
		s.log.WithField("lock", status.State).Debug("own lock not claimed yet")
		return
	}
	s.swap.CounterClaim = &domain.ClaimInfo{LockRef: s.swap.OwnLock.LockRef, TxHash: status.ClaimTxHash}
	s.complete(ctx)
}

// complete is only reached with both locks observed on chain with the same
// hashlock and both claimed.
func (s *session) complete(ctx context.Context) {
	if s.swap.OwnLock == nil || s.swap.CounterLock == nil ||
		s.swap.OwnClaim == nil || s.swap.CounterClaim == nil {
		s.log.Error("refusing to complete a swap without both locks claimed")
		return
	}

	s.swap.Settled = true
	s.transition(ctx, domain.SwapCompleted)
	proof := s.swap.Proof(s.c.now().Unix())

	if err := s.c.proofs.Add(ctx, *proof); err != nil {
		s.log.WithError(err).Error("failed to store execution proof")
	}
	s.res.Proof = proof
	s.emit(envelope.ExecutionProof{
		SourceChainTxHash: proof.SourceChainTxHash,
		DestChainTxHash:   proof.DestChainTxHash,
		IssuedAt:          proof.IssuedAt,
	})
	s.log.WithFields(log.Fields{
		"source_tx": proof.SourceChainTxHash,
		"dest_tx":   proof.DestChainTxHash,
	}).Info("swap completed")
}

// expire forces the session to Expired, unless the chain shows it actually
// settled.
func (s *session) expire(ctx context.Context, reason string) {
	if s.swap.State.IsTerminal() {
		return
	}
	if reason == "" {
		reason = "timeout elapsed"
	}
	if s.settledOnChain(ctx) {
		return
	}
	// The counterparty can still claim our lock, the swap is not over.
	if s.swap.State == domain.SwapClaimed && s.c.now().Unix() < s.expiresAt() {
		s.log.WithField("reason", reason).Debug("own lock still claimable, not expiring")
		return
	}

	s.swap.FailureCode = errcode.ErrExpiredIntent.Code()
	s.swap.FailureReason = reason
	s.transition(ctx, domain.SwapExpired)
	s.emit(envelope.SwapAbort{Code: s.swap.FailureCode, Reason: reason})
	s.afterFailure(ctx)
}

// abort moves the session to Aborted. The counterparty is told when notify
// is set.
func (s *session) abort(ctx context.Context, code uint32, reason string, notify bool) {
	if s.swap.State.IsTerminal() {
		return
	}
	s.swap.FailureCode = code
	s.swap.FailureReason = reason
	s.transition(ctx, domain.SwapAborted)
	if notify {
		s.emit(envelope.SwapAbort{Code: code, Reason: reason})
	}
	s.afterFailure(ctx)
}

// afterFailure schedules the reclaim of our lock, or settles the session
// when nothing of ours is locked.
func (s *session) afterFailure(ctx context.Context) {
	if s.swap.NeedsReclaim() {
		s.scheduleReclaim(time.Unix(s.swap.OwnLock.TimeoutAt, 0))
		return
	}
	s.swap.Settled = true
	s.persist(ctx)
}

// settledOnChain completes the session when our lock was claimed by the
// counterparty and we can claim theirs, with the preimage revealed on chain
// if we did not get it.
func (s *session) settledOnChain(ctx context.Context) bool {
	if s.swap.OwnLock == nil || s.swap.CounterLock == nil {
		return false
	}
	status, err := s.queryOwnLock(ctx)
	if err != nil || status.State != ports.LockClaimed {
		return false
	}
	s.swap.CounterClaim = &domain.ClaimInfo{LockRef: s.swap.OwnLock.LockRef, TxHash: status.ClaimTxHash}
	if len(s.swap.Preimage) == 0 && envelope.MatchesDigest(status.Preimage, s.swap.HashlockDigest) {
		s.swap.Preimage = status.Preimage
	}
	if s.swap.OwnClaim == nil && len(s.swap.Preimage) > 0 {
		s.claimCounter(ctx)
	}
	if s.swap.OwnClaim == nil {
		s.persist(ctx)
		return false
	}
	s.complete(ctx)
	return true
}

// reclaim takes back our lock once it timed out. Failures are retried with
// backoff until ReclaimDeadline after the timeout, then the session is left
// to the operator.
func (s *session) reclaim(ctx context.Context) {
	if !s.swap.State.IsTerminal() || s.swap.Settled {
		return
	}
	if !s.swap.NeedsReclaim() {
		s.salvage(ctx)
		return
	}

	timeout := time.Unix(s.swap.OwnLock.TimeoutAt, 0)
	now := s.c.now()
	if now.Before(timeout) {
		s.scheduleReclaim(timeout)
		return
	}

	status, err := s.queryOwnLock(ctx)
	if err == nil {
		switch status.State {
		case ports.LockClaimed:
			s.swap.CounterClaim = &domain.ClaimInfo{LockRef: s.swap.OwnLock.LockRef, TxHash: status.ClaimTxHash}
			if len(s.swap.Preimage) == 0 && envelope.MatchesDigest(status.Preimage, s.swap.HashlockDigest) {
				s.swap.Preimage = status.Preimage
			}
			s.salvage(ctx)
			return
		case ports.LockReclaimed:
			s.swap.ReclaimTxId = status.ReclaimTxHash
			s.settle(ctx)
			return
		}
	}

	gw, err := s.c.gateways.Gateway(s.swap.OwnLock.Asset.Chain)
	if err == nil {
		var receipt *ports.ReclaimReceipt
		err = s.call(ctx, func(ctx context.Context) (err error) {
			receipt, err = gw.ReclaimExpired(ctx, s.swap.OwnLock.LockRef)
			return
		})
		if err == nil {
			s.swap.ReclaimTxId = receipt.TxHash
			s.log.WithField("tx", receipt.TxHash).Info("own lock reclaimed")
			s.settle(ctx)
			return
		}
	}

	s.swap.ReclaimAttempts++
	err = errcode.ErrReclaimFailed.Wrap(err, "reclaim")
	deadline := timeout.Add(s.c.cfg.ReclaimDeadline)
	if !now.Before(deadline) {
		s.swap.NeedsIntervention = true
		s.swap.Settled = true
		s.persist(ctx)
		s.log.WithError(err).WithFields(log.Fields{
			"intervention": true,
			"lock":         s.swap.OwnLock.LockRef,
			"attempts":     s.swap.ReclaimAttempts,
		}).Error("giving up reclaiming own lock, manual intervention required")
		return
	}

	next := now.Add(s.c.cfg.backoff(s.swap.ReclaimAttempts))
	if next.After(deadline) {
		next = deadline
	}
	s.persist(ctx)
	s.log.WithError(err).WithField("attempts", s.swap.ReclaimAttempts).Warn("failed to reclaim own lock, retrying")
	s.scheduleReclaim(next)
}

// salvage claims the counterparty lock of a failed session whose own lock
// was claimed anyway.
func (s *session) salvage(ctx context.Context) {
	if s.swap.OwnClaim == nil && s.swap.CounterLock != nil && len(s.swap.Preimage) > 0 {
		if !s.claimCounter(ctx) {
			if s.c.now().Unix() < s.swap.CounterLock.TimeoutAt {
				s.scheduleReclaim(s.c.now().Add(s.c.cfg.RetryInterval))
				return
			}
			s.log.Error("counterparty lock timed out before it could be claimed")
		}
	}
	s.settle(ctx)
}

func (s *session) settle(ctx context.Context) {
	s.swap.Settled = true
	s.persist(ctx)
}

func (s *session) queryOwnLock(ctx context.Context) (*ports.ReceiptStatus, error) {
	gw, err := s.c.gateways.Gateway(s.swap.OwnLock.Asset.Chain)
	if err != nil {
		return nil, err
	}
	var status *ports.ReceiptStatus
	err = s.call(ctx, func(ctx context.Context) (err error) {
		status, err = gw.QueryReceipt(ctx, s.swap.OwnLock.LockRef)
		return
	})
	return status, err
}

// wait sleeps for d, it returns false if ctx is done first.
func (s *session) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
