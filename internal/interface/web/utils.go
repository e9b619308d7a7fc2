package web

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/ArkLabsHQ/intentd/internal/core/application"
	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/interface/web/types"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/gin-gonic/gin"
)

var statusByError = []struct {
	err    *errcode.Error
	status int
}{
	{errcode.ErrSessionNotFound, http.StatusNotFound},
	{errcode.ErrMalformedEnvelope, http.StatusBadRequest},
	{errcode.ErrInvalidSignature, http.StatusBadRequest},
	{errcode.ErrInvalidLinkProof, http.StatusBadRequest},
	{errcode.ErrExpiredIntent, http.StatusBadRequest},
	{errcode.ErrPolicyViolation, http.StatusBadRequest},
	{errcode.ErrDuplicateIntent, http.StatusConflict},
	{errcode.ErrUntrustedIdentity, http.StatusForbidden},
	{errcode.ErrRateLimited, http.StatusTooManyRequests},
	{errcode.ErrPeerUnreachable, http.StatusBadGateway},
	{errcode.ErrLockFailed, http.StatusBadGateway},
	{errcode.ErrSubmissionFailed, http.StatusBadGateway},
	{errcode.ErrClaimFailed, http.StatusBadGateway},
	{errcode.ErrReclaimFailed, http.StatusBadGateway},
}

func httpStatus(err error) int {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	// nolint:all
	c.Error(err)
	c.AbortWithStatusJSON(httpStatus(err), types.Error{
		Code:  errcode.CodeOf(err),
		Error: err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	// nolint:all
	c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, types.Error{Error: err.Error()})
}

func toSwap(s domain.SwapSession) types.Swap {
	return types.Swap{
		Id:                s.Id,
		Role:              s.Role.String(),
		State:             s.State.String(),
		Initiator:         s.Initiator,
		Responder:         s.Responder,
		From:              s.From.String(),
		To:                s.To.String(),
		Amount:            s.Amount,
		CounterAmount:     s.CounterAmount,
		SlippageBps:       s.SlippageBps,
		Hashlock:          hex.EncodeToString(s.HashlockDigest),
		TimeoutAt:         s.TimeoutAt,
		TimeoutHeight:     s.TimeoutHeight,
		OwnLock:           toLock(s.OwnLock),
		CounterLock:       toLock(s.CounterLock),
		OwnClaim:          toClaim(s.OwnClaim),
		CounterClaim:      toClaim(s.CounterClaim),
		ReclaimTxId:       s.ReclaimTxId,
		Settled:           s.Settled,
		NeedsIntervention: s.NeedsIntervention,
		FailureCode:       s.FailureCode,
		FailureReason:     s.FailureReason,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func toLock(l *domain.LockInfo) *types.Lock {
	if l == nil {
		return nil
	}
	return &types.Lock{
		LockRef:       l.LockRef,
		TxHash:        l.TxHash,
		Asset:         l.Asset.String(),
		Amount:        l.Amount,
		TimeoutAt:     l.TimeoutAt,
		TimeoutHeight: l.TimeoutHeight,
		Recipient:     l.Recipient,
	}
}

func toClaim(c *domain.ClaimInfo) *types.Claim {
	if c == nil {
		return nil
	}
	return &types.Claim{LockRef: c.LockRef, TxHash: c.TxHash}
}

func toIdentity(i domain.PeerIdentity) types.Identity {
	return types.Identity{
		NetworkId: i.NetworkId,
		Chain:     i.LedgerChain,
		Account:   i.LedgerAccount,
		IssuedAt:  i.LinkProof.IssuedAt,
	}
}

func toAcknowledgement(a *envelope.Acknowledgement) types.Acknowledgement {
	return types.Acknowledgement{
		RefIntentId: a.RefIntentId,
		Accepted:    a.Accepted,
		TxHash:      a.TxHash,
		Code:        a.Code,
		Reason:      a.Reason,
	}
}

func toInfo(info application.Info) types.Info {
	chains := info.Chains
	if chains == nil {
		chains = []string{}
	}
	return types.Info{
		NetworkId: info.NetworkId,
		Version:   info.BuildInfo.Version,
		Commit:    info.BuildInfo.Commit,
		Date:      info.BuildInfo.Date,
		Chains:    chains,
		Accounts:  info.Accounts,
		Stats: types.Stats{
			Received:       info.Stats.Received,
			Accepted:       info.Stats.Accepted,
			Rejected:       info.Stats.Rejected,
			ByType:         info.Stats.ByType,
			RejectedBy:     info.Stats.RejectedBy,
			DistinctPeers:  info.Stats.DistinctPeers,
			LiveSessions:   info.Stats.LiveSessions,
			ReplayEntries:  info.Stats.ReplayEntries,
			InboundPending: info.Stats.InboundPending,
		},
	}
}
