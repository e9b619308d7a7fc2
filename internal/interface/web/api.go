package web

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ArkLabsHQ/intentd/internal/core/coordinator"
	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/interface/web/types"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/gin-gonic/gin"
)

func (s *service) getInfo(c *gin.Context) {
	c.JSON(http.StatusOK, toInfo(s.svc.GetInfo()))
}

func (s *service) initiateSwap(c *gin.Context) {
	var body types.InitiateSwapRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	from, err := envelope.ParseAsset(body.From)
	if err != nil {
		badRequest(c, fmt.Errorf("from: %w", err))
		return
	}
	to, err := envelope.ParseAsset(body.To)
	if err != nil {
		badRequest(c, fmt.Errorf("to: %w", err))
		return
	}
	if body.Responder == "" {
		badRequest(c, fmt.Errorf("missing responder"))
		return
	}

	swap, err := s.svc.InitiateSwap(c.Request.Context(), coordinator.InitiateRequest{
		Responder:     body.Responder,
		From:          from,
		To:            to,
		Amount:        body.Amount,
		CounterAmount: body.CounterAmount,
		SlippageBps:   body.SlippageBps,
		TimeoutAt:     body.TimeoutAt,
		TimeoutHeight: body.TimeoutHeight,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSwap(*swap))
}

func (s *service) listSwaps(c *gin.Context) {
	pending := false
	if v := c.Query("pending"); v != "" {
		var err error
		if pending, err = strconv.ParseBool(v); err != nil {
			badRequest(c, fmt.Errorf("invalid pending filter: %w", err))
			return
		}
	}
	swaps, err := s.svc.ListSwaps(c.Request.Context(), pending)
	if err != nil {
		abortWithError(c, err)
		return
	}
	resp := types.Swaps{Swaps: make([]types.Swap, 0, len(swaps))}
	for _, swap := range swaps {
		resp.Swaps = append(resp.Swaps, toSwap(swap))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *service) getSwap(c *gin.Context) {
	swap, err := s.svc.GetSwap(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSwap(*swap))
}

func (s *service) abortSwap(c *gin.Context) {
	var body types.AbortSwapRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
	}
	if err := s.svc.AbortSwap(c.Request.Context(), c.Param("id"), body.Reason); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *service) getProof(c *gin.Context) {
	proof, err := s.svc.GetProof(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.Proof{
		SwapId:            proof.SwapId,
		SourceChainTxHash: proof.SourceChainTxHash,
		DestChainTxHash:   proof.DestChainTxHash,
		IssuedAt:          proof.IssuedAt,
	})
}

func (s *service) sendPayment(c *gin.Context) {
	var body types.PaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if body.Chain == "" {
		badRequest(c, fmt.Errorf("missing chain"))
		return
	}
	tx, err := base64.StdEncoding.DecodeString(body.TxEnvelope)
	if err != nil || len(tx) == 0 {
		badRequest(c, fmt.Errorf("invalid tx envelope, must be base64 encoded"))
		return
	}

	ack, err := s.svc.SendPayment(c.Request.Context(), body.Peer, body.Chain, tx, body.Metadata)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAcknowledgement(ack))
}

func (s *service) sendTrustline(c *gin.Context) {
	var body types.TrustlineRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	asset, err := envelope.ParseAsset(body.Asset)
	if err != nil {
		badRequest(c, err)
		return
	}
	tx, err := base64.StdEncoding.DecodeString(body.TxEnvelope)
	if err != nil || len(tx) == 0 {
		badRequest(c, fmt.Errorf("invalid tx envelope, must be base64 encoded"))
		return
	}

	ack, err := s.svc.SendTrustline(c.Request.Context(), body.Peer, asset, body.Limit, body.Authorized, tx)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAcknowledgement(ack))
}

func (s *service) linkIdentity(c *gin.Context) {
	var body types.LinkIdentityRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	sig, err := hex.DecodeString(body.Signature)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid signature, must be hex encoded"))
		return
	}

	identity, err := s.svc.LinkIdentity(
		c.Request.Context(), body.NetworkId, body.Chain, body.Account,
		domain.LinkProof{IssuedAt: body.IssuedAt, Signature: sig},
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toIdentity(*identity))
}

func (s *service) getIdentities(c *gin.Context) {
	identities := s.svc.ResolveIdentity(c.Param("id"))
	resp := types.Identities{Identities: make([]types.Identity, 0, len(identities))}
	for _, identity := range identities {
		resp.Identities = append(resp.Identities, toIdentity(identity))
	}
	c.JSON(http.StatusOK, resp)
}
