package remote

import (
	"errors"
	"net/http"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type handler struct {
	gateway ports.LedgerGateway
}

// RegisterRoutes exposes the given gateways under /v1/<chain>.
func RegisterRoutes(router gin.IRouter, gateways ...ports.LedgerGateway) {
	for _, gw := range gateways {
		h := &handler{gw}
		group := router.Group("/v1/" + gw.Chain())
		group.POST("/locks", h.lock)
		group.GET("/locks/:ref", h.query)
		group.POST("/locks/:ref/claim", h.claim)
		group.POST("/locks/:ref/reclaim", h.reclaim)
		group.POST("/transactions", h.submit)
		group.GET("/height", h.height)
	}
}

// NewServer returns a gin engine serving the given gateways.
func NewServer(gateways ...ports.LedgerGateway) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, gateways...)
	return router
}

func (h *handler) lock(c *gin.Context) {
	var body lockRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.abort(c, errcode.ErrLockFailed.Wrap(err, "invalid request"))
		return
	}
	req, err := body.parse()
	if err != nil {
		h.abort(c, errcode.ErrLockFailed.Wrap(err, "invalid asset"))
		return
	}
	receipt, err := h.gateway.LockFunds(c.Request.Context(), *req)
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, lockResponse{
		LockRef:       receipt.LockRef,
		TxHash:        receipt.TxHash,
		TimeoutAt:     receipt.TimeoutAt,
		TimeoutHeight: receipt.TimeoutHeight,
	})
}

func (h *handler) submit(c *gin.Context) {
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.abort(c, errcode.ErrSubmissionFailed.Wrap(err, "invalid request"))
		return
	}
	receipt, err := h.gateway.SubmitTransaction(c.Request.Context(), body.TxEnvelope)
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, txResponse{receipt.TxHash})
}

func (h *handler) claim(c *gin.Context) {
	var body claimRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.abort(c, errcode.ErrClaimFailed.Wrap(err, "invalid request"))
		return
	}
	receipt, err := h.gateway.ClaimWithPreimage(c.Request.Context(), c.Param("ref"), body.Preimage)
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, txResponse{receipt.TxHash})
}

func (h *handler) reclaim(c *gin.Context) {
	receipt, err := h.gateway.ReclaimExpired(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, txResponse{receipt.TxHash})
}

func (h *handler) query(c *gin.Context) {
	status, err := h.gateway.QueryReceipt(c.Request.Context(), c.Param("ref"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Code: errcode.CodeOf(err), Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, toReceiptResponse(*status))
}

func (h *handler) height(c *gin.Context) {
	reporter, ok := h.gateway.(ports.HeightReporter)
	if !ok {
		c.JSON(http.StatusNotImplemented, errorResponse{Error: "block height not supported"})
		return
	}
	height, err := reporter.GetBlockHeight(c.Request.Context())
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, heightResponse{height})
}

func (h *handler) abort(c *gin.Context, err error) {
	status := http.StatusUnprocessableEntity
	var coded *errcode.Error
	if !errors.As(err, &coded) {
		status = http.StatusInternalServerError
	}
	log.WithError(err).WithFields(log.Fields{
		"chain": h.gateway.Chain(),
		"path":  c.FullPath(),
	}).Debug("gateway call failed")
	c.JSON(status, errorResponse{Code: errcode.CodeOf(err), Error: err.Error()})
}
