package web

import (
	"context"

	"github.com/ArkLabsHQ/intentd/internal/core/application"
	"github.com/ArkLabsHQ/intentd/internal/core/coordinator"
	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// AppService is the part of the application service exposed to operators.
type AppService interface {
	InitiateSwap(ctx context.Context, req coordinator.InitiateRequest) (*domain.SwapSession, error)
	AbortSwap(ctx context.Context, swapId, reason string) error
	GetSwap(ctx context.Context, swapId string) (*domain.SwapSession, error)
	ListSwaps(ctx context.Context, pendingOnly bool) ([]domain.SwapSession, error)
	GetProof(ctx context.Context, swapId string) (*domain.ExecutionProof, error)
	SendPayment(
		ctx context.Context, peer, chain string, tx []byte, metadata map[string]string,
	) (*envelope.Acknowledgement, error)
	SendTrustline(
		ctx context.Context, peer string, asset envelope.Asset, limit uint64, authorized bool, tx []byte,
	) (*envelope.Acknowledgement, error)
	LinkIdentity(ctx context.Context, networkId, chain, account string, proof domain.LinkProof) (*domain.PeerIdentity, error)
	ResolveIdentity(networkId string) []domain.PeerIdentity
	GetInfo() application.Info
}

type service struct {
	*gin.Engine
	svc AppService
}

func NewService(svc AppService) *service {
	router := gin.New()
	setupMiddleware(router)

	s := &service{router, svc}

	v1 := s.Group("/v1")
	v1.GET("/info", s.getInfo)

	v1.POST("/swaps", s.initiateSwap)
	v1.GET("/swaps", s.listSwaps)
	v1.GET("/swaps/:id", s.getSwap)
	v1.POST("/swaps/:id/abort", s.abortSwap)
	v1.GET("/proofs/:id", s.getProof)

	v1.POST("/intents/payment", s.sendPayment)
	v1.POST("/intents/trustline", s.sendTrustline)

	v1.POST("/identities", s.linkIdentity)
	v1.GET("/identities/:id", s.getIdentities)

	return s
}
