package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/coordinator"
	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/core/identity"
	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	log "github.com/sirupsen/logrus"
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type Config struct {
	Coordinator      coordinator.Config
	SweepInterval    time.Duration
	PruneInterval    time.Duration
	RateLimit        float64
	RateBurst        int
	RequireWhitelist bool
	// AckTimeout bounds the wait for the acknowledgement of a payment or
	// trustline intent sent to a peer.
	AckTimeout time.Duration
}

type Info struct {
	NetworkId string
	BuildInfo BuildInfo
	Chains    []string
	Accounts  map[string]string
	Stats     Stats
}

type Service struct {
	BuildInfo BuildInfo

	cfg          Config
	signer       envelope.Signer
	gateways     ports.GatewayRegistry
	repoManager  ports.RepoManager
	schedulerSvc ports.SchedulerService
	transport    ports.Transport
	linker       *identity.Linker

	coordinator *coordinator.Coordinator
	router      *Router
	dispatcher  *dispatcher
}

func NewService(
	buildInfo BuildInfo,
	cfg Config,
	signer envelope.Signer,
	gateways ports.GatewayRegistry,
	repoManager ports.RepoManager,
	schedulerSvc ports.SchedulerService,
	transport ports.Transport,
	linker *identity.Linker,
) (*Service, error) {
	if cfg.Coordinator.Now == nil {
		cfg.Coordinator.Now = time.Now
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = 5 * time.Minute
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = time.Minute
	}
	retry, maxRetry := cfg.Coordinator.RetryInterval, cfg.Coordinator.MaxRetryInterval
	if retry <= 0 {
		retry = 5 * time.Second
	}
	if maxRetry < retry {
		maxRetry = 10 * retry
	}

	outbox := newDispatcher(transport, retry, maxRetry, cfg.Coordinator.Now)
	coord, err := coordinator.New(
		cfg.Coordinator, signer, gateways, repoManager.Swaps(), repoManager.Proofs(),
		schedulerSvc, outbox, linker,
	)
	if err != nil {
		return nil, err
	}
	outbox.expire = coord.Expire

	router := NewRouter(RouterConfig{
		RateLimit:        cfg.RateLimit,
		RateBurst:        cfg.RateBurst,
		RequireWhitelist: cfg.RequireWhitelist,
		MessageTTL:       cfg.Coordinator.MessageTTL,
		Now:              cfg.Coordinator.Now,
	}, signer, coord, gateways, cfg.Coordinator.GatewayTimeout, linker, outbox)

	return &Service{
		BuildInfo:    buildInfo,
		cfg:          cfg,
		signer:       signer,
		gateways:     gateways,
		repoManager:  repoManager,
		schedulerSvc: schedulerSvc,
		transport:    transport,
		linker:       linker,
		coordinator:  coord,
		router:       router,
		dispatcher:   outbox,
	}, nil
}

// Start loads the linked identities, resumes the pending swaps and starts
// listening to peers.
func (s *Service) Start(ctx context.Context) error {
	if err := s.linker.Load(ctx); err != nil {
		return err
	}

	s.schedulerSvc.Start()
	log.Info("scheduler started")

	if err := s.coordinator.Start(ctx); err != nil {
		return err
	}
	if err := s.schedulerSvc.ScheduleEvery(s.cfg.SweepInterval, s.coordinator.Sweep); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	if err := s.schedulerSvc.ScheduleEvery(s.cfg.PruneInterval, func() {
		s.router.Prune(s.cfg.PruneInterval)
	}); err != nil {
		return fmt.Errorf("failed to schedule prune: %w", err)
	}

	s.transport.OnReceive(s.router.Handle)
	if err := s.transport.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	log.WithField("peer", s.signer.NetworkId()).Info("node started")
	return nil
}

func (s *Service) Stop() {
	s.transport.Close()
	s.router.Stop()
	s.schedulerSvc.Stop()
	log.Info("scheduler stopped")
	s.coordinator.Stop()
	s.dispatcher.Stop()
	s.repoManager.Close()
}

func (s *Service) NetworkId() string {
	return s.signer.NetworkId()
}

func (s *Service) InitiateSwap(ctx context.Context, req coordinator.InitiateRequest) (*domain.SwapSession, error) {
	return s.coordinator.InitiateSwap(ctx, req)
}

func (s *Service) AbortSwap(ctx context.Context, swapId, reason string) error {
	if reason == "" {
		reason = "aborted by operator"
	}
	return s.coordinator.Abort(ctx, swapId, reason)
}

func (s *Service) GetSwap(ctx context.Context, swapId string) (*domain.SwapSession, error) {
	return s.repoManager.Swaps().Get(ctx, swapId)
}

// ListSwaps returns the swaps sorted by creation time, newest first.
func (s *Service) ListSwaps(ctx context.Context, pendingOnly bool) ([]domain.SwapSession, error) {
	var (
		swaps []domain.SwapSession
		err   error
	)
	if pendingOnly {
		swaps, err = s.repoManager.Swaps().GetPending(ctx)
	} else {
		swaps, err = s.repoManager.Swaps().GetAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(swaps, func(i, j int) bool {
		return swaps[i].CreatedAt > swaps[j].CreatedAt
	})
	return swaps, nil
}

func (s *Service) GetProof(ctx context.Context, swapId string) (*domain.ExecutionProof, error) {
	return s.repoManager.Proofs().Get(ctx, swapId)
}

// SendPayment asks peer to submit a payment transaction and waits for its
// acknowledgement.
func (s *Service) SendPayment(
	ctx context.Context, peer, chain string, tx []byte, metadata map[string]string,
) (*envelope.Acknowledgement, error) {
	return s.sendIntent(ctx, peer, envelope.PaymentRequest{
		Chain:      chain,
		TxEnvelope: tx,
		Metadata:   metadata,
	})
}

func (s *Service) SendTrustline(
	ctx context.Context, peer string, asset envelope.Asset, limit uint64, authorized bool, tx []byte,
) (*envelope.Acknowledgement, error) {
	return s.sendIntent(ctx, peer, envelope.TrustlineUpdate{
		Asset:      asset,
		Limit:      limit,
		Authorized: authorized,
		TxEnvelope: tx,
	})
}

func (s *Service) sendIntent(ctx context.Context, peer string, payload envelope.Payload) (*envelope.Acknowledgement, error) {
	if _, err := envelope.ParseNetworkId(peer); err != nil {
		return nil, errcode.ErrPolicyViolation.Wrap(err, "peer")
	}
	now := s.cfg.Coordinator.Now()
	deadline := now.Add(s.cfg.AckTimeout)
	msg := &envelope.Message{
		Type:      payload.Type(),
		IntentId:  envelope.NewIntentId(),
		Recipient: peer,
		Expiry:    deadline.Unix(),
		Payload:   payload,
	}
	if err := envelope.Sign(msg, s.signer); err != nil {
		return nil, err
	}

	ack, release := s.router.Await(msg.IntentId)
	defer release()
	s.dispatcher.Dispatch(msg, deadline)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.AckTimeout)
	defer cancel()
	select {
	case a := <-ack:
		return &a, nil
	case <-ctx.Done():
		return nil, errcode.ErrPeerUnreachable.Newf("no acknowledgement of %s from %s", msg.IntentId, peer)
	}
}

func (s *Service) LinkIdentity(
	ctx context.Context, networkId, chain, account string, proof domain.LinkProof,
) (*domain.PeerIdentity, error) {
	return s.linker.Link(ctx, networkId, chain, account, proof)
}

func (s *Service) ResolveIdentity(networkId string) []domain.PeerIdentity {
	return s.linker.List(networkId)
}

func (s *Service) GetInfo() Info {
	stats := s.router.Stats()
	stats.LiveSessions = s.coordinator.LiveSessions()
	accounts := make(map[string]string, len(s.cfg.Coordinator.Accounts))
	for chain, account := range s.cfg.Coordinator.Accounts {
		accounts[chain] = account
	}
	return Info{
		NetworkId: s.signer.NetworkId(),
		BuildInfo: s.BuildInfo,
		Chains:    s.gateways.Chains(),
		Accounts:  accounts,
		Stats:     stats,
	}
}
