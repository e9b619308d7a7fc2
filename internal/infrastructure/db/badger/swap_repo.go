package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const (
	swapDir = "swap"
)

type swapRepository struct {
	store *badgerhold.Store
}

func NewSwapRepository(baseDir string, logger badger.Logger) (domain.SwapRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, swapDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open swap store: %s", err)
	}
	return &swapRepository{store}, nil
}

func (r *swapRepository) GetAll(ctx context.Context) ([]domain.SwapSession, error) {
	return r.find(nil)
}

func (r *swapRepository) GetPending(ctx context.Context) ([]domain.SwapSession, error) {
	return r.find(badgerhold.Where("Settled").Eq(false))
}

func (r *swapRepository) Get(ctx context.Context, swapId string) (*domain.SwapSession, error) {
	var data swapData
	err := r.store.Get(swapId, &data)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, errcode.ErrSessionNotFound.Newf("swap %s not found", swapId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}
	swap := data.toSwap()
	return &swap, nil
}

// Add stores a new swap, it fails if one with the same id exists.
func (r *swapRepository) Add(ctx context.Context, swap domain.SwapSession) error {
	if err := r.store.Insert(swap.Id, toSwapData(swap)); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("swap %s already exists", swap.Id)
		}
		return err
	}
	return nil
}

func (r *swapRepository) Update(ctx context.Context, swap domain.SwapSession) error {
	if err := r.store.Update(swap.Id, toSwapData(swap)); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return errcode.ErrSessionNotFound.Newf("swap %s not found", swap.Id)
		}
		return fmt.Errorf("failed to update swap: %w", err)
	}
	return nil
}

func (r *swapRepository) Close() {
	// nolint:all
	r.store.Close()
}

func (r *swapRepository) find(query *badgerhold.Query) ([]domain.SwapSession, error) {
	var list []swapData
	if err := r.store.Find(&list, query); err != nil {
		return nil, fmt.Errorf("failed to get swaps: %w", err)
	}
	swaps := make([]domain.SwapSession, 0, len(list))
	for _, s := range list {
		swaps = append(swaps, s.toSwap())
	}
	return swaps, nil
}

type lockData struct {
	LockRef       string
	TxHash        string
	Asset         string
	Amount        uint64
	TimeoutAt     int64
	TimeoutHeight uint32
	Recipient     string
}

type claimData struct {
	LockRef string
	TxHash  string
}

type swapData struct {
	Id                string
	OfferIntentId     string
	Role              uint8
	Initiator         string
	Responder         string
	From              string
	To                string
	Amount            uint64
	CounterAmount     uint64
	SlippageBps       uint32
	HashlockDigest    []byte
	Preimage          []byte
	TimeoutAt         int64
	TimeoutHeight     uint32
	InitiatorAccount  string
	ResponderAccount  string
	OwnLock           *lockData
	CounterLock       *lockData
	OwnClaim          *claimData
	CounterClaim      *claimData
	ReclaimTxId       string
	State             uint8
	Settled           bool
	NeedsIntervention bool
	ReclaimAttempts   int
	FailureCode       uint32
	FailureReason     string
	CreatedAt         int64
	UpdatedAt         int64
}

func toSwapData(s domain.SwapSession) swapData {
	return swapData{
		Id:                s.Id,
		OfferIntentId:     s.OfferIntentId,
		Role:              uint8(s.Role),
		Initiator:         s.Initiator,
		Responder:         s.Responder,
		From:              s.From.String(),
		To:                s.To.String(),
		Amount:            s.Amount,
		CounterAmount:     s.CounterAmount,
		SlippageBps:       s.SlippageBps,
		HashlockDigest:    s.HashlockDigest,
		Preimage:          s.Preimage,
		TimeoutAt:         s.TimeoutAt,
		TimeoutHeight:     s.TimeoutHeight,
		InitiatorAccount:  s.InitiatorAccount,
		ResponderAccount:  s.ResponderAccount,
		OwnLock:           toLockData(s.OwnLock),
		CounterLock:       toLockData(s.CounterLock),
		OwnClaim:          toClaimData(s.OwnClaim),
		CounterClaim:      toClaimData(s.CounterClaim),
		ReclaimTxId:       s.ReclaimTxId,
		State:             uint8(s.State),
		Settled:           s.Settled,
		NeedsIntervention: s.NeedsIntervention,
		ReclaimAttempts:   s.ReclaimAttempts,
		FailureCode:       s.FailureCode,
		FailureReason:     s.FailureReason,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func (d swapData) toSwap() domain.SwapSession {
	// Assets are only stored after being validated.
	from, _ := envelope.ParseAsset(d.From)
	to, _ := envelope.ParseAsset(d.To)
	return domain.SwapSession{
		Id:                d.Id,
		OfferIntentId:     d.OfferIntentId,
		Role:              domain.SwapRole(d.Role),
		Initiator:         d.Initiator,
		Responder:         d.Responder,
		From:              from,
		To:                to,
		Amount:            d.Amount,
		CounterAmount:     d.CounterAmount,
		SlippageBps:       d.SlippageBps,
		HashlockDigest:    d.HashlockDigest,
		Preimage:          d.Preimage,
		TimeoutAt:         d.TimeoutAt,
		TimeoutHeight:     d.TimeoutHeight,
		InitiatorAccount:  d.InitiatorAccount,
		ResponderAccount:  d.ResponderAccount,
		OwnLock:           d.OwnLock.toLock(),
		CounterLock:       d.CounterLock.toLock(),
		OwnClaim:          d.OwnClaim.toClaim(),
		CounterClaim:      d.CounterClaim.toClaim(),
		ReclaimTxId:       d.ReclaimTxId,
		State:             domain.SwapState(d.State),
		Settled:           d.Settled,
		NeedsIntervention: d.NeedsIntervention,
		ReclaimAttempts:   d.ReclaimAttempts,
		FailureCode:       d.FailureCode,
		FailureReason:     d.FailureReason,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func toLockData(l *domain.LockInfo) *lockData {
	if l == nil {
		return nil
	}
	return &lockData{
		LockRef:       l.LockRef,
		TxHash:        l.TxHash,
		Asset:         l.Asset.String(),
		Amount:        l.Amount,
		TimeoutAt:     l.TimeoutAt,
		TimeoutHeight: l.TimeoutHeight,
		Recipient:     l.Recipient,
	}
}

func (d *lockData) toLock() *domain.LockInfo {
	if d == nil {
		return nil
	}
	asset, _ := envelope.ParseAsset(d.Asset)
	return &domain.LockInfo{
		LockRef:       d.LockRef,
		TxHash:        d.TxHash,
		Asset:         asset,
		Amount:        d.Amount,
		TimeoutAt:     d.TimeoutAt,
		TimeoutHeight: d.TimeoutHeight,
		Recipient:     d.Recipient,
	}
}

func toClaimData(c *domain.ClaimInfo) *claimData {
	if c == nil {
		return nil
	}
	return &claimData{LockRef: c.LockRef, TxHash: c.TxHash}
}

func (d *claimData) toClaim() *domain.ClaimInfo {
	if d == nil {
		return nil
	}
	return &domain.ClaimInfo{LockRef: d.LockRef, TxHash: d.TxHash}
}
