package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/ccoveille/go-safecast"
)

const swapColumns = `id, offer_intent_id, role, initiator, responder, from_asset, to_asset,
	amount, counter_amount, slippage_bps, hashlock_digest, preimage, timeout_at,
	timeout_height, initiator_account, responder_account, own_lock, counter_lock,
	own_claim, counter_claim, reclaim_tx_id, state, settled, needs_intervention,
	reclaim_attempts, failure_code, failure_reason, created_at, updated_at`

type swapRepository struct {
	db *sql.DB
}

func NewSwapRepository(db *sql.DB) (domain.SwapRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot open swap repository: db is nil")
	}
	return &swapRepository{db}, nil
}

func (r *swapRepository) GetAll(ctx context.Context) ([]domain.SwapSession, error) {
	return r.query(ctx, "SELECT "+swapColumns+" FROM swap")
}

func (r *swapRepository) GetPending(ctx context.Context) ([]domain.SwapSession, error) {
	return r.query(ctx, "SELECT "+swapColumns+" FROM swap WHERE settled = FALSE")
}

func (r *swapRepository) Get(ctx context.Context, swapId string) (*domain.SwapSession, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+swapColumns+" FROM swap WHERE id = ?", swapId)
	swap, err := scanSwap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errcode.ErrSessionNotFound.Newf("swap %s not found", swapId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}
	return swap, nil
}

func (r *swapRepository) Add(ctx context.Context, swap domain.SwapSession) error {
	args, err := swapArgs(swap)
	if err != nil {
		return err
	}
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO swap ("+swapColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...,
		)
		if isConstraintErr(err) {
			return fmt.Errorf("swap %s already exists", swap.Id)
		}
		return err
	})
}

func (r *swapRepository) Update(ctx context.Context, swap domain.SwapSession) error {
	args, err := swapArgs(swap)
	if err != nil {
		return err
	}
	// The id moves from the first to the last placeholder.
	args = append(args[1:], args[0])
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE swap SET
			offer_intent_id = ?, role = ?, initiator = ?, responder = ?, from_asset = ?,
			to_asset = ?, amount = ?, counter_amount = ?, slippage_bps = ?,
			hashlock_digest = ?, preimage = ?, timeout_at = ?, timeout_height = ?,
			initiator_account = ?, responder_account = ?, own_lock = ?, counter_lock = ?,
			own_claim = ?, counter_claim = ?, reclaim_tx_id = ?, state = ?, settled = ?,
			needs_intervention = ?, reclaim_attempts = ?, failure_code = ?,
			failure_reason = ?, created_at = ?, updated_at = ?
			WHERE id = ?`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("failed to update swap: %w", err)
		}
		count, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if count == 0 {
			return errcode.ErrSessionNotFound.Newf("swap %s not found", swap.Id)
		}
		return nil
	})
}

func (r *swapRepository) Close() {
	// nolint:all
	r.db.Close()
}

func (r *swapRepository) query(ctx context.Context, query string) ([]domain.SwapSession, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get swaps: %w", err)
	}
	// nolint:all
	defer rows.Close()

	swaps := make([]domain.SwapSession, 0)
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to get swaps: %w", err)
		}
		swaps = append(swaps, *swap)
	}
	return swaps, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

type lockRow struct {
	LockRef       string `json:"lock_ref"`
	TxHash        string `json:"tx_hash"`
	Asset         string `json:"asset"`
	Amount        uint64 `json:"amount"`
	TimeoutAt     int64  `json:"timeout_at"`
	TimeoutHeight uint32 `json:"timeout_height"`
	Recipient     string `json:"recipient"`
}

type claimRow struct {
	LockRef string `json:"lock_ref"`
	TxHash  string `json:"tx_hash"`
}

func swapArgs(s domain.SwapSession) ([]any, error) {
	amount, err := safecast.ToInt64(s.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	counterAmount, err := safecast.ToInt64(s.CounterAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid counter amount: %w", err)
	}
	ownLock, err := encodeLock(s.OwnLock)
	if err != nil {
		return nil, err
	}
	counterLock, err := encodeLock(s.CounterLock)
	if err != nil {
		return nil, err
	}
	ownClaim, err := encodeClaim(s.OwnClaim)
	if err != nil {
		return nil, err
	}
	counterClaim, err := encodeClaim(s.CounterClaim)
	if err != nil {
		return nil, err
	}
	return []any{
		s.Id, s.OfferIntentId, int(s.Role), s.Initiator, s.Responder,
		s.From.String(), s.To.String(), amount, counterAmount, s.SlippageBps,
		s.HashlockDigest, s.Preimage, s.TimeoutAt, s.TimeoutHeight,
		s.InitiatorAccount, s.ResponderAccount, ownLock, counterLock,
		ownClaim, counterClaim, s.ReclaimTxId, int(s.State), s.Settled,
		s.NeedsIntervention, s.ReclaimAttempts, s.FailureCode, s.FailureReason,
		s.CreatedAt, s.UpdatedAt,
	}, nil
}

func scanSwap(row scanner) (*domain.SwapSession, error) {
	var (
		s                                            domain.SwapSession
		role, state                                  int
		from, to                                     string
		amount, counterAmount                        int64
		ownLock, counterLock, ownClaim, counterClaim sql.NullString
	)
	if err := row.Scan(
		&s.Id, &s.OfferIntentId, &role, &s.Initiator, &s.Responder,
		&from, &to, &amount, &counterAmount, &s.SlippageBps,
		&s.HashlockDigest, &s.Preimage, &s.TimeoutAt, &s.TimeoutHeight,
		&s.InitiatorAccount, &s.ResponderAccount, &ownLock, &counterLock,
		&ownClaim, &counterClaim, &s.ReclaimTxId, &state, &s.Settled,
		&s.NeedsIntervention, &s.ReclaimAttempts, &s.FailureCode, &s.FailureReason,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	s.Role = domain.SwapRole(role)
	s.State = domain.SwapState(state)
	if s.From, err = envelope.ParseAsset(from); err != nil {
		return nil, err
	}
	if s.To, err = envelope.ParseAsset(to); err != nil {
		return nil, err
	}
	if s.Amount, err = safecast.ToUint64(amount); err != nil {
		return nil, err
	}
	if s.CounterAmount, err = safecast.ToUint64(counterAmount); err != nil {
		return nil, err
	}
	if s.OwnLock, err = decodeLock(ownLock); err != nil {
		return nil, err
	}
	if s.CounterLock, err = decodeLock(counterLock); err != nil {
		return nil, err
	}
	if s.OwnClaim, err = decodeClaim(ownClaim); err != nil {
		return nil, err
	}
	if s.CounterClaim, err = decodeClaim(counterClaim); err != nil {
		return nil, err
	}
	return &s, nil
}

func encodeLock(l *domain.LockInfo) (sql.NullString, error) {
	if l == nil {
		return sql.NullString{}, nil
	}
	buf, err := json.Marshal(lockRow{
		LockRef:       l.LockRef,
		TxHash:        l.TxHash,
		Asset:         l.Asset.String(),
		Amount:        l.Amount,
		TimeoutAt:     l.TimeoutAt,
		TimeoutHeight: l.TimeoutHeight,
		Recipient:     l.Recipient,
	})
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(buf), Valid: true}, nil
}

func decodeLock(s sql.NullString) (*domain.LockInfo, error) {
	if !s.Valid {
		return nil, nil
	}
	var row lockRow
	if err := json.Unmarshal([]byte(s.String), &row); err != nil {
		return nil, fmt.Errorf("invalid lock: %w", err)
	}
	asset, err := envelope.ParseAsset(row.Asset)
	if err != nil {
		return nil, err
	}
	return &domain.LockInfo{
		LockRef:       row.LockRef,
		TxHash:        row.TxHash,
		Asset:         asset,
		Amount:        row.Amount,
		TimeoutAt:     row.TimeoutAt,
		TimeoutHeight: row.TimeoutHeight,
		Recipient:     row.Recipient,
	}, nil
}

func encodeClaim(c *domain.ClaimInfo) (sql.NullString, error) {
	if c == nil {
		return sql.NullString{}, nil
	}
	buf, err := json.Marshal(claimRow{c.LockRef, c.TxHash})
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(buf), Valid: true}, nil
}

func decodeClaim(s sql.NullString) (*domain.ClaimInfo, error) {
	if !s.Valid {
		return nil, nil
	}
	var row claimRow
	if err := json.Unmarshal([]byte(s.String), &row); err != nil {
		return nil, fmt.Errorf("invalid claim: %w", err)
	}
	return &domain.ClaimInfo{LockRef: row.LockRef, TxHash: row.TxHash}, nil
}
