package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
)

type proofRepository struct {
	db *sql.DB
}

func NewProofRepository(db *sql.DB) (domain.ProofRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot open proof repository: db is nil")
	}
	return &proofRepository{db}, nil
}

// Add stores the proof of a swap, proofs are never overwritten.
func (r *proofRepository) Add(ctx context.Context, proof domain.ExecutionProof) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO execution_proof (swap_id, source_chain_tx_hash, dest_chain_tx_hash, issued_at)
			VALUES (?, ?, ?, ?)`,
			proof.SwapId, proof.SourceChainTxHash, proof.DestChainTxHash, proof.IssuedAt,
		)
		if isConstraintErr(err) {
			return fmt.Errorf("proof of swap %s already exists", proof.SwapId)
		}
		return err
	})
}

func (r *proofRepository) Get(ctx context.Context, swapId string) (*domain.ExecutionProof, error) {
	var proof domain.ExecutionProof
	err := r.db.QueryRowContext(ctx,
		`SELECT swap_id, source_chain_tx_hash, dest_chain_tx_hash, issued_at
		FROM execution_proof WHERE swap_id = ?`, swapId,
	).Scan(&proof.SwapId, &proof.SourceChainTxHash, &proof.DestChainTxHash, &proof.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errcode.ErrSessionNotFound.Newf("no proof for swap %s", swapId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proof: %w", err)
	}
	return &proof, nil
}

func (r *proofRepository) Close() {
	// nolint:all
	r.db.Close()
}
