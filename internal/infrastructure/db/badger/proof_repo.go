package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const (
	proofDir = "proof"
)

type proofRepository struct {
	store *badgerhold.Store
}

func NewProofRepository(baseDir string, logger badger.Logger) (domain.ProofRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, proofDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open proof store: %s", err)
	}
	return &proofRepository{store}, nil
}

// Add stores the proof of a swap, proofs are never overwritten.
func (r *proofRepository) Add(ctx context.Context, proof domain.ExecutionProof) error {
	if err := r.store.Insert(proof.SwapId, proof); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("proof of swap %s already exists", proof.SwapId)
		}
		return err
	}
	return nil
}

func (r *proofRepository) Get(ctx context.Context, swapId string) (*domain.ExecutionProof, error) {
	var proof domain.ExecutionProof
	err := r.store.Get(swapId, &proof)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, errcode.ErrSessionNotFound.Newf("proof of swap %s not found", swapId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proof: %w", err)
	}
	return &proof, nil
}

func (r *proofRepository) Close() {
	// nolint:all
	r.store.Close()
}
