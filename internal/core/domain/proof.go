package domain

import "context"

type ExecutionProof struct {
	SwapId            string
	SourceChainTxHash string
	DestChainTxHash   string
	IssuedAt          int64
}

// ProofRepository is insert only, a proof is never updated once stored.
type ProofRepository interface {
	Add(ctx context.Context, proof ExecutionProof) error
	Get(ctx context.Context, swapId string) (*ExecutionProof, error)
	Close()
}
