package domain

import (
	"context"
	"fmt"
)

type LinkProof struct {
	IssuedAt  int64
	Signature []byte
}

// PeerIdentity binds a network id to an account on a ledger.
type PeerIdentity struct {
	NetworkId     string
	LedgerChain   string
	LedgerAccount string
	LinkProof     LinkProof
}

// LinkStatement returns the bytes signed by the ledger account key to prove
// the link.
func LinkStatement(networkId, chain, account string, issuedAt int64) []byte {
	return []byte(fmt.Sprintf("intentd-link/v1\n%s\n%s\n%s\n%d", networkId, chain, account, issuedAt))
}

// WhitelistPolicy lists what a whitelisted peer may ask for.
type WhitelistPolicy struct {
	NetworkId       string
	AllowPayments   bool
	AllowSwaps      bool
	AllowTrustlines bool
	// MaxAmount bounds swap amounts when not zero.
	MaxAmount uint64
}

// IdentityRepository keeps one identity per (network id, chain).
type IdentityRepository interface {
	GetAll(ctx context.Context) ([]PeerIdentity, error)
	Get(ctx context.Context, networkId, chain string) (*PeerIdentity, error)
	Upsert(ctx context.Context, identity PeerIdentity) error
	Close()
}
