package ports

import (
	"context"

	"github.com/ArkLabsHQ/intentd/pkg/envelope"
)

type LockState int

const (
	LockActive LockState = iota
	LockClaimed
	LockReclaimed
)

func (s LockState) String() string {
	switch s {
	case LockActive:
		return "active"
	case LockClaimed:
		return "claimed"
	case LockReclaimed:
		return "reclaimed"
	}
	return "unknown"
}

type LockRequest struct {
	SwapId         string
	Asset          envelope.Asset
	Amount         uint64
	HashlockDigest []byte
	TimeoutAt      int64
	TimeoutHeight  uint32
	// Recipient is the account allowed to claim with the preimage, the
	// locker reclaims after the timeout.
	Recipient string
}

type LockReceipt struct {
	LockRef       string
	TxHash        string
	TimeoutAt     int64
	TimeoutHeight uint32
}

type TxReceipt struct {
	TxHash string
}

type ClaimReceipt struct {
	TxHash string
}

type ReclaimReceipt struct {
	TxHash string
}

// ReceiptStatus is the view of a lock as seen on chain.
type ReceiptStatus struct {
	LockRef        string
	TxHash         string
	Asset          envelope.Asset
	Amount         uint64
	HashlockDigest []byte
	TimeoutAt      int64
	TimeoutHeight  uint32
	Recipient      string
	State          LockState
	ClaimTxHash    string
	ReclaimTxHash  string
	// Preimage is revealed by the claim transaction.
	Preimage []byte
}

// LedgerGateway performs the ledger actions needed by the coordinator on one
// chain. Every call may be slow and may fail, none of them is assumed final
// when it returns.
type LedgerGateway interface {
	Chain() string
	LockFunds(ctx context.Context, req LockRequest) (*LockReceipt, error)
	SubmitTransaction(ctx context.Context, txEnvelope []byte) (*TxReceipt, error)
	ClaimWithPreimage(ctx context.Context, lockRef string, preimage []byte) (*ClaimReceipt, error)
	ReclaimExpired(ctx context.Context, lockRef string) (*ReclaimReceipt, error)
	QueryReceipt(ctx context.Context, lockRef string) (*ReceiptStatus, error)
}

// HeightReporter is implemented by gateways, or explorers, able to tell the
// current block height of their chain.
type HeightReporter interface {
	GetBlockHeight(ctx context.Context) (uint32, error)
}

// EnvelopeValidator checks a chain specific transaction envelope before it
// is submitted.
type EnvelopeValidator interface {
	Chain() string
	Validate(txEnvelope []byte) error
}

type GatewayRegistry interface {
	Gateway(chain string) (LedgerGateway, error)
	HeightReporter(chain string) (HeightReporter, bool)
	Validator(chain string) (EnvelopeValidator, bool)
	Chains() []string
}
