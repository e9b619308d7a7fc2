package domain

import (
	"context"

	"github.com/ArkLabsHQ/intentd/pkg/envelope"
)

type SwapState int

const (
	SwapProposed SwapState = iota
	SwapLocked
	SwapCounterLocked
	SwapClaimed
	SwapCompleted
	SwapExpired
	SwapAborted
)

var swapStateNames = map[SwapState]string{
	SwapProposed:      "proposed",
	SwapLocked:        "locked",
	SwapCounterLocked: "counter_locked",
	SwapClaimed:       "claimed",
	SwapCompleted:     "completed",
	SwapExpired:       "expired",
	SwapAborted:       "aborted",
}

func (s SwapState) String() string {
	if name, ok := swapStateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s SwapState) IsTerminal() bool {
	return s == SwapCompleted || s == SwapExpired || s == SwapAborted
}

type SwapRole int

const (
	// RoleInitiator owns the preimage and sent the offer.
	RoleInitiator SwapRole = iota
	// RoleResponder received the offer and locks first.
	RoleResponder
)

func (r SwapRole) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// LockInfo describes a hashlocked output on one of the two chains.
type LockInfo struct {
	LockRef       string
	TxHash        string
	Asset         envelope.Asset
	Amount        uint64
	TimeoutAt     int64
	TimeoutHeight uint32
	Recipient     string
}

type ClaimInfo struct {
	LockRef string
	TxHash  string
}

type SwapSession struct {
	Id            string
	OfferIntentId string
	Role          SwapRole
	Initiator     string
	Responder     string
	From          envelope.Asset
	To            envelope.Asset
	Amount        uint64
	CounterAmount uint64
	SlippageBps   uint32
	// HashlockDigest is sha256(Preimage). The preimage is known from the start
	// by the initiator and learnt from the counterparty claim by the responder.
	HashlockDigest []byte
	Preimage       []byte
	TimeoutAt      int64
	TimeoutHeight  uint32
	// InitiatorAccount receives From on its chain, ResponderAccount receives To.
	InitiatorAccount string
	ResponderAccount string

	OwnLock      *LockInfo
	CounterLock  *LockInfo
	OwnClaim     *ClaimInfo // our claim of the counter lock
	CounterClaim *ClaimInfo // counterparty claim of our lock
	ReclaimTxId  string

	State             SwapState
	Settled           bool
	NeedsIntervention bool
	ReclaimAttempts   int
	FailureCode       uint32
	FailureReason     string
	CreatedAt         int64
	UpdatedAt         int64
}

// Counterparty returns the network id of the other party of the swap.
func (s *SwapSession) Counterparty() string {
	if s.Role == RoleInitiator {
		return s.Responder
	}
	return s.Initiator
}

// OwnAsset is the asset this party locks: the responder locks From, the
// initiator locks To.
func (s *SwapSession) OwnAsset() envelope.Asset {
	if s.Role == RoleInitiator {
		return s.To
	}
	return s.From
}

func (s *SwapSession) CounterAsset() envelope.Asset {
	if s.Role == RoleInitiator {
		return s.From
	}
	return s.To
}

// OwnAccount is the account where this party receives the counter asset.
func (s *SwapSession) OwnAccount() string {
	if s.Role == RoleInitiator {
		return s.InitiatorAccount
	}
	return s.ResponderAccount
}

// NeedsReclaim tells whether funds locked by this party are still waiting to
// be either claimed by the counterparty or reclaimed.
func (s *SwapSession) NeedsReclaim() bool {
	return s.OwnLock != nil && s.CounterClaim == nil && s.ReclaimTxId == ""
}

// Proof returns the settlement proof of a completed session. The source
// chain is the one of From, the destination the one of To.
func (s *SwapSession) Proof(issuedAt int64) *ExecutionProof {
	if s.State != SwapCompleted || s.OwnClaim == nil || s.CounterClaim == nil {
		return nil
	}
	source, dest := s.CounterClaim.TxHash, s.OwnClaim.TxHash
	if s.Role == RoleInitiator {
		source, dest = dest, source
	}
	return &ExecutionProof{
		SwapId:            s.Id,
		SourceChainTxHash: source,
		DestChainTxHash:   dest,
		IssuedAt:          issuedAt,
	}
}

// SwapRepository stores every swap session, settled ones included.
type SwapRepository interface {
	GetAll(ctx context.Context) ([]SwapSession, error)
	GetPending(ctx context.Context) ([]SwapSession, error)
	Get(ctx context.Context, swapId string) (*SwapSession, error)
	Add(ctx context.Context, swap SwapSession) error
	Update(ctx context.Context, swap SwapSession) error
	Close()
}
