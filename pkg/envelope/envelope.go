// Package envelope defines the signed messages exchanged between intentd
// peers and their canonical wire encoding.
package envelope

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Version is the only wire version understood by this package.
const Version = 1

type MessageType uint8

const (
	TypePaymentRequest MessageType = iota + 1
	TypeSwapOffer
	TypeTrustlineUpdate
	TypeExecutionProof
	TypeLockConfirmation
	TypeClaimNotification
	TypeSwapAbort
	TypeAcknowledgement
)

var typeNames = map[MessageType]string{
	TypePaymentRequest:    "PaymentRequest",
	TypeSwapOffer:         "SwapOffer",
	TypeTrustlineUpdate:   "TrustlineUpdate",
	TypeExecutionProof:    "ExecutionProof",
	TypeLockConfirmation:  "LockConfirmation",
	TypeClaimNotification: "ClaimNotification",
	TypeSwapAbort:         "SwapAbort",
	TypeAcknowledgement:   "Acknowledgement",
}

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

func (t MessageType) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// IsSwapMessage tells whether messages of this type belong to a swap session
// and must carry a swap id.
func (t MessageType) IsSwapMessage() bool {
	switch t {
	case TypeSwapOffer, TypeLockConfirmation, TypeClaimNotification,
		TypeExecutionProof, TypeSwapAbort:
		return true
	}
	return false
}

// Asset identifies a token on a given chain. The chain selects the ledger
// gateway responsible for it.
type Asset struct {
	Chain  string
	Code   string
	Issuer string
}

func (a Asset) String() string {
	if a.Issuer == "" {
		return fmt.Sprintf("%s@%s", a.Code, a.Chain)
	}
	return fmt.Sprintf("%s:%s@%s", a.Code, a.Issuer, a.Chain)
}

func (a Asset) IsZero() bool {
	return a.Chain == "" && a.Code == "" && a.Issuer == ""
}

// ParseAsset parses the CODE[:ISSUER]@CHAIN notation produced by String.
func ParseAsset(s string) (Asset, error) {
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return Asset{}, fmt.Errorf("invalid asset %q, expected CODE[:ISSUER]@CHAIN", s)
	}
	asset := Asset{Chain: s[at+1:]}
	code := s[:at]
	if i := strings.Index(code, ":"); i >= 0 {
		asset.Code, asset.Issuer = code[:i], code[i+1:]
	} else {
		asset.Code = code
	}
	if asset.Code == "" {
		return Asset{}, fmt.Errorf("invalid asset %q, missing code", s)
	}
	return asset, nil
}

// NewIntentId returns a fresh random intent id.
func NewIntentId() string {
	return uuid.NewString()
}

// Message is the signed unit exchanged over the transport. Header fields are
// common to every type, Payload holds the type specific body.
type Message struct {
	Version   uint32
	Type      MessageType
	IntentId  string
	SwapId    string
	Sender    string
	Recipient string
	Expiry    int64
	Payload   Payload
	Signature []byte
}

// Payload is implemented by every message body.
type Payload interface {
	Type() MessageType
	validate() error
}

type PaymentRequest struct {
	Chain      string
	TxEnvelope []byte
	Metadata   map[string]string
}

func (PaymentRequest) Type() MessageType { return TypePaymentRequest }

func (p PaymentRequest) validate() error {
	if p.Chain == "" {
		return fmt.Errorf("missing chain")
	}
	if len(p.TxEnvelope) == 0 {
		return fmt.Errorf("missing transaction envelope")
	}
	return nil
}

type SwapOffer struct {
	From           Asset
	To             Asset
	Amount         uint64
	CounterAmount  uint64
	SlippageBps    uint32
	HashlockDigest []byte
	TimeoutAt      int64
	TimeoutHeight  uint32
	ReceiveAccount string
}

func (SwapOffer) Type() MessageType { return TypeSwapOffer }

func (p SwapOffer) validate() error {
	if p.From.Chain == "" || p.From.Code == "" {
		return fmt.Errorf("missing from asset")
	}
	if p.To.Chain == "" || p.To.Code == "" {
		return fmt.Errorf("missing to asset")
	}
	if p.Amount == 0 {
		return fmt.Errorf("missing amount")
	}
	if len(p.HashlockDigest) != DigestSize {
		return fmt.Errorf("invalid hashlock digest length %d", len(p.HashlockDigest))
	}
	if p.TimeoutAt <= 0 && p.TimeoutHeight == 0 {
		return fmt.Errorf("missing timeout")
	}
	return nil
}

type TrustlineUpdate struct {
	Asset      Asset
	Limit      uint64
	Authorized bool
	TxEnvelope []byte
}

func (TrustlineUpdate) Type() MessageType { return TypeTrustlineUpdate }

func (p TrustlineUpdate) validate() error {
	if p.Asset.Chain == "" || p.Asset.Code == "" {
		return fmt.Errorf("missing asset")
	}
	if len(p.TxEnvelope) == 0 {
		return fmt.Errorf("missing transaction envelope")
	}
	return nil
}

type LockConfirmation struct {
	LockRef        string
	TxHash         string
	Asset          Asset
	Amount         uint64
	HashlockDigest []byte
	TimeoutAt      int64
	TimeoutHeight  uint32
	ReceiveAccount string
}

func (LockConfirmation) Type() MessageType { return TypeLockConfirmation }

func (p LockConfirmation) validate() error {
	if p.LockRef == "" {
		return fmt.Errorf("missing lock reference")
	}
	if p.Asset.Chain == "" {
		return fmt.Errorf("missing asset")
	}
	if len(p.HashlockDigest) != DigestSize {
		return fmt.Errorf("invalid hashlock digest length %d", len(p.HashlockDigest))
	}
	return nil
}

type ClaimNotification struct {
	LockRef  string
	TxHash   string
	Preimage []byte
}

func (ClaimNotification) Type() MessageType { return TypeClaimNotification }

func (p ClaimNotification) validate() error {
	if p.LockRef == "" {
		return fmt.Errorf("missing lock reference")
	}
	return nil
}

type ExecutionProof struct {
	SourceChainTxHash string
	DestChainTxHash   string
	IssuedAt          int64
}

func (ExecutionProof) Type() MessageType { return TypeExecutionProof }

func (p ExecutionProof) validate() error {
	if p.SourceChainTxHash == "" || p.DestChainTxHash == "" {
		return fmt.Errorf("missing settlement tx hashes")
	}
	return nil
}

type SwapAbort struct {
	Code   uint32
	Reason string
}

func (SwapAbort) Type() MessageType { return TypeSwapAbort }

func (SwapAbort) validate() error { return nil }

// Acknowledgement answers a received intent, positively (with the resulting
// tx hash, if any) or negatively (with the error code and reason).
type Acknowledgement struct {
	RefIntentId string
	Accepted    bool
	Code        uint32
	Reason      string
	TxHash      string
}

func (Acknowledgement) Type() MessageType { return TypeAcknowledgement }

func (p Acknowledgement) validate() error {
	if p.RefIntentId == "" {
		return fmt.Errorf("missing referenced intent id")
	}
	return nil
}
