package remote

import (
	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
)

type lockRequest struct {
	SwapId         string `json:"swapId"`
	Asset          string `json:"asset"`
	Amount         uint64 `json:"amount"`
	HashlockDigest []byte `json:"hashlockDigest"`
	TimeoutAt      int64  `json:"timeoutAt"`
	TimeoutHeight  uint32 `json:"timeoutHeight,omitempty"`
	Recipient      string `json:"recipient"`
}

type lockResponse struct {
	LockRef       string `json:"lockRef"`
	TxHash        string `json:"txHash"`
	TimeoutAt     int64  `json:"timeoutAt"`
	TimeoutHeight uint32 `json:"timeoutHeight,omitempty"`
}

type submitRequest struct {
	TxEnvelope []byte `json:"txEnvelope"`
}

type claimRequest struct {
	Preimage []byte `json:"preimage"`
}

type txResponse struct {
	TxHash string `json:"txHash"`
}

type heightResponse struct {
	Height uint32 `json:"height"`
}

type receiptResponse struct {
	LockRef        string `json:"lockRef"`
	TxHash         string `json:"txHash"`
	Asset          string `json:"asset"`
	Amount         uint64 `json:"amount"`
	HashlockDigest []byte `json:"hashlockDigest"`
	TimeoutAt      int64  `json:"timeoutAt"`
	TimeoutHeight  uint32 `json:"timeoutHeight,omitempty"`
	Recipient      string `json:"recipient"`
	State          string `json:"state"`
	ClaimTxHash    string `json:"claimTxHash,omitempty"`
	ReclaimTxHash  string `json:"reclaimTxHash,omitempty"`
	Preimage       []byte `json:"preimage,omitempty"`
}

type errorResponse struct {
	Code  uint32 `json:"code"`
	Error string `json:"error"`
}

var lockStates = map[string]ports.LockState{
	ports.LockActive.String():    ports.LockActive,
	ports.LockClaimed.String():   ports.LockClaimed,
	ports.LockReclaimed.String(): ports.LockReclaimed,
}

func toLockRequest(req ports.LockRequest) lockRequest {
	return lockRequest{
		SwapId:         req.SwapId,
		Asset:          req.Asset.String(),
		Amount:         req.Amount,
		HashlockDigest: req.HashlockDigest,
		TimeoutAt:      req.TimeoutAt,
		TimeoutHeight:  req.TimeoutHeight,
		Recipient:      req.Recipient,
	}
}

func (r lockRequest) parse() (*ports.LockRequest, error) {
	asset, err := envelope.ParseAsset(r.Asset)
	if err != nil {
		return nil, err
	}
	return &ports.LockRequest{
		SwapId:         r.SwapId,
		Asset:          asset,
		Amount:         r.Amount,
		HashlockDigest: r.HashlockDigest,
		TimeoutAt:      r.TimeoutAt,
		TimeoutHeight:  r.TimeoutHeight,
		Recipient:      r.Recipient,
	}, nil
}

func toReceiptResponse(s ports.ReceiptStatus) receiptResponse {
	return receiptResponse{
		LockRef:        s.LockRef,
		TxHash:         s.TxHash,
		Asset:          s.Asset.String(),
		Amount:         s.Amount,
		HashlockDigest: s.HashlockDigest,
		TimeoutAt:      s.TimeoutAt,
		TimeoutHeight:  s.TimeoutHeight,
		Recipient:      s.Recipient,
		State:          s.State.String(),
		ClaimTxHash:    s.ClaimTxHash,
		ReclaimTxHash:  s.ReclaimTxHash,
		Preimage:       s.Preimage,
	}
}

func (r receiptResponse) parse() (*ports.ReceiptStatus, error) {
	asset, err := envelope.ParseAsset(r.Asset)
	if err != nil {
		return nil, err
	}
	state, ok := lockStates[r.State]
	if !ok {
		return nil, errUnknownState(r.State)
	}
	return &ports.ReceiptStatus{
		LockRef:        r.LockRef,
		TxHash:         r.TxHash,
		Asset:          asset,
		Amount:         r.Amount,
		HashlockDigest: r.HashlockDigest,
		TimeoutAt:      r.TimeoutAt,
		TimeoutHeight:  r.TimeoutHeight,
		Recipient:      r.Recipient,
		State:          state,
		ClaimTxHash:    r.ClaimTxHash,
		ReclaimTxHash:  r.ReclaimTxHash,
		Preimage:       r.Preimage,
	}, nil
}
