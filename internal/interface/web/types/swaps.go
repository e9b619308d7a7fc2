package types

type InitiateSwapRequest struct {
	Responder string `json:"responder"`
	// From and To use the CODE[:ISSUER]@CHAIN notation.
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        uint64 `json:"amount"`
	CounterAmount uint64 `json:"counterAmount"`
	SlippageBps   uint32 `json:"slippageBps"`
	TimeoutAt     int64  `json:"timeoutAt"`
	TimeoutHeight uint32 `json:"timeoutHeight,omitempty"`
}

type AbortSwapRequest struct {
	Reason string `json:"reason"`
}

type Swap struct {
	Id            string `json:"id"`
	Role          string `json:"role"`
	State         string `json:"state"`
	Initiator     string `json:"initiator"`
	Responder     string `json:"responder"`
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        uint64 `json:"amount"`
	CounterAmount uint64 `json:"counterAmount"`
	SlippageBps   uint32 `json:"slippageBps"`
	Hashlock      string `json:"hashlock"`
	TimeoutAt     int64  `json:"timeoutAt"`
	TimeoutHeight uint32 `json:"timeoutHeight,omitempty"`

	OwnLock      *Lock  `json:"ownLock,omitempty"`
	CounterLock  *Lock  `json:"counterLock,omitempty"`
	OwnClaim     *Claim `json:"ownClaim,omitempty"`
	CounterClaim *Claim `json:"counterClaim,omitempty"`
	ReclaimTxId  string `json:"reclaimTxid,omitempty"`

	Settled           bool   `json:"settled"`
	NeedsIntervention bool   `json:"needsIntervention,omitempty"`
	FailureCode       uint32 `json:"failureCode,omitempty"`
	FailureReason     string `json:"failureReason,omitempty"`
	CreatedAt         int64  `json:"createdAt"`
	UpdatedAt         int64  `json:"updatedAt"`
}

type Lock struct {
	LockRef       string `json:"lockRef"`
	TxHash        string `json:"txHash"`
	Asset         string `json:"asset"`
	Amount        uint64 `json:"amount"`
	TimeoutAt     int64  `json:"timeoutAt"`
	TimeoutHeight uint32 `json:"timeoutHeight,omitempty"`
	Recipient     string `json:"recipient"`
}

type Claim struct {
	LockRef string `json:"lockRef"`
	TxHash  string `json:"txHash"`
}

type Swaps struct {
	Swaps []Swap `json:"swaps"`
}

type Proof struct {
	SwapId            string `json:"swapId"`
	SourceChainTxHash string `json:"sourceChainTxHash"`
	DestChainTxHash   string `json:"destChainTxHash"`
	IssuedAt          int64  `json:"issuedAt"`
}
