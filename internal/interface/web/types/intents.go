package types

type PaymentRequest struct {
	Peer  string `json:"peer"`
	Chain string `json:"chain"`
	// TxEnvelope is the base64 encoded signed transaction.
	TxEnvelope string            `json:"txEnvelope"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type TrustlineRequest struct {
	Peer       string `json:"peer"`
	Asset      string `json:"asset"`
	Limit      uint64 `json:"limit"`
	Authorized bool   `json:"authorized"`
	TxEnvelope string `json:"txEnvelope"`
}

type Acknowledgement struct {
	RefIntentId string `json:"refIntentId"`
	Accepted    bool   `json:"accepted"`
	TxHash      string `json:"txHash,omitempty"`
	Code        uint32 `json:"code,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
