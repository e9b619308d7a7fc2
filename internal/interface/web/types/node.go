package types

type LinkIdentityRequest struct {
	NetworkId string `json:"networkId"`
	Chain     string `json:"chain"`
	Account   string `json:"account"`
	IssuedAt  int64  `json:"issuedAt"`
	// Signature is the hex encoded signature of the link statement.
	Signature string `json:"signature"`
}

type Identity struct {
	NetworkId string `json:"networkId"`
	Chain     string `json:"chain"`
	Account   string `json:"account"`
	IssuedAt  int64  `json:"issuedAt"`
}

type Identities struct {
	Identities []Identity `json:"identities"`
}

type Info struct {
	NetworkId string            `json:"networkId"`
	Version   string            `json:"version"`
	Commit    string            `json:"commit,omitempty"`
	Date      string            `json:"date,omitempty"`
	Chains    []string          `json:"chains"`
	Accounts  map[string]string `json:"accounts"`
	Stats     Stats             `json:"stats"`
}

type Stats struct {
	Received       uint64            `json:"received"`
	Accepted       uint64            `json:"accepted"`
	Rejected       uint64            `json:"rejected"`
	ByType         map[string]uint64 `json:"byType"`
	RejectedBy     map[uint32]uint64 `json:"rejectedByCode"`
	DistinctPeers  uint64            `json:"distinctPeers"`
	LiveSessions   int               `json:"liveSessions"`
	ReplayEntries  int               `json:"replayEntries"`
	InboundPending int               `json:"inboundPending"`
}

type Error struct {
	Code  uint32 `json:"code,omitempty"`
	Error string `json:"error"`
}
