package errcode

var (
	// Envelope level failures, rejected at the router boundary.
	ErrMalformedEnvelope = Register(1, "malformed envelope")
	ErrInvalidSignature  = Register(2, "invalid signature")
	ErrExpiredIntent     = Register(3, "expired intent")
	ErrDuplicateIntent   = Register(4, "duplicate intent")
	ErrUntrustedIdentity = Register(5, "untrusted identity")
	ErrRateLimited       = Register(6, "rate limited")
	ErrPolicyViolation   = Register(7, "policy violation")

	// Ledger gateway failures.
	ErrLockFailed       = Register(20, "lock failed")
	ErrSubmissionFailed = Register(21, "submission failed")
	ErrClaimFailed      = Register(22, "claim failed")
	ErrReclaimFailed    = Register(23, "reclaim failed")

	ErrPeerUnreachable  = Register(30, "peer unreachable")
	ErrSessionNotFound  = Register(31, "session not found")
	ErrInvalidLinkProof = Register(32, "invalid link proof")
)
