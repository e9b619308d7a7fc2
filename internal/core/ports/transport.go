package ports

import "context"

// MessageHandler receives raw envelopes. from is the transport level origin of
// the bytes and is only used as a rate limiting key, the authenticated sender
// is the one of the decoded envelope. Handlers return without waiting for the
// envelope to be processed, transports call them from their read loop.
type MessageHandler func(ctx context.Context, from string, raw []byte)

type Transport interface {
	Start(ctx context.Context) error
	// SendTo fails with ErrPeerUnreachable when the message could not be
	// handed to the peer.
	SendTo(ctx context.Context, peer string, raw []byte) error
	OnReceive(handler MessageHandler)
	Close()
}
