package ports

import "context"

// Unlocker retrieves the secret that unlocks the node key, the mnemonic the
// network identity is derived from.
type Unlocker interface {
	GetSecret(ctx context.Context) (string, error)
}
