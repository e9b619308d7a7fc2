package ports

import "github.com/ArkLabsHQ/intentd/internal/core/domain"

type RepoManager interface {
	Swaps() domain.SwapRepository
	Identities() domain.IdentityRepository
	Proofs() domain.ProofRepository
	Close()
}
