// Package identity links network ids to ledger accounts and holds the peer
// whitelist.
package identity

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	log "github.com/sirupsen/logrus"
)

type Linker struct {
	repo      domain.IdentityRepository
	verifiers map[string]AccountVerifier
	whitelist map[string]domain.WhitelistPolicy

	lock       sync.RWMutex
	identities map[string]map[string]domain.PeerIdentity
}

// NewLinker returns a linker verifying link proofs with the verifier
// registered for the proof chain.
func NewLinker(
	repo domain.IdentityRepository, verifiers map[string]AccountVerifier,
	whitelist []domain.WhitelistPolicy,
) *Linker {
	policies := make(map[string]domain.WhitelistPolicy, len(whitelist))
	for _, p := range whitelist {
		policies[p.NetworkId] = p
	}
	return &Linker{
		repo:       repo,
		verifiers:  verifiers,
		whitelist:  policies,
		identities: make(map[string]map[string]domain.PeerIdentity),
	}
}

// Load populates the in-memory map from the repository.
func (l *Linker) Load(ctx context.Context) error {
	identities, err := l.repo.GetAll(ctx)
	if err != nil {
		return err
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	for _, id := range identities {
		l.set(id)
	}
	log.Debugf("loaded %d linked identities", len(identities))
	return nil
}

// Link binds networkId to account on chain. The proof must be signed by the
// account key and must be strictly newer than the current link, if any.
func (l *Linker) Link(
	ctx context.Context, networkId, chain, account string, proof domain.LinkProof,
) (*domain.PeerIdentity, error) {
	if _, err := envelope.ParseNetworkId(networkId); err != nil {
		return nil, errcode.ErrInvalidLinkProof.Wrap(err, "network id")
	}
	verifier, ok := l.verifiers[chain]
	if !ok {
		return nil, errcode.ErrInvalidLinkProof.Newf("unsupported chain %s", chain)
	}
	if proof.IssuedAt <= 0 {
		return nil, errcode.ErrInvalidLinkProof.New("missing issue time")
	}

	statement := domain.LinkStatement(networkId, chain, account, proof.IssuedAt)
	if err := verifier.Verify(account, statement, proof.Signature); err != nil {
		return nil, errcode.ErrInvalidLinkProof.Wrap(err, "proof does not verify")
	}

	identity := domain.PeerIdentity{
		NetworkId:     networkId,
		LedgerChain:   chain,
		LedgerAccount: account,
		LinkProof:     proof,
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	if current, ok := l.get(networkId, chain); ok {
		if current.LinkProof.IssuedAt == proof.IssuedAt &&
			current.LedgerAccount == account &&
			bytes.Equal(current.LinkProof.Signature, proof.Signature) {
			return &current, nil
		}
		if current.LinkProof.IssuedAt >= proof.IssuedAt {
			return nil, errcode.ErrInvalidLinkProof.Newf(
				"proof issued at %d is superseded by the current one issued at %d",
				proof.IssuedAt, current.LinkProof.IssuedAt,
			)
		}
	}

	if err := l.repo.Upsert(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to persist identity: %w", err)
	}
	l.set(identity)

	log.WithFields(log.Fields{
		"peer":    networkId,
		"chain":   chain,
		"account": account,
	}).Info("linked identity")
	return &identity, nil
}

// Resolve returns the most recently linked identity of networkId.
func (l *Linker) Resolve(networkId string) (*domain.PeerIdentity, bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	var latest *domain.PeerIdentity
	for _, id := range l.identities[networkId] {
		if latest == nil || id.LinkProof.IssuedAt > latest.LinkProof.IssuedAt {
			id := id
			latest = &id
		}
	}
	return latest, latest != nil
}

// ResolveAccount returns the account linked by networkId on chain.
func (l *Linker) ResolveAccount(networkId, chain string) (string, bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	id, ok := l.get(networkId, chain)
	return id.LedgerAccount, ok
}

// List returns every identity linked by networkId.
func (l *Linker) List(networkId string) []domain.PeerIdentity {
	l.lock.RLock()
	defer l.lock.RUnlock()

	list := make([]domain.PeerIdentity, 0, len(l.identities[networkId]))
	for _, id := range l.identities[networkId] {
		list = append(list, id)
	}
	return list
}

func (l *Linker) IsWhitelisted(networkId string) bool {
	_, ok := l.whitelist[networkId]
	return ok
}

func (l *Linker) Policy(networkId string) (domain.WhitelistPolicy, bool) {
	p, ok := l.whitelist[networkId]
	return p, ok
}

func (l *Linker) get(networkId, chain string) (domain.PeerIdentity, bool) {
	byChain, ok := l.identities[networkId]
	if !ok {
		return domain.PeerIdentity{}, false
	}
	id, ok := byChain[chain]
	return id, ok
}

func (l *Linker) set(id domain.PeerIdentity) {
	byChain, ok := l.identities[id.NetworkId]
	if !ok {
		byChain = make(map[string]domain.PeerIdentity)
		l.identities[id.NetworkId] = byChain
	}
	byChain[id.LedgerChain] = id
}
