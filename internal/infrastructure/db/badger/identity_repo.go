package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const (
	identityDir = "identity"
)

type identityRepository struct {
	store *badgerhold.Store
}

func NewIdentityRepository(baseDir string, logger badger.Logger) (domain.IdentityRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, identityDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity store: %s", err)
	}
	return &identityRepository{store}, nil
}

func (r *identityRepository) GetAll(ctx context.Context) ([]domain.PeerIdentity, error) {
	var list []identityData
	if err := r.store.Find(&list, nil); err != nil {
		return nil, fmt.Errorf("failed to get identities: %w", err)
	}
	identities := make([]domain.PeerIdentity, 0, len(list))
	for _, d := range list {
		identities = append(identities, d.toIdentity())
	}
	return identities, nil
}

func (r *identityRepository) Get(ctx context.Context, networkId, chain string) (*domain.PeerIdentity, error) {
	var data identityData
	err := r.store.Get(identityKey(networkId, chain), &data)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("identity of %s on %s not found", networkId, chain)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	id := data.toIdentity()
	return &id, nil
}

func (r *identityRepository) Upsert(ctx context.Context, id domain.PeerIdentity) error {
	data := identityData{
		NetworkId:     id.NetworkId,
		LedgerChain:   id.LedgerChain,
		LedgerAccount: id.LedgerAccount,
		IssuedAt:      id.LinkProof.IssuedAt,
		Signature:     id.LinkProof.Signature,
	}
	return r.store.Upsert(identityKey(id.NetworkId, id.LedgerChain), data)
}

func (r *identityRepository) Close() {
	// nolint:all
	r.store.Close()
}

func identityKey(networkId, chain string) string {
	return networkId + "/" + chain
}

type identityData struct {
	NetworkId     string
	LedgerChain   string
	LedgerAccount string
	IssuedAt      int64
	Signature     []byte
}

func (d identityData) toIdentity() domain.PeerIdentity {
	return domain.PeerIdentity{
		NetworkId:     d.NetworkId,
		LedgerChain:   d.LedgerChain,
		LedgerAccount: d.LedgerAccount,
		LinkProof: domain.LinkProof{
			IssuedAt:  d.IssuedAt,
			Signature: d.Signature,
		},
	}
}
