package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
)

type identityRepository struct {
	db *sql.DB
}

func NewIdentityRepository(db *sql.DB) (domain.IdentityRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot open identity repository: db is nil")
	}
	return &identityRepository{db}, nil
}

func (r *identityRepository) GetAll(ctx context.Context) ([]domain.PeerIdentity, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT network_id, ledger_chain, ledger_account, issued_at, signature FROM identity",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get identities: %w", err)
	}
	// nolint:all
	defer rows.Close()

	identities := make([]domain.PeerIdentity, 0)
	for rows.Next() {
		var id domain.PeerIdentity
		if err := rows.Scan(
			&id.NetworkId, &id.LedgerChain, &id.LedgerAccount,
			&id.LinkProof.IssuedAt, &id.LinkProof.Signature,
		); err != nil {
			return nil, fmt.Errorf("failed to get identities: %w", err)
		}
		identities = append(identities, id)
	}
	return identities, rows.Err()
}

func (r *identityRepository) Get(ctx context.Context, networkId, chain string) (*domain.PeerIdentity, error) {
	var id domain.PeerIdentity
	err := r.db.QueryRowContext(ctx,
		`SELECT network_id, ledger_chain, ledger_account, issued_at, signature
		FROM identity WHERE network_id = ? AND ledger_chain = ?`,
		networkId, chain,
	).Scan(&id.NetworkId, &id.LedgerChain, &id.LedgerAccount, &id.LinkProof.IssuedAt, &id.LinkProof.Signature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity of %s on %s not found", networkId, chain)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &id, nil
}

func (r *identityRepository) Upsert(ctx context.Context, id domain.PeerIdentity) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO identity (network_id, ledger_chain, ledger_account, issued_at, signature)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (network_id, ledger_chain) DO UPDATE SET
				ledger_account = excluded.ledger_account,
				issued_at = excluded.issued_at,
				signature = excluded.signature`,
			id.NetworkId, id.LedgerChain, id.LedgerAccount, id.LinkProof.IssuedAt, id.LinkProof.Signature,
		)
		return err
	})
}

func (r *identityRepository) Close() {
	// nolint:all
	r.db.Close()
}
