package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stellar/go/keypair"
)

const (
	SchemeStellar = "stellar"
	SchemeSchnorr = "schnorr"
)

// AccountVerifier checks that statement was signed by the key controlling a
// ledger account.
type AccountVerifier interface {
	Verify(account string, statement, signature []byte) error
}

// NewVerifier returns the verifier of the given scheme.
func NewVerifier(scheme string) (AccountVerifier, error) {
	switch scheme {
	case SchemeStellar:
		return stellarVerifier{}, nil
	case SchemeSchnorr:
		return schnorrVerifier{}, nil
	}
	return nil, fmt.Errorf("unknown account scheme %s", scheme)
}

// stellarVerifier handles G... strkey addresses, ed25519 signatures.
type stellarVerifier struct{}

func (stellarVerifier) Verify(account string, statement, signature []byte) error {
	kp, err := keypair.Parse(account)
	if err != nil {
		return fmt.Errorf("invalid stellar account: %w", err)
	}
	return kp.Verify(statement, signature)
}

// schnorrVerifier handles hex encoded x-only secp256k1 keys, BIP-340
// signatures over sha256(statement).
type schnorrVerifier struct{}

func (schnorrVerifier) Verify(account string, statement, signature []byte) error {
	buf, err := hex.DecodeString(account)
	if err != nil {
		return fmt.Errorf("invalid account encoding: %w", err)
	}
	pub, err := schnorr.ParsePubKey(buf)
	if err != nil {
		return fmt.Errorf("invalid account key: %w", err)
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(statement)
	if !sig.Verify(digest[:], pub) {
		return fmt.Errorf("signature does not match account")
	}
	return nil
}

// SignStellar signs a link statement with a stellar secret seed.
func SignStellar(seed string, statement []byte) ([]byte, error) {
	kp, err := keypair.Parse(seed)
	if err != nil {
		return nil, err
	}
	return kp.Sign(statement)
}

// SignSchnorr signs a link statement with a secp256k1 key.
func SignSchnorr(key *btcec.PrivateKey, statement []byte) ([]byte, error) {
	digest := sha256.Sum256(statement)
	sig, err := schnorr.Sign(key, digest[:])
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}
