package stellarvalidator

import (
	"bytes"
	"fmt"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/xdr"
)

const chain = "stellar"

type validator struct {
	passphrase string
}

// NewValidator returns the validator of stellar transaction envelopes.
// Envelopes must be signed by their source account on the network with the
// given passphrase; an empty passphrase skips the signature check.
func NewValidator(passphrase string) ports.EnvelopeValidator {
	return &validator{passphrase}
}

func (v *validator) Chain() string {
	return chain
}

// Validate accepts the XDR of a TransactionEnvelope, raw or base64 encoded.
func (v *validator) Validate(txEnvelope []byte) error {
	env, err := decodeEnvelope(txEnvelope)
	if err != nil {
		return err
	}
	if len(env.Signatures) == 0 {
		return fmt.Errorf("transaction is not signed")
	}
	if env.Tx.SeqNum == 0 {
		return fmt.Errorf("invalid sequence number 0")
	}
	if v.passphrase == "" {
		return nil
	}
	return v.verifySource(env)
}

func (v *validator) verifySource(env *xdr.TransactionEnvelope) error {
	source, err := keypair.Parse(env.Tx.SourceAccount.Address())
	if err != nil {
		return fmt.Errorf("invalid source account: %s", err)
	}
	hash, err := network.HashTransaction(&env.Tx, v.passphrase)
	if err != nil {
		return fmt.Errorf("failed to hash transaction: %s", err)
	}
	hint := source.Hint()
	for _, sig := range env.Signatures {
		if !bytes.Equal(sig.Hint[:], hint[:]) {
			continue
		}
		if err := source.Verify(hash[:], sig.Signature); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no valid signature of source account %s", source.Address())
}

func decodeEnvelope(txEnvelope []byte) (*xdr.TransactionEnvelope, error) {
	if len(txEnvelope) == 0 {
		return nil, fmt.Errorf("empty transaction envelope")
	}
	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(string(txEnvelope), &env); err == nil {
		return &env, nil
	}
	env = xdr.TransactionEnvelope{}
	if err := xdr.SafeUnmarshal(txEnvelope, &env); err != nil {
		return nil, fmt.Errorf("invalid transaction envelope: %s", err)
	}
	return &env, nil
}
