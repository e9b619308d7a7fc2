package application

import (
	"fmt"

	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/utils"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stellar/go/exp/crypto/derivation"
	"github.com/stellar/go/keypair"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// networkKeyPath is m/44'/1237'/0'/0/0.
var networkKeyPath = []uint32{
	bip32.FirstHardenedChild + 44,
	bip32.FirstHardenedChild + 1237,
	bip32.FirstHardenedChild + 0,
	0,
	0,
}

// SignerFromMnemonic derives the network identity of the node.
func SignerFromMnemonic(mnemonic string) (envelope.Signer, error) {
	if err := utils.IsValidMnemonic(mnemonic); err != nil {
		return nil, err
	}
	seed := bip39.NewSeed(mnemonic, "")
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}

	next := key
	for _, idx := range networkKeyPath {
		if next, err = next.NewChildKey(idx); err != nil {
			return nil, err
		}
	}

	privkey, _ := btcec.PrivKeyFromBytes(next.Key)
	return envelope.NewKeySigner(privkey), nil
}

// StellarKeyFromMnemonic derives the stellar account of the given index
// (SEP-0005), used to link the node identity to its stellar account.
func StellarKeyFromMnemonic(mnemonic string, index uint32) (*keypair.Full, error) {
	if err := utils.IsValidMnemonic(mnemonic); err != nil {
		return nil, err
	}
	seed := bip39.NewSeed(mnemonic, "")
	key, err := derivation.DeriveForPath(fmt.Sprintf(derivation.StellarAccountPathFormat, index), seed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive stellar key: %w", err)
	}
	var raw [32]byte
	copy(raw[:], key.Key)
	return keypair.FromRawSeed(raw)
}

// NewMnemonic returns a fresh 24 words mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}
