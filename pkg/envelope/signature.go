package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Signer signs message digests on behalf of a network identity.
type Signer interface {
	NetworkId() string
	SignDigest(digest []byte) ([]byte, error)
}

type keySigner struct {
	key *btcec.PrivateKey
	id  string
}

// NewKeySigner returns a BIP-340 signer whose network id is the hex encoded
// x-only public key of key.
func NewKeySigner(key *btcec.PrivateKey) Signer {
	return &keySigner{
		key: key,
		id:  NetworkIdFromPubKey(key.PubKey()),
	}
}

func (s *keySigner) NetworkId() string {
	return s.id
}

func (s *keySigner) SignDigest(digest []byte) ([]byte, error) {
	sig, err := schnorr.Sign(s.key, digest)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

func NetworkIdFromPubKey(pub *btcec.PublicKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(pub))
}

// ParseNetworkId returns the public key encoded in a network id.
func ParseNetworkId(networkId string) (*btcec.PublicKey, error) {
	buf, err := hex.DecodeString(networkId)
	if err != nil {
		return nil, fmt.Errorf("invalid network id encoding: %w", err)
	}
	return schnorr.ParsePubKey(buf)
}

// Digest is the sha256 of the signing bytes of msg.
func Digest(msg *Message) ([]byte, error) {
	buf, err := SigningBytes(msg)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(buf)
	return sum[:], nil
}

// Sign sets the sender of msg to the signer identity and fills in the
// signature.
func Sign(msg *Message, signer Signer) error {
	if msg.Version == 0 {
		msg.Version = Version
	}
	msg.Sender = signer.NetworkId()
	msg.Signature = nil

	digest, err := Digest(msg)
	if err != nil {
		return err
	}
	sig, err := signer.SignDigest(digest)
	if err != nil {
		return fmt.Errorf("failed to sign %s: %w", msg.Type, err)
	}
	msg.Signature = sig
	return nil
}

// Verify checks the signature of msg against its declared sender.
func Verify(msg *Message) error {
	return VerifyAs(msg, msg.Sender)
}

// VerifyAs checks the signature of msg against the given identity.
func VerifyAs(msg *Message, networkId string) error {
	if len(msg.Signature) == 0 {
		return errcode.ErrInvalidSignature.New("missing signature")
	}
	pub, err := ParseNetworkId(networkId)
	if err != nil {
		return errcode.ErrInvalidSignature.Newf("sender %s: %s", networkId, err)
	}
	sig, err := schnorr.ParseSignature(msg.Signature)
	if err != nil {
		return errcode.ErrInvalidSignature.New(err.Error())
	}
	digest, err := Digest(msg)
	if err != nil {
		return err
	}
	if !sig.Verify(digest, pub) {
		return errcode.ErrInvalidSignature.Newf("signature does not match sender %s", networkId)
	}
	return nil
}

// VerifySignature is the boolean form of VerifyAs.
func VerifySignature(msg *Message, networkId string) bool {
	return VerifyAs(msg, networkId) == nil
}
