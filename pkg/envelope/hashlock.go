package envelope

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const (
	DigestSize   = sha256.Size
	PreimageSize = 32
)

func NewPreimage() ([]byte, error) {
	preimage := make([]byte, PreimageSize)
	if _, err := rand.Read(preimage); err != nil {
		return nil, err
	}
	return preimage, nil
}

func HashPreimage(preimage []byte) []byte {
	sum := sha256.Sum256(preimage)
	return sum[:]
}

// MatchesDigest tells whether preimage opens the hashlock digest.
func MatchesDigest(preimage, digest []byte) bool {
	return len(digest) == DigestSize && bytes.Equal(HashPreimage(preimage), digest)
}

// DeriveSwapId returns the swap id of the session opened by an offer. The
// offer intent id is already unique per sender, the sender is mixed in so that
// two peers reusing the same intent id never collide.
func DeriveSwapId(sender, offerIntentId string) string {
	sum := sha256.Sum256([]byte(sender + "/" + offerIntentId))
	return hex.EncodeToString(sum[:16])
}
