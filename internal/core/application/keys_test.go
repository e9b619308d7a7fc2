package application

import (
	"testing"

	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/stretchr/testify/require"
)

// Test vector 1 of SEP-0005.
const sep5Mnemonic = "illness spike retreat truth genius clock brain pass fit cave bargain toe"

func TestSignerFromMnemonic(t *testing.T) {
	signer, err := SignerFromMnemonic(sep5Mnemonic)
	require.NoError(t, err)

	again, err := SignerFromMnemonic(sep5Mnemonic)
	require.NoError(t, err)
	require.Equal(t, signer.NetworkId(), again.NetworkId())

	_, err = envelope.ParseNetworkId(signer.NetworkId())
	require.NoError(t, err)

	mnemonic, err := NewMnemonic()
	require.NoError(t, err)
	other, err := SignerFromMnemonic(mnemonic)
	require.NoError(t, err)
	require.NotEqual(t, signer.NetworkId(), other.NetworkId())

	_, err = SignerFromMnemonic("not a mnemonic")
	require.Error(t, err)
}

func TestStellarKeyFromMnemonic(t *testing.T) {
	kp, err := StellarKeyFromMnemonic(sep5Mnemonic, 0)
	require.NoError(t, err)
	require.Equal(t, "GDRXE2BQUC3AZNPVFSCEZ76NJ3WWL25FYFK6RGZGIEKWE4SOOHSUJUJ6", kp.Address())

	next, err := StellarKeyFromMnemonic(sep5Mnemonic, 1)
	require.NoError(t, err)
	require.NotEqual(t, kp.Address(), next.Address())

	_, err = StellarKeyFromMnemonic("not a mnemonic", 0)
	require.Error(t, err)
}
