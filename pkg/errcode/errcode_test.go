package errcode_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsRootError(t *testing.T) {
	err := errcode.ErrLockFailed.Newf("lock %s", "abc")
	require.ErrorIs(t, err, errcode.ErrLockFailed)
	require.NotErrorIs(t, err, errcode.ErrClaimFailed)
	require.Equal(t, uint32(20), errcode.CodeOf(err))

	wrapped := fmt.Errorf("session s1: %w", errcode.Wrap(err, "responder"))
	require.ErrorIs(t, wrapped, errcode.ErrLockFailed)
	require.Equal(t, errcode.ErrLockFailed.Code(), errcode.CodeOf(wrapped))
}

func TestCodeOfForeignError(t *testing.T) {
	require.Zero(t, errcode.CodeOf(errors.New("boom")))
	require.Zero(t, errcode.CodeOf(nil))
}

func TestFromCode(t *testing.T) {
	e, ok := errcode.FromCode(errcode.ErrDuplicateIntent.Code())
	require.True(t, ok)
	require.Equal(t, errcode.ErrDuplicateIntent, e)

	_, ok = errcode.FromCode(9999)
	require.False(t, ok)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	require.Panics(t, func() {
		errcode.Register(errcode.ErrMalformedEnvelope.Code(), "again")
	})
}

func TestWrapCause(t *testing.T) {
	err := errcode.ErrInvalidLinkProof.Wrap(errors.New("bad signature"), "proof")
	require.ErrorIs(t, err, errcode.ErrInvalidLinkProof)
	require.Contains(t, err.Error(), "bad signature")
	require.Equal(t, errcode.ErrInvalidLinkProof.Code(), errcode.CodeOf(err))
}
