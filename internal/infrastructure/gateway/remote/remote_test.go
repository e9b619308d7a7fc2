package remote_test

import (
	"context"
	"crypto/sha256"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/gateway/memory"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/gateway/remote"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRemoteGateway(t *testing.T) {
	ledger := memory.New("stellar", memory.WithHeight(42))
	srv := httptest.NewServer(remote.NewServer(ledger))
	defer srv.Close()

	gw, err := remote.NewGateway("stellar", srv.URL, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, "stellar", gw.Chain())

	ctx := context.Background()
	preimage := []byte("0123456789abcdef0123456789abcdef")
	digest := sha256.Sum256(preimage)
	xlm := envelope.Asset{Chain: "stellar", Code: "XLM"}

	t.Run("lock and claim", func(t *testing.T) {
		receipt, err := gw.LockFunds(ctx, ports.LockRequest{
			SwapId:         "swap",
			Asset:          xlm,
			Amount:         100,
			HashlockDigest: digest[:],
			TimeoutAt:      time.Now().Add(time.Hour).Unix(),
			Recipient:      "GBOB",
		})
		require.NoError(t, err)
		require.NotEmpty(t, receipt.LockRef)

		status, err := gw.QueryReceipt(ctx, receipt.LockRef)
		require.NoError(t, err)
		require.Equal(t, ports.LockActive, status.State)
		require.Equal(t, xlm, status.Asset)
		require.Equal(t, digest[:], status.HashlockDigest)

		_, err = gw.ClaimWithPreimage(ctx, receipt.LockRef, []byte("wrong"))
		require.ErrorIs(t, err, errcode.ErrClaimFailed)

		claim, err := gw.ClaimWithPreimage(ctx, receipt.LockRef, preimage)
		require.NoError(t, err)

		status, err = gw.QueryReceipt(ctx, receipt.LockRef)
		require.NoError(t, err)
		require.Equal(t, ports.LockClaimed, status.State)
		require.Equal(t, claim.TxHash, status.ClaimTxHash)
		require.Equal(t, preimage, status.Preimage)

		_, err = gw.ReclaimExpired(ctx, receipt.LockRef)
		require.ErrorIs(t, err, errcode.ErrReclaimFailed)
	})

	t.Run("lock failure", func(t *testing.T) {
		_, err := gw.LockFunds(ctx, ports.LockRequest{
			Asset:          xlm,
			HashlockDigest: digest[:],
			TimeoutAt:      time.Now().Add(time.Hour).Unix(),
			Recipient:      "GBOB",
		})
		require.ErrorIs(t, err, errcode.ErrLockFailed)
	})

	t.Run("submit", func(t *testing.T) {
		receipt, err := gw.SubmitTransaction(ctx, []byte("tx"))
		require.NoError(t, err)
		require.NotEmpty(t, receipt.TxHash)

		_, err = gw.SubmitTransaction(ctx, []byte("tx"))
		require.ErrorIs(t, err, errcode.ErrSubmissionFailed)
	})

	t.Run("height", func(t *testing.T) {
		reporter, ok := gw.(ports.HeightReporter)
		require.True(t, ok)
		height, err := reporter.GetBlockHeight(ctx)
		require.NoError(t, err)
		require.Equal(t, uint32(42), height)
	})

	t.Run("unknown lock", func(t *testing.T) {
		_, err := gw.QueryReceipt(ctx, "missing")
		require.Error(t, err)
	})
}

func TestRemoteGatewayUnreachable(t *testing.T) {
	gw, err := remote.NewGateway("stellar", "http://127.0.0.1:1", time.Second)
	require.NoError(t, err)

	_, err = gw.SubmitTransaction(context.Background(), []byte("tx"))
	require.ErrorIs(t, err, errcode.ErrSubmissionFailed)

	_, err = remote.NewGateway("stellar", "not a url", time.Second)
	require.Error(t, err)
	_, err = remote.NewGateway("", "http://localhost", time.Second)
	require.Error(t, err)
}
