package natstransport_test

import (
	"context"
	"os"
	"testing"
	"time"

	natstransport "github.com/ArkLabsHQ/intentd/internal/infrastructure/transport/nats"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/stretchr/testify/require"
)

func TestNewTransport(t *testing.T) {
	_, err := natstransport.NewTransport(natstransport.Config{NetworkId: "alice"})
	require.Error(t, err)
	_, err = natstransport.NewTransport(natstransport.Config{Url: "nats://127.0.0.1:4222"})
	require.Error(t, err)

	require.Equal(t, "intentd.peer.alice", natstransport.Subject("alice"))

	tr, err := natstransport.NewTransport(natstransport.Config{Url: "nats://127.0.0.1:4222", NetworkId: "alice"})
	require.NoError(t, err)
	err = tr.SendTo(context.Background(), "bob", []byte("offer"))
	require.ErrorIs(t, err, errcode.ErrPeerUnreachable)
}

// TestTransport needs a nats server, its url is read from
// INTENTD_TEST_NATS_URL.
func TestTransport(t *testing.T) {
	url := os.Getenv("INTENTD_TEST_NATS_URL")
	if url == "" {
		t.Skip("INTENTD_TEST_NATS_URL not set")
	}
	ctx := context.Background()

	alice, err := natstransport.NewTransport(natstransport.Config{Url: url, NetworkId: "alice", RequestTimeout: time.Second})
	require.NoError(t, err)
	bob, err := natstransport.NewTransport(natstransport.Config{Url: url, NetworkId: "bob", RequestTimeout: time.Second})
	require.NoError(t, err)

	type received struct {
		from string
		raw  []byte
	}
	inbox := make(chan received, 1)
	bob.OnReceive(func(_ context.Context, from string, raw []byte) {
		inbox <- received{from, raw}
	})

	require.NoError(t, alice.Start(ctx))
	defer alice.Close()
	require.NoError(t, bob.Start(ctx))
	defer bob.Close()

	require.NoError(t, alice.SendTo(ctx, "bob", []byte("offer")))
	select {
	case msg := <-inbox:
		require.Equal(t, "alice", msg.from)
		require.Equal(t, []byte("offer"), msg.raw)
	case <-time.After(5 * time.Second):
		require.Fail(t, "message not received")
	}

	err = alice.SendTo(ctx, "carol", []byte("offer"))
	require.ErrorIs(t, err, errcode.ErrPeerUnreachable)
}
