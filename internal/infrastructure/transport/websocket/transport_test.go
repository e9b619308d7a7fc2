package wstransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/stretchr/testify/require"
)

type received struct {
	from string
	raw  []byte
}

func recorder() (ports.MessageHandler, chan received) {
	ch := make(chan received, 10)
	return func(_ context.Context, from string, raw []byte) {
		ch <- received{from, raw}
	}, ch
}

func TestTransport(t *testing.T) {
	bob, err := NewTransport(Config{NetworkId: "bob"})
	require.NoError(t, err)
	bobHandler, bobInbox := recorder()
	bob.OnReceive(bobHandler)
	require.NoError(t, bob.Start(context.Background()))
	defer bob.Close()

	srv := httptest.NewServer(bob.(http.Handler))
	defer srv.Close()

	alice, err := NewTransport(Config{
		NetworkId: "alice",
		Peers:     map[string]string{"bob": srv.URL},
	})
	require.NoError(t, err)
	aliceHandler, aliceInbox := recorder()
	alice.OnReceive(aliceHandler)
	require.NoError(t, alice.Start(context.Background()))
	defer alice.Close()

	ctx := context.Background()

	t.Run("dial peer book", func(t *testing.T) {
		require.NoError(t, alice.SendTo(ctx, "bob", []byte("offer")))
		select {
		case msg := <-bobInbox:
			require.Equal(t, "alice", msg.from)
			require.Equal(t, []byte("offer"), msg.raw)
		case <-time.After(5 * time.Second):
			require.Fail(t, "message not received")
		}
	})

	t.Run("answer over inbound connection", func(t *testing.T) {
		require.Eventually(t, func() bool {
			return bob.SendTo(ctx, "alice", []byte("lock")) == nil
		}, 5*time.Second, 50*time.Millisecond)
		select {
		case msg := <-aliceInbox:
			require.Equal(t, "bob", msg.from)
			require.Equal(t, []byte("lock"), msg.raw)
		case <-time.After(5 * time.Second):
			require.Fail(t, "message not received")
		}
	})

	t.Run("unknown peer", func(t *testing.T) {
		err := alice.SendTo(ctx, "carol", []byte("offer"))
		require.ErrorIs(t, err, errcode.ErrPeerUnreachable)
	})
}

func TestTransportUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	alice, err := NewTransport(Config{
		NetworkId:   "alice",
		Peers:       map[string]string{"bob": addr},
		DialTimeout: time.Second,
	})
	require.NoError(t, err)
	defer alice.Close()

	err = alice.SendTo(context.Background(), "bob", []byte("offer"))
	require.ErrorIs(t, err, errcode.ErrPeerUnreachable)
}

func TestPeerUrl(t *testing.T) {
	tests := []struct {
		addr     string
		expected string
		wantErr  bool
	}{
		{"127.0.0.1:7000", "ws://127.0.0.1:7000/v1/p2p", false},
		{"http://node.example:7000", "ws://node.example:7000/v1/p2p", false},
		{"https://node.example", "wss://node.example/v1/p2p", false},
		{"ws://node.example/custom", "ws://node.example/custom", false},
		{"ftp://node.example", "", true},
		{"http://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			u, err := peerUrl(tt.addr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, u)
		})
	}
}
