package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/application"
	"github.com/ArkLabsHQ/intentd/internal/core/coordinator"
	"github.com/ArkLabsHQ/intentd/internal/core/identity"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/db"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/gateway"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/gateway/remote"
	scheduler "github.com/ArkLabsHQ/intentd/internal/infrastructure/scheduler/gocron"
	wstransport "github.com/ArkLabsHQ/intentd/internal/infrastructure/transport/websocket"
	stellarvalidator "github.com/ArkLabsHQ/intentd/internal/infrastructure/validator/stellar"
	grpc_interface "github.com/ArkLabsHQ/intentd/internal/interface/grpc"
	"github.com/ArkLabsHQ/intentd/internal/interface/web"
	"github.com/ArkLabsHQ/intentd/internal/interface/web/types"
	"github.com/stretchr/testify/require"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

type node struct {
	id       string
	mnemonic string
	api      string
	p2p      string
}

type nodeConfig struct {
	dbType   string
	ledger   string
	p2pAddr  string
	peers    map[string]string
	accounts map[string]string
}

func newMnemonic(t *testing.T) (string, string) {
	mnemonic, err := application.NewMnemonic()
	require.NoError(t, err)
	signer, err := application.SignerFromMnemonic(mnemonic)
	require.NoError(t, err)
	return mnemonic, signer.NetworkId()
}

// startNode wires a node the way the daemon does, with its ledgers served
// by the remote gateway at cfg.ledger.
func startNode(t *testing.T, mnemonic string, cfg nodeConfig) *node {
	t.Helper()
	signer, err := application.SignerFromMnemonic(mnemonic)
	require.NoError(t, err)

	registry, err := gateway.NewRegistry()
	require.NoError(t, err)
	for _, chain := range []string{"stellar", "ethereum"} {
		gw, err := remote.NewGateway(chain, cfg.ledger, 5*time.Second)
		require.NoError(t, err)
		require.NoError(t, registry.AddGateway(gw))
	}
	registry.AddValidator(stellarvalidator.NewValidator(""))

	dbConfig := []any{t.TempDir()}
	if cfg.dbType == "badger" {
		dbConfig = append(dbConfig, nil)
	}
	repoManager, err := db.NewService(db.ServiceConfig{DbType: cfg.dbType, DbConfig: dbConfig})
	require.NoError(t, err)

	transport, err := wstransport.NewTransport(wstransport.Config{
		NetworkId:  signer.NetworkId(),
		ListenAddr: cfg.p2pAddr,
		Peers:      cfg.peers,
	})
	require.NoError(t, err)

	verifier, err := identity.NewVerifier(identity.SchemeStellar)
	require.NoError(t, err)
	linker := identity.NewLinker(
		repoManager.Identities(), map[string]identity.AccountVerifier{"stellar": verifier}, nil,
	)

	appSvc, err := application.NewService(
		application.BuildInfo{Version: "e2e"},
		application.Config{
			Coordinator: coordinator.Config{
				SafetyMargin:  10 * time.Minute,
				RetryInterval: 100 * time.Millisecond,
				Accounts:      cfg.accounts,
				Policy:        coordinator.Policy{MaxSlippageBps: 100},
			},
			AckTimeout: 10 * time.Second,
		},
		signer, registry, repoManager, scheduler.NewScheduler(registry.HeightReporter, time.Second),
		transport, linker,
	)
	require.NoError(t, err)
	require.NoError(t, appSvc.Start(context.Background()))

	server, err := grpc_interface.NewService(grpc_interface.Config{}, web.NewService(appSvc))
	require.NoError(t, err)
	require.NoError(t, server.Start())

	t.Cleanup(func() {
		server.Stop()
		appSvc.Stop()
	})

	return &node{
		id:       signer.NetworkId(),
		mnemonic: mnemonic,
		api:      "http://" + server.Address(),
		p2p:      cfg.p2pAddr,
	}
}

func freeAddress(t *testing.T) string {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	// nolint:all
	lis.Close()
	return addr
}

func post[T any](n *node, path string, body any) (*T, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Post(n.api+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	return decode[T](resp)
}

func get[T any](n *node, path string) (*T, error) {
	resp, err := httpClient.Get(n.api + path)
	if err != nil {
		return nil, err
	}
	return decode[T](resp)
}

func decode[T any](resp *http.Response) (*T, error) {
	// nolint:all
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr types.Error
		// nolint:all
		json.Unmarshal(buf, &apiErr)
		return nil, fmt.Errorf("%s: %s (code %d)", resp.Status, apiErr.Error, apiErr.Code)
	}
	v := new(T)
	if err := json.Unmarshal(buf, v); err != nil {
		return nil, err
	}
	return v, nil
}
