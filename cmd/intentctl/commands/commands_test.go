package commands

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/core/identity"
	"github.com/ArkLabsHQ/intentd/internal/interface/web/types"
	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/require"
)

type request struct {
	method string
	path   string
	body   []byte
}

func newNode(t *testing.T, status int, reply any) (*httptest.Server, *[]request) {
	var requests []request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, request{r.Method, r.URL.RequestURI(), body})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		// nolint:all
		json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	nodeURL = ""
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInfo(t *testing.T) {
	srv, requests := newNode(t, http.StatusOK, types.Info{NetworkId: "node", Version: "dev"})

	out, err := run(t, "--url", srv.URL, "info")
	require.NoError(t, err)
	require.Contains(t, out, `"networkId": "node"`)
	require.Equal(t, "/v1/info", (*requests)[0].path)
}

func TestSwapCommands(t *testing.T) {
	srv, requests := newNode(t, http.StatusCreated, types.Swap{Id: "swap-1", State: "proposed"})

	_, err := run(t, "--url", srv.URL, "swap", "initiate",
		"--peer", "bob", "--from", "XLM@stellar", "--to", "ETH@ethereum",
		"--amount", "100", "--counter-amount", "7", "--slippage-bps", "50",
	)
	require.NoError(t, err)
	req := (*requests)[0]
	require.Equal(t, http.MethodPost, req.method)
	require.Equal(t, "/v1/swaps", req.path)

	var body types.InitiateSwapRequest
	require.NoError(t, json.Unmarshal(req.body, &body))
	require.Equal(t, "bob", body.Responder)
	require.Equal(t, uint64(100), body.Amount)
	require.Equal(t, uint32(50), body.SlippageBps)
	require.NotZero(t, body.TimeoutAt)

	_, err = run(t, "--url", srv.URL, "swap", "list", "--pending")
	require.NoError(t, err)
	require.Equal(t, "/v1/swaps?pending=true", (*requests)[1].path)

	_, err = run(t, "--url", srv.URL, "swap", "abort", "swap-1", "--reason", "stop")
	require.NoError(t, err)
	require.Equal(t, "/v1/swaps/swap-1/abort", (*requests)[2].path)

	_, err = run(t, "--url", srv.URL, "swap", "initiate", "--peer", "bob")
	require.Error(t, err)
	require.Len(t, *requests, 3)
}

func TestApiError(t *testing.T) {
	srv, _ := newNode(t, http.StatusNotFound, types.Error{Code: 31, Error: "session not found"})

	_, err := run(t, "--url", srv.URL, "swap", "get", "missing")
	require.EqualError(t, err, "session not found (code 31)")
}

func TestPay(t *testing.T) {
	srv, requests := newNode(t, http.StatusOK, types.Acknowledgement{Accepted: true, TxHash: "hash"})

	txFile := filepath.Join(t.TempDir(), "tx")
	require.NoError(t, os.WriteFile(txFile, []byte{0x00, 0xff, 0x10}, 0600))

	out, err := run(t, "--url", srv.URL, "pay", "bob", "stellar", "--tx", txFile, "--meta", "memo=rent")
	require.NoError(t, err)
	require.Contains(t, out, `"txHash": "hash"`)

	var body types.PaymentRequest
	require.NoError(t, json.Unmarshal((*requests)[0].body, &body))
	require.Equal(t, "AP8Q", body.TxEnvelope)
	require.Equal(t, map[string]string{"memo": "rent"}, body.Metadata)

	_, err = run(t, "--url", srv.URL, "pay", "bob", "stellar", "--tx", txFile, "--meta", "memo")
	require.ErrorContains(t, err, "expected key=value")
}

func TestIdentitySign(t *testing.T) {
	kp, err := keypair.Random()
	require.NoError(t, err)

	out, err := run(t, "identity", "sign",
		"--peer", "node", "--chain", "stellar", "--account", kp.Address(), "--key", kp.Seed(),
	)
	require.NoError(t, err)

	var req types.LinkIdentityRequest
	require.NoError(t, json.Unmarshal([]byte(out), &req))
	sig, err := hex.DecodeString(req.Signature)
	require.NoError(t, err)

	verifier, err := identity.NewVerifier(identity.SchemeStellar)
	require.NoError(t, err)
	statement := domain.LinkStatement("node", "stellar", kp.Address(), req.IssuedAt)
	require.NoError(t, verifier.Verify(kp.Address(), statement, sig))
}

func TestKeys(t *testing.T) {
	mnemonic := "illness spike retreat truth genius clock brain pass fit cave bargain toe"
	out, err := run(t, "keys", "--mnemonic", mnemonic)
	require.NoError(t, err)

	var info keysInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Empty(t, info.Mnemonic)
	require.Equal(t, "GDRXE2BQUC3AZNPVFSCEZ76NJ3WWL25FYFK6RGZGIEKWE4SOOHSUJUJ6", info.StellarAccount)
	require.Len(t, info.NetworkId, 64)

	out, err = run(t, "keys")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.NotEmpty(t, info.Mnemonic)
}
