// Package remote talks to chain adapters over HTTP. The client implements
// the ledger gateway port, the server exposes any gateway with the same API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
)

type gateway struct {
	chain   string
	baseUrl string
	client  *http.Client
}

// NewGateway returns the gateway of chain served by the adapter at url.
func NewGateway(chain, baseUrl string, timeout time.Duration) (ports.LedgerGateway, error) {
	if chain == "" {
		return nil, fmt.Errorf("missing chain")
	}
	u, err := url.Parse(baseUrl)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q", baseUrl)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &gateway{
		chain:   chain,
		baseUrl: strings.TrimRight(baseUrl, "/") + "/v1/" + url.PathEscape(chain),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (g *gateway) Chain() string {
	return g.chain
}

func (g *gateway) LockFunds(ctx context.Context, req ports.LockRequest) (*ports.LockReceipt, error) {
	resp, err := send[lockResponse](ctx, g, http.MethodPost, "/locks", toLockRequest(req))
	if err != nil {
		return nil, g.fail(errcode.ErrLockFailed, err)
	}
	return &ports.LockReceipt{
		LockRef:       resp.LockRef,
		TxHash:        resp.TxHash,
		TimeoutAt:     resp.TimeoutAt,
		TimeoutHeight: resp.TimeoutHeight,
	}, nil
}

func (g *gateway) SubmitTransaction(ctx context.Context, txEnvelope []byte) (*ports.TxReceipt, error) {
	resp, err := send[txResponse](ctx, g, http.MethodPost, "/transactions", submitRequest{txEnvelope})
	if err != nil {
		return nil, g.fail(errcode.ErrSubmissionFailed, err)
	}
	return &ports.TxReceipt{TxHash: resp.TxHash}, nil
}

func (g *gateway) ClaimWithPreimage(ctx context.Context, lockRef string, preimage []byte) (*ports.ClaimReceipt, error) {
	resp, err := send[txResponse](ctx, g, http.MethodPost, lockPath(lockRef, "claim"), claimRequest{preimage})
	if err != nil {
		return nil, g.fail(errcode.ErrClaimFailed, err)
	}
	return &ports.ClaimReceipt{TxHash: resp.TxHash}, nil
}

func (g *gateway) ReclaimExpired(ctx context.Context, lockRef string) (*ports.ReclaimReceipt, error) {
	resp, err := send[txResponse](ctx, g, http.MethodPost, lockPath(lockRef, "reclaim"), nil)
	if err != nil {
		return nil, g.fail(errcode.ErrReclaimFailed, err)
	}
	return &ports.ReclaimReceipt{TxHash: resp.TxHash}, nil
}

func (g *gateway) QueryReceipt(ctx context.Context, lockRef string) (*ports.ReceiptStatus, error) {
	resp, err := send[receiptResponse](ctx, g, http.MethodGet, lockPath(lockRef, ""), nil)
	if err != nil {
		return nil, err
	}
	return resp.parse()
}

func (g *gateway) GetBlockHeight(ctx context.Context) (uint32, error) {
	resp, err := send[heightResponse](ctx, g, http.MethodGet, "/height", nil)
	if err != nil {
		return 0, err
	}
	return resp.Height, nil
}

// fail wraps err with the given code unless the adapter already returned a
// coded error.
func (g *gateway) fail(code *errcode.Error, err error) error {
	if errcode.CodeOf(err) != 0 {
		return err
	}
	return code.Wrap(err, g.chain)
}

func lockPath(lockRef, action string) string {
	path := "/locks/" + url.PathEscape(lockRef)
	if action != "" {
		path += "/" + action
	}
	return path
}

func send[T any](ctx context.Context, g *gateway, method, endpoint string, body any) (*T, error) {
	var reader io.Reader
	if body != nil {
		rawBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(rawBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseUrl+endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	// nolint:all
	defer res.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(rawBody, &errResp); err != nil || errResp.Error == "" {
			return nil, fmt.Errorf("unexpected status %d: %s", res.StatusCode, strings.TrimSpace(string(rawBody)))
		}
		if code, ok := errcode.FromCode(errResp.Code); ok {
			return nil, code.New(errResp.Error)
		}
		return nil, fmt.Errorf("%s", errResp.Error)
	}

	var resp T
	if err := json.Unmarshal(rawBody, &resp); err != nil {
		return nil, fmt.Errorf("could not parse gateway response: %w", err)
	}
	return &resp, nil
}

type errUnknownState string

func (e errUnknownState) Error() string {
	return fmt.Sprintf("unknown lock state %q", string(e))
}
