package esplora

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ccoveille/go-safecast"
)

type service struct {
	baseUrl string
	client  *http.Client
}

// NewService returns a height reporter reading the chain tip of an
// esplora-like explorer.
func NewService(url string) ports.HeightReporter {
	return &service{
		baseUrl: url,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *service) GetBlockHeight(ctx context.Context) (uint32, error) {
	url := strings.TrimRight(s.baseUrl, "/") + "/blocks/tip/height"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get height: %w", err)
	}
	// nolint:all
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	n, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse height: %w", err)
	}
	height, err := safecast.ToUint32(n)
	if err != nil {
		return 0, fmt.Errorf("invalid height %d: %w", n, err)
	}
	return height, nil
}
