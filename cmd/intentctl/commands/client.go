package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/interface/web/types"
	"github.com/spf13/cobra"
)

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newApiClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// Payment intents wait for the peer acknowledgement.
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *apiClient) get(cmd *cobra.Command, path string) error {
	return c.do(cmd, http.MethodGet, path, nil)
}

func (c *apiClient) post(cmd *cobra.Command, path string, body any) error {
	return c.do(cmd, http.MethodPost, path, body)
}

// do sends the request and prints the JSON response.
func (c *apiClient) do(cmd *cobra.Command, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(cmd.Context(), method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach node: %w", err)
	}
	// nolint:all
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr types.Error
		if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("node replied %s", resp.Status)
		}
		if apiErr.Code != 0 {
			return fmt.Errorf("%s (code %d)", apiErr.Error, apiErr.Code)
		}
		return fmt.Errorf("%s", apiErr.Error)
	}
	if len(raw) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), resp.Status)
		return nil
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return printJSON(cmd, out)
}
