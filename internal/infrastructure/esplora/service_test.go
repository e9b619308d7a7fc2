package esplora_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ArkLabsHQ/intentd/internal/infrastructure/esplora"
	"github.com/stretchr/testify/require"
)

func TestGetBlockHeight(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected uint32
		wantErr  bool
	}{
		{"ok", http.StatusOK, "840000\n", 840000, false},
		{"server error", http.StatusInternalServerError, "boom", 0, true},
		{"not a number", http.StatusOK, "tip", 0, true},
		{"negative", http.StatusOK, "-1", 0, true},
		{"overflow", http.StatusOK, "8589934592", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/blocks/tip/height", r.URL.Path)
				w.WriteHeader(tt.status)
				// nolint:all
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			height, err := esplora.NewService(srv.URL+"/").GetBlockHeight(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, height)
		})
	}
}
