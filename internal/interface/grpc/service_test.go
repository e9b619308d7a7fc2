package grpc_interface

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

func TestService(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// nolint:all
		w.Write([]byte("api:" + r.URL.Path))
	})
	svc, err := NewService(Config{}, api)
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)

	conn, err := grpc.NewClient(svc.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		// nolint:all
		conn.Close()
	})

	client := grpchealth.NewHealthClient(conn)
	resp, err := client.Check(context.Background(), &grpchealth.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, grpchealth.HealthCheckResponse_SERVING, resp.Status)

	httpResp, err := http.Get("http://" + svc.Address() + "/v1/info")
	require.NoError(t, err)
	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	require.NoError(t, err)
	require.Equal(t, "api:/v1/info", string(body))
	require.Equal(t, "*", httpResp.Header.Get("Access-Control-Allow-Origin"))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		err  string
	}{
		{"clear", Config{Port: 7000}, ""},
		{"cert without key", Config{TLSCert: "cert.pem"}, "tls cert and key must be set together"},
		{"port out of range", Config{Port: 70000}, "invalid port 70000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.err == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tt.err)
		})
	}
}
