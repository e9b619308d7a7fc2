package grpc_interface

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/interface/grpc/interceptors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name the node reports its health under.
const ServiceName = "intentd.v1.Node"

// Service serves the gRPC health service and the operator REST API on a
// single listener.
type Service struct {
	cfg    Config
	health *health.Server
	server *http.Server

	listener net.Listener
}

func NewService(cfg Config, api http.Handler) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	tlsConfig, err := cfg.tlsConfig()
	if err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer(
		interceptors.UnaryInterceptor(),
		interceptors.StreamInterceptor(),
	)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, grpchealth.HealthCheckResponse_NOT_SERVING)
	grpchealth.RegisterHealthServer(grpcServer, healthServer)

	handler := router(grpcServer, api)
	if cfg.insecure() {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              cfg.address(),
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Service{cfg: cfg, health: healthServer, server: server}, nil
}

func (s *Service) Start() error {
	listener, err := net.Listen("tcp", s.cfg.address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %s", s.cfg.address(), err)
	}
	if !s.cfg.insecure() {
		listener = tls.NewListener(listener, s.server.TLSConfig)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("grpc server stopped unexpectedly")
		}
	}()
	s.health.SetServingStatus(ServiceName, grpchealth.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", grpchealth.HealthCheckResponse_SERVING)
	log.Infof("started listening at %s", listener.Addr())

	return nil
}

// Address returns the local address to reach the service once started.
func (s *Service) Address() string {
	if s.listener == nil {
		return s.cfg.address()
	}
	addr := s.listener.Addr().(*net.TCPAddr)
	return fmt.Sprintf("127.0.0.1:%d", addr.Port)
}

func (s *Service) Stop() {
	s.health.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// nolint:all
	s.server.Shutdown(ctx)
	log.Info("stopped grpc server")
}

func router(grpcServer *grpc.Server, api http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isGrpcRequest(r) {
			grpcServer.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Add("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		if isOptionRequest(r) {
			return
		}
		api.ServeHTTP(w, r)
	})
}

func isOptionRequest(req *http.Request) bool {
	return req.Method == http.MethodOptions
}

func isGrpcRequest(req *http.Request) bool {
	return req.ProtoMajor == 2 &&
		strings.HasPrefix(req.Header.Get("Content-Type"), "application/grpc")
}
