package interceptors

import (
	"runtime/debug"

	middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	grpcPanicRecoveryHandler = func(p any) (err error) {
		log.Errorf("panic-recovery middleware recovered from panic: %v", p)
		log.Tracef("panic-recovery middleware recovered from panic: %v", string(debug.Stack()))
		return status.Errorf(codes.Internal, "%s", p)
	}
)

// UnaryInterceptor returns the unary interceptor chain
func UnaryInterceptor() grpc.ServerOption {
	return grpc.UnaryInterceptor(middleware.ChainUnaryServer(
		unaryLogger,
		recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(grpcPanicRecoveryHandler)),
	))
}

// StreamInterceptor returns the stream interceptor chain
func StreamInterceptor() grpc.ServerOption {
	return grpc.StreamInterceptor(middleware.ChainStreamServer(
		streamLogger,
		recovery.StreamServerInterceptor(recovery.WithRecoveryHandler(grpcPanicRecoveryHandler)),
	))
}
