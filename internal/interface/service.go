package service_interface

import (
	"context"

	"github.com/ArkLabsHQ/intentd/internal/core/application"
	grpc_interface "github.com/ArkLabsHQ/intentd/internal/interface/grpc"
	"github.com/ArkLabsHQ/intentd/internal/interface/web"
	log "github.com/sirupsen/logrus"
)

type Service interface {
	Start() error
	Stop()
}

type service struct {
	appSvc *application.Service
	server *grpc_interface.Service
}

// NewService returns the node service: the application service plus the
// operator API served in front of it.
func NewService(cfg grpc_interface.Config, appSvc *application.Service) (Service, error) {
	server, err := grpc_interface.NewService(cfg, web.NewService(appSvc))
	if err != nil {
		return nil, err
	}
	return &service{appSvc, server}, nil
}

func (s *service) Start() error {
	if err := s.appSvc.Start(context.Background()); err != nil {
		return err
	}
	log.Info("started application service")
	return s.server.Start()
}

func (s *service) Stop() {
	s.server.Stop()
	s.appSvc.Stop()
	log.Info("stopped application service")
}
