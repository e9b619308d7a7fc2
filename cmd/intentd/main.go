package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ArkLabsHQ/intentd/internal/config"
	"github.com/ArkLabsHQ/intentd/internal/core/application"
	"github.com/ArkLabsHQ/intentd/internal/core/identity"
	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/db"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/esplora"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/gateway"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/gateway/memory"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/gateway/remote"
	scheduler "github.com/ArkLabsHQ/intentd/internal/infrastructure/scheduler/gocron"
	natstransport "github.com/ArkLabsHQ/intentd/internal/infrastructure/transport/nats"
	wstransport "github.com/ArkLabsHQ/intentd/internal/infrastructure/transport/websocket"
	stellarvalidator "github.com/ArkLabsHQ/intentd/internal/infrastructure/validator/stellar"
	service_interface "github.com/ArkLabsHQ/intentd/internal/interface"
	grpcservice "github.com/ArkLabsHQ/intentd/internal/interface/grpc"
	log "github.com/sirupsen/logrus"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	log.Info("starting intentd...")

	unlocker := cfg.UnlockerService()
	if unlocker == nil {
		log.Fatal("missing unlocker, set INTENTD_UNLOCKER_TYPE")
	}
	mnemonic, err := unlocker.GetSecret(context.Background())
	if err != nil {
		log.WithError(err).Fatal("failed to unlock node key")
	}
	signer, err := application.SignerFromMnemonic(mnemonic)
	if err != nil {
		log.WithError(err).Fatal("failed to derive node key")
	}
	log.Infof("network id %s", signer.NetworkId())

	registry, err := newRegistry(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to set up ledger gateways")
	}

	dbConfig := []any{cfg.Datadir}
	if cfg.DbType == "badger" {
		dbConfig = append(dbConfig, log.New())
	}
	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:   cfg.DbType,
		DbConfig: dbConfig,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}

	transport, err := newTransport(cfg, signer.NetworkId())
	if err != nil {
		log.WithError(err).Fatal("failed to set up transport")
	}

	verifiers := make(map[string]identity.AccountVerifier, len(cfg.Schemes))
	for chain, scheme := range cfg.Schemes {
		verifier, err := identity.NewVerifier(scheme)
		if err != nil {
			log.WithError(err).Fatal("invalid account scheme")
		}
		verifiers[chain] = verifier
	}
	linker := identity.NewLinker(dbSvc.Identities(), verifiers, cfg.Whitelist())

	schedulerSvc := scheduler.NewScheduler(registry.HeightReporter, cfg.HeightPollInterval)

	buildInfo := application.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	appSvc, err := application.NewService(
		buildInfo,
		application.Config{
			Coordinator:      cfg.CoordinatorConfig(),
			SweepInterval:    cfg.SweepInterval,
			PruneInterval:    cfg.PruneInterval,
			RateLimit:        cfg.RateLimit,
			RateBurst:        cfg.RateBurst,
			RequireWhitelist: cfg.RequireWhitelist,
			AckTimeout:       cfg.AckTimeout,
		},
		signer, registry, dbSvc, schedulerSvc, transport, linker,
	)
	if err != nil {
		log.WithError(err).Fatal(err)
	}

	svc, err := service_interface.NewService(grpcservice.Config{
		Port:    cfg.Port,
		TLSCert: cfg.TLSCert,
		TLSKey:  cfg.TLSKey,
	}, appSvc)
	if err != nil {
		log.Fatal(err)
	}

	log.RegisterExitHandler(svc.Stop)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		log.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
}

func newRegistry(cfg *config.Config) (*gateway.Registry, error) {
	registry, err := gateway.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, gw := range cfg.Gateways {
		var ledger ports.LedgerGateway
		switch gw.Type {
		case "remote":
			if ledger, err = remote.NewGateway(gw.Chain, gw.URL, gw.Timeout); err != nil {
				return nil, err
			}
		case "memory":
			log.Warnf("using in-memory ledger for %s, funds are not real", gw.Chain)
			ledger = memory.New(gw.Chain)
		default:
			return nil, fmt.Errorf("unknown gateway type %s", gw.Type)
		}
		if err := registry.AddGateway(ledger); err != nil {
			return nil, err
		}
	}
	if cfg.EsploraURL != "" {
		registry.SetHeightReporter(cfg.EsploraChain, esplora.NewService(cfg.EsploraURL))
	}
	registry.AddValidator(stellarvalidator.NewValidator(cfg.StellarPassphrase))
	return registry, nil
}

func newTransport(cfg *config.Config, networkId string) (ports.Transport, error) {
	if cfg.Transport == "nats" {
		return natstransport.NewTransport(natstransport.Config{
			Url:       cfg.NatsURL,
			NetworkId: networkId,
		})
	}
	return wstransport.NewTransport(wstransport.Config{
		NetworkId:  networkId,
		ListenAddr: cfg.P2PAddr,
		Peers:      cfg.PeerBook(),
	})
}
