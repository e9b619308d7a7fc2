package db

import (
	"fmt"
	"strings"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	badgerdb "github.com/ArkLabsHQ/intentd/internal/infrastructure/db/badger"
	sqlitedb "github.com/ArkLabsHQ/intentd/internal/infrastructure/db/sqlite"
	"github.com/dgraph-io/badger/v4"
)

var (
	allowedTypes = strings.Join([]string{"badger", "sqlite"}, ",")
)

type ServiceConfig struct {
	DbType   string
	DbConfig []any
}

type service struct {
	swapRepo     domain.SwapRepository
	identityRepo domain.IdentityRepository
	proofRepo    domain.ProofRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	var (
		swapRepo     domain.SwapRepository
		identityRepo domain.IdentityRepository
		proofRepo    domain.ProofRepository
		err          error
	)
	switch config.DbType {
	case "badger":
		if len(config.DbConfig) != 2 {
			return nil, fmt.Errorf("badger db config must have 2 elements, got %d", len(config.DbConfig))
		}
		baseDir, ok := config.DbConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}
		var logger badger.Logger
		if config.DbConfig[1] != nil {
			logger, ok = config.DbConfig[1].(badger.Logger)
			if !ok {
				return nil, fmt.Errorf("invalid logger")
			}
		}
		swapRepo, err = badgerdb.NewSwapRepository(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open swap db: %s", err)
		}
		identityRepo, err = badgerdb.NewIdentityRepository(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open identity db: %s", err)
		}
		proofRepo, err = badgerdb.NewProofRepository(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open proof db: %s", err)
		}
	case "sqlite":
		if len(config.DbConfig) != 1 {
			return nil, fmt.Errorf("sqlite db config must have 1 element, got %d", len(config.DbConfig))
		}
		baseDir, ok := config.DbConfig[0].(string)
		if !ok || baseDir == "" {
			return nil, fmt.Errorf("invalid base directory")
		}
		db, err := sqlitedb.OpenDb(baseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite db: %s", err)
		}
		if swapRepo, err = sqlitedb.NewSwapRepository(db); err != nil {
			return nil, err
		}
		if identityRepo, err = sqlitedb.NewIdentityRepository(db); err != nil {
			return nil, err
		}
		if proofRepo, err = sqlitedb.NewProofRepository(db); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported db type %s, please select one of %s", config.DbType, allowedTypes)
	}

	return &service{
		swapRepo:     swapRepo,
		identityRepo: identityRepo,
		proofRepo:    proofRepo,
	}, nil
}

func (s *service) Swaps() domain.SwapRepository {
	return s.swapRepo
}

func (s *service) Identities() domain.IdentityRepository {
	return s.identityRepo
}

func (s *service) Proofs() domain.ProofRepository {
	return s.proofRepo
}

func (s *service) Close() {
	s.swapRepo.Close()
	s.identityRepo.Close()
	s.proofRepo.Close()
}
