package envunlocker

import (
	"context"
	"fmt"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/utils"
)

type service struct {
	mnemonic string
}

func NewService(mnemonic string) (ports.Unlocker, error) {
	if len(mnemonic) <= 0 {
		return nil, fmt.Errorf("missing mnemonic in environment")
	}
	if err := utils.IsValidMnemonic(mnemonic); err != nil {
		return nil, err
	}
	return &service{mnemonic}, nil
}

func (s *service) GetSecret(_ context.Context) (string, error) {
	return s.mnemonic, nil
}
