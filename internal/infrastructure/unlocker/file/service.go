package fileunlocker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
)

type service struct {
	path string
}

// NewService returns an unlocker reading the mnemonic from the file at path
// every time it is asked for it.
func NewService(path string) (ports.Unlocker, error) {
	if len(path) <= 0 {
		return nil, fmt.Errorf("missing mnemonic file path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("invalid mnemonic file: %w", err)
	}
	return &service{path}, nil
}

func (s *service) GetSecret(_ context.Context) (string, error) {
	buf, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read mnemonic file: %w", err)
	}
	mnemonic := strings.TrimSpace(string(buf))
	if len(mnemonic) <= 0 {
		return "", fmt.Errorf("mnemonic file %s is empty", s.path)
	}
	return mnemonic, nil
}
