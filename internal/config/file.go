package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/coordinator"
	"github.com/ArkLabsHQ/intentd/internal/core/identity"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/utils"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// File holds the structured settings read from the config file in the
// datadir.
type File struct {
	Peers     []Peer            `mapstructure:"peers"`
	Whitelist []Whitelisted     `mapstructure:"whitelist"`
	Gateways  []Gateway         `mapstructure:"gateways"`
	Accounts  map[string]string `mapstructure:"accounts"`
	// Schemes maps a chain to the scheme proving control of its accounts.
	Schemes map[string]string `mapstructure:"schemes"`
	Policy  Policy            `mapstructure:"policy"`
}

type Peer struct {
	NetworkId string `mapstructure:"network_id"`
	Address   string `mapstructure:"address"`
}

type Whitelisted struct {
	NetworkId       string `mapstructure:"network_id"`
	AllowPayments   bool   `mapstructure:"allow_payments"`
	AllowSwaps      bool   `mapstructure:"allow_swaps"`
	AllowTrustlines bool   `mapstructure:"allow_trustlines"`
	MaxAmount       uint64 `mapstructure:"max_amount"`
}

type Gateway struct {
	Chain string `mapstructure:"chain"`
	// Type is either remote or memory, the latter for test networks only.
	Type    string        `mapstructure:"type"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Policy struct {
	Pairs           []coordinator.AssetPair `mapstructure:"pairs"`
	MinAmount       uint64                  `mapstructure:"min_amount"`
	MaxAmount       uint64                  `mapstructure:"max_amount"`
	MaxSlippageBps  uint32                  `mapstructure:"max_slippage_bps"`
	MinLockDuration time.Duration           `mapstructure:"min_lock_duration"`
}

func (p Policy) toPolicy() coordinator.Policy {
	return coordinator.Policy{
		Pairs:           p.Pairs,
		MinAmount:       p.MinAmount,
		MaxAmount:       p.MaxAmount,
		MaxSlippageBps:  p.MaxSlippageBps,
		MinLockDuration: p.MinLockDuration,
	}
}

// PeerBook maps the network id of the known peers to their address.
func (f File) PeerBook() map[string]string {
	book := make(map[string]string, len(f.Peers))
	for _, p := range f.Peers {
		book[p.NetworkId] = p.Address
	}
	return book
}

func loadFile(path string) (*File, error) {
	file := &File{
		Accounts: make(map[string]string),
		Schemes:  map[string]string{"stellar": identity.SchemeStellar},
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return file, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %s", path, err)
	}
	if err := v.Unmarshal(file, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToAssetPairHook,
	))); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %s", path, err)
	}
	if err := file.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %s", path, err)
	}
	return file, nil
}

func (f File) validate() error {
	for _, p := range f.Peers {
		if _, err := envelope.ParseNetworkId(p.NetworkId); err != nil {
			return fmt.Errorf("peer %s: %s", p.NetworkId, err)
		}
		if !utils.IsValidPeerAddress(p.Address) {
			return fmt.Errorf("peer %s: invalid address %q", p.NetworkId, p.Address)
		}
	}
	for _, w := range f.Whitelist {
		if _, err := envelope.ParseNetworkId(w.NetworkId); err != nil {
			return fmt.Errorf("whitelisted peer %s: %s", w.NetworkId, err)
		}
	}
	for _, g := range f.Gateways {
		if g.Chain == "" {
			return fmt.Errorf("gateway without chain")
		}
		switch g.Type {
		case "remote":
			if !utils.IsValidURL(g.URL) {
				return fmt.Errorf("gateway %s: invalid url %q", g.Chain, g.URL)
			}
		case "memory":
		default:
			return fmt.Errorf("gateway %s: unknown type %q", g.Chain, g.Type)
		}
	}
	for chain, scheme := range f.Schemes {
		if _, err := identity.NewVerifier(scheme); err != nil {
			return fmt.Errorf("chain %s: %s", chain, err)
		}
	}
	return nil
}

// stringToAssetPairHook decodes pairs written as FROM/TO, both assets in
// the CODE[:ISSUER]@CHAIN notation.
func stringToAssetPairHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(coordinator.AssetPair{}) {
		return data, nil
	}
	parts := strings.Split(data.(string), "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid pair %q, expected FROM/TO", data)
	}
	fromAsset, err := envelope.ParseAsset(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, err
	}
	toAsset, err := envelope.ParseAsset(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, err
	}
	return coordinator.AssetPair{From: fromAsset, To: toAsset}, nil
}
