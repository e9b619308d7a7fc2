package gateway

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
)

type Registry struct {
	lock       sync.RWMutex
	gateways   map[string]ports.LedgerGateway
	heights    map[string]ports.HeightReporter
	validators map[string]ports.EnvelopeValidator
}

// NewRegistry returns a registry of the given gateways, keyed by chain.
// Gateways that can report block heights are registered as height reporters
// of their chain.
func NewRegistry(gateways ...ports.LedgerGateway) (*Registry, error) {
	r := &Registry{
		gateways:   make(map[string]ports.LedgerGateway),
		heights:    make(map[string]ports.HeightReporter),
		validators: make(map[string]ports.EnvelopeValidator),
	}
	for _, gw := range gateways {
		if err := r.AddGateway(gw); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) AddGateway(gw ports.LedgerGateway) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	chain := gw.Chain()
	if _, ok := r.gateways[chain]; ok {
		return fmt.Errorf("duplicated gateway for chain %s", chain)
	}
	r.gateways[chain] = gw
	if reporter, ok := gw.(ports.HeightReporter); ok {
		if _, ok := r.heights[chain]; !ok {
			r.heights[chain] = reporter
		}
	}
	return nil
}

// SetHeightReporter overrides the height source of a chain.
func (r *Registry) SetHeightReporter(chain string, reporter ports.HeightReporter) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.heights[chain] = reporter
}

func (r *Registry) AddValidator(v ports.EnvelopeValidator) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.validators[v.Chain()] = v
}

func (r *Registry) Gateway(chain string) (ports.LedgerGateway, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	gw, ok := r.gateways[chain]
	if !ok {
		return nil, fmt.Errorf("no gateway for chain %s", chain)
	}
	return gw, nil
}

func (r *Registry) HeightReporter(chain string) (ports.HeightReporter, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	h, ok := r.heights[chain]
	return h, ok
}

func (r *Registry) Validator(chain string) (ports.EnvelopeValidator, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	v, ok := r.validators[chain]
	return v, ok
}

func (r *Registry) Chains() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	chains := make([]string, 0, len(r.gateways))
	for chain := range r.gateways {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	return chains
}
