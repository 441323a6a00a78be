// Package engine implements the order lifecycle state machine: create,
// fill and cancel as atomic transitions over the per-market order book,
// with escrow movement delegated to an escrow strategy and settlement
// gated by an injected proof verifier.
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/book"
	"github.com/alanyoungcy/escrowdesk/internal/domain"
	"github.com/alanyoungcy/escrowdesk/internal/escrow"
)

// Desk owns one Market engine per asset type, sharing a single custody
// primitive and proof verifier. It replaces process-wide singletons with an
// explicit, injectable context object.
type Desk struct {
	custody  domain.Custody
	verifier domain.ProofVerifier
	now      func() time.Time

	mu      sync.RWMutex
	markets map[string]*Market
}

// Option customizes a Desk.
type Option func(*Desk)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(d *Desk) { d.now = now }
}

// NewDesk creates a Desk with no markets.
func NewDesk(custody domain.Custody, verifier domain.ProofVerifier, opts ...Option) *Desk {
	d := &Desk{
		custody:  custody,
		verifier: verifier,
		now:      time.Now,
		markets:  make(map[string]*Market),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Initialize creates the market for spec.Asset. Each asset type gets
// exactly one market for the desk's lifetime; a second Initialize for the
// same asset fails with ErrMarketExists.
func (d *Desk) Initialize(spec domain.Market) (*Market, error) {
	if !spec.Kind.Valid() {
		return nil, fmt.Errorf("engine: initialize %s: kind %q: %w",
			spec.Asset, spec.Kind, domain.ErrInvalidKind)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.markets[spec.Asset]; ok {
		return nil, fmt.Errorf("engine: initialize %s: %w", spec.Asset, domain.ErrMarketExists)
	}

	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = d.now().UTC()
	}

	m := &Market{
		spec:       spec,
		verifier:   d.verifier,
		now:        d.now,
		store:      book.NewStore(),
		usedProofs: make(map[uint64]map[[32]byte]struct{}),
	}
	switch spec.Kind {
	case domain.MarketKindPooled:
		m.ledger = escrow.NewLedger(d.custody)
		m.strategy = escrow.NewPooled(m.ledger)
	case domain.MarketKindExternal:
		m.strategy = escrow.NewExternal(d.custody)
	}

	d.markets[spec.Asset] = m
	return m, nil
}

// Market returns the engine for the given asset type.
func (d *Desk) Market(asset string) (*Market, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.markets[asset]
	if !ok {
		return nil, fmt.Errorf("engine: market %s: %w", asset, domain.ErrMarketNotFound)
	}
	return m, nil
}

// Markets returns the specs of all initialized markets, sorted by asset.
func (d *Desk) Markets() []domain.Market {
	d.mu.RLock()
	defer d.mu.RUnlock()
	specs := make([]domain.Market, 0, len(d.markets))
	for _, m := range d.markets {
		specs = append(specs, m.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Asset < specs[j].Asset })
	return specs
}

// FundPool moves units from the funder's custody balance into the market's
// escrow pool. Only pooled markets have a pool to fund.
func (d *Desk) FundPool(asset string, funder common.Address, units int64) error {
	m, err := d.Market(asset)
	if err != nil {
		return err
	}
	if m.ledger == nil {
		return fmt.Errorf("engine: fund pool %s: market is externally custodied: %w",
			asset, domain.ErrInvalidStatus)
	}
	return m.ledger.Fund(funder, units)
}

// Custody returns the desk's custody primitive.
func (d *Desk) Custody() domain.Custody {
	return d.custody
}
