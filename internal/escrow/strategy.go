package escrow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

// Strategy is the escrow capability a market plugs into the lifecycle
// engine: how funds are reserved at creation, paid out on fill, and
// returned on cancellation. The engine invokes each method at most once
// per transition, after the order's validation has passed.
type Strategy interface {
	// Reserve backs a newly created order and sets order.LockedUnits.
	// If it fails the order must not be created.
	Reserve(order *domain.Order) error

	// Settle pays units to the taker for an accepted fill and adjusts
	// order.LockedUnits. Called after the order's quantities have been
	// decremented, never before.
	Settle(order *domain.Order, taker common.Address, units int64) error

	// Cancel returns the order's outstanding backing and zeroes
	// order.LockedUnits.
	Cancel(order *domain.Order) error
}

// Pooled backs orders from the market's escrow pool: Reserve locks the full
// quantity, Settle pays the taker out of escrow, Cancel releases the
// remainder back to the pool.
type Pooled struct {
	ledger *Ledger
}

// NewPooled creates a pooled strategy over the given ledger.
func NewPooled(ledger *Ledger) *Pooled {
	return &Pooled{ledger: ledger}
}

func (p *Pooled) Reserve(order *domain.Order) error {
	if err := p.ledger.Lock(order.TotalUnits); err != nil {
		return err
	}
	order.LockedUnits = order.TotalUnits
	return nil
}

func (p *Pooled) Settle(order *domain.Order, taker common.Address, units int64) error {
	if err := p.ledger.Settle(taker, units); err != nil {
		return err
	}
	order.LockedUnits -= units
	return nil
}

func (p *Pooled) Cancel(order *domain.Order) error {
	if order.LockedUnits == 0 {
		return nil
	}
	if err := p.ledger.Release(order.LockedUnits); err != nil {
		return err
	}
	order.LockedUnits = 0
	return nil
}

// External leaves funds in the seller's custody balance: nothing is
// escrowed, a fill transfers seller to buyer directly, cancellation
// returns nothing because nothing was taken.
type External struct {
	custody domain.Custody
}

// NewExternal creates an externally-custodied strategy over custody.
func NewExternal(custody domain.Custody) *External {
	return &External{custody: custody}
}

func (e *External) Reserve(order *domain.Order) error {
	order.LockedUnits = 0
	return nil
}

func (e *External) Settle(order *domain.Order, taker common.Address, units int64) error {
	if err := e.custody.Transfer(order.Owner, taker, units); err != nil {
		return fmt.Errorf("escrow: external settle: %w", err)
	}
	return nil
}

func (e *External) Cancel(order *domain.Order) error {
	return nil
}
