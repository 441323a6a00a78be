// Package escrow implements the per-market escrow ledger: custody of asset
// quantities pledged against open orders. Lock, Release and Settle never
// change the total value in the system; every unit is accounted in exactly
// one of free, escrowed, or a custody balance.
package escrow

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

// Ledger custodies one market's pool: a free balance available to back new
// orders and an escrowed balance locked against open ones. Settlements and
// withdrawals leave the pool through the custody primitive.
type Ledger struct {
	mu      sync.Mutex
	free    int64
	locked  int64
	custody domain.Custody
}

// NewLedger creates a Ledger whose settlements are paid out via custody.
func NewLedger(custody domain.Custody) *Ledger {
	return &Ledger{custody: custody}
}

// Fund withdraws units from the funder's custody balance into the pool's
// free balance. Fails with ErrInsufficientBalance if the funder cannot
// cover it; the pool is unchanged on failure.
func (l *Ledger) Fund(funder common.Address, units int64) error {
	if units <= 0 {
		return fmt.Errorf("escrow: fund %d: %w", units, domain.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.custody.Withdraw(funder, units); err != nil {
		return fmt.Errorf("escrow: fund pool: %w", err)
	}
	l.free += units
	return nil
}

// Defund moves units from the pool's free balance back to the recipient's
// custody balance.
func (l *Ledger) Defund(recipient common.Address, units int64) error {
	if units <= 0 {
		return fmt.Errorf("escrow: defund %d: %w", units, domain.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.free < units {
		return fmt.Errorf("escrow: defund %d of %d free: %w", units, l.free, domain.ErrInsufficientBalance)
	}
	if err := l.custody.Deposit(recipient, units); err != nil {
		return fmt.Errorf("escrow: defund payout: %w", err)
	}
	l.free -= units
	return nil
}

// Lock reserves units from the free balance into escrow.
func (l *Ledger) Lock(units int64) error {
	if units <= 0 {
		return fmt.Errorf("escrow: lock %d: %w", units, domain.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.free < units {
		return fmt.Errorf("escrow: lock %d of %d free: %w", units, l.free, domain.ErrInsufficientBalance)
	}
	l.free -= units
	l.locked += units
	return nil
}

// Release moves units from escrow back to the free balance, used on
// cancellation.
func (l *Ledger) Release(units int64) error {
	if units <= 0 {
		return fmt.Errorf("escrow: release %d: %w", units, domain.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked < units {
		return fmt.Errorf("escrow: release %d of %d locked: %w", units, l.locked, domain.ErrInsufficientEscrow)
	}
	l.locked -= units
	l.free += units
	return nil
}

// Settle moves units from escrow directly to the recipient's custody
// balance, bypassing the pool's free balance. Used on fill.
func (l *Ledger) Settle(recipient common.Address, units int64) error {
	if units <= 0 {
		return fmt.Errorf("escrow: settle %d: %w", units, domain.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked < units {
		return fmt.Errorf("escrow: settle %d of %d locked: %w", units, l.locked, domain.ErrInsufficientEscrow)
	}
	if err := l.custody.Deposit(recipient, units); err != nil {
		return fmt.Errorf("escrow: settle payout: %w", err)
	}
	l.locked -= units
	return nil
}

// Free returns the pool's unlocked balance.
func (l *Ledger) Free() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.free
}

// Locked returns the pool's escrowed balance.
func (l *Ledger) Locked() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}
