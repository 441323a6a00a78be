// Package custody implements domain.Custody as an in-memory balance ledger.
// Every operation holds the ledger mutex for its whole duration, so each
// call is atomic with respect to every other.
package custody

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

// Ledger holds free balances per account for a single asset type.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]int64
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]int64)}
}

// Deposit credits units to the account's free balance.
func (l *Ledger) Deposit(account common.Address, units int64) error {
	if units <= 0 {
		return fmt.Errorf("custody: deposit %d: %w", units, domain.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += units
	return nil
}

// Withdraw debits units from the account's free balance.
func (l *Ledger) Withdraw(account common.Address, units int64) error {
	if units <= 0 {
		return fmt.Errorf("custody: withdraw %d: %w", units, domain.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[account] < units {
		return fmt.Errorf("custody: withdraw %d from %s: %w", units, account.Hex(), domain.ErrInsufficientBalance)
	}
	l.balances[account] -= units
	return nil
}

// Transfer moves units between two accounts in one atomic step.
func (l *Ledger) Transfer(from, to common.Address, units int64) error {
	if units <= 0 {
		return fmt.Errorf("custody: transfer %d: %w", units, domain.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < units {
		return fmt.Errorf("custody: transfer %d from %s: %w", units, from.Hex(), domain.ErrInsufficientBalance)
	}
	l.balances[from] -= units
	l.balances[to] += units
	return nil
}

// BalanceOf returns the account's free balance.
func (l *Ledger) BalanceOf(account common.Address) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Total returns the sum of all free balances, used by conservation checks.
func (l *Ledger) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, b := range l.balances {
		sum += b
	}
	return sum
}

// Compile-time interface check.
var _ domain.Custody = (*Ledger)(nil)
