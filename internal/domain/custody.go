package domain

import "github.com/ethereum/go-ethereum/common"

// Custody is the asset custody primitive: an already-correct, atomic ledger
// of free balances per account. The lifecycle engine never partially invokes
// it — each call either fully applies or fully fails.
type Custody interface {
	// Deposit credits units to the account's free balance.
	Deposit(account common.Address, units int64) error

	// Withdraw debits units from the account's free balance. Returns
	// ErrInsufficientBalance if the balance is smaller than units.
	Withdraw(account common.Address, units int64) error

	// Transfer moves units from one account's free balance to another's.
	// Returns ErrInsufficientBalance if from holds less than units.
	Transfer(from, to common.Address, units int64) error

	// BalanceOf returns the account's free balance. Unknown accounts hold 0.
	BalanceOf(account common.Address) int64
}
