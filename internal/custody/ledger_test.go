package custody

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestDepositWithdraw(t *testing.T) {
	l := NewLedger()

	if err := l.Deposit(alice, 1_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := l.BalanceOf(alice); got != 1_000_000 {
		t.Fatalf("balance after deposit = %d, want 1000000", got)
	}

	if err := l.Withdraw(alice, 400_000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := l.BalanceOf(alice); got != 600_000 {
		t.Fatalf("balance after withdraw = %d, want 600000", got)
	}
}

func TestWithdrawInsufficient(t *testing.T) {
	l := NewLedger()
	if err := l.Deposit(alice, 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	err := l.Withdraw(alice, 101)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("withdraw over balance = %v, want ErrInsufficientBalance", err)
	}
	if got := l.BalanceOf(alice); got != 100 {
		t.Fatalf("balance changed on failed withdraw: %d", got)
	}
}

func TestTransfer(t *testing.T) {
	l := NewLedger()
	if err := l.Deposit(alice, 500); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := l.Transfer(alice, bob, 200); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.BalanceOf(alice); got != 300 {
		t.Fatalf("sender balance = %d, want 300", got)
	}
	if got := l.BalanceOf(bob); got != 200 {
		t.Fatalf("recipient balance = %d, want 200", got)
	}
	if got := l.Total(); got != 500 {
		t.Fatalf("total = %d, want 500", got)
	}

	err := l.Transfer(alice, bob, 301)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("transfer over balance = %v, want ErrInsufficientBalance", err)
	}
}

func TestNonPositiveAmounts(t *testing.T) {
	l := NewLedger()
	for _, units := range []int64{0, -5} {
		if err := l.Deposit(alice, units); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("deposit %d = %v, want ErrInvalidAmount", units, err)
		}
		if err := l.Withdraw(alice, units); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("withdraw %d = %v, want ErrInvalidAmount", units, err)
		}
		if err := l.Transfer(alice, bob, units); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("transfer %d = %v, want ErrInvalidAmount", units, err)
		}
	}
}

func TestUnknownAccountIsZero(t *testing.T) {
	l := NewLedger()
	if got := l.BalanceOf(bob); got != 0 {
		t.Fatalf("unknown account balance = %d, want 0", got)
	}
	if err := l.Withdraw(bob, 1); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("withdraw from unknown account = %v, want ErrInsufficientBalance", err)
	}
}
