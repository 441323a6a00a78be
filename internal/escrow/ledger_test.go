package escrow

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/custody"
	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

var (
	funder = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	taker  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func newFundedLedger(t *testing.T, units int64) (*Ledger, *custody.Ledger) {
	t.Helper()
	cust := custody.NewLedger()
	if err := cust.Deposit(funder, units); err != nil {
		t.Fatalf("seed custody: %v", err)
	}
	l := NewLedger(cust)
	if err := l.Fund(funder, units); err != nil {
		t.Fatalf("fund pool: %v", err)
	}
	return l, cust
}

func TestFundMovesCustodyIntoPool(t *testing.T) {
	l, cust := newFundedLedger(t, 1_000_000)

	if got := l.Free(); got != 1_000_000 {
		t.Fatalf("free = %d, want 1000000", got)
	}
	if got := cust.BalanceOf(funder); got != 0 {
		t.Fatalf("funder custody balance = %d, want 0", got)
	}
}

func TestFundInsufficientCustody(t *testing.T) {
	cust := custody.NewLedger()
	l := NewLedger(cust)

	err := l.Fund(funder, 100)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("fund without custody = %v, want ErrInsufficientBalance", err)
	}
	if l.Free() != 0 || l.Locked() != 0 {
		t.Fatalf("pool changed on failed fund: free=%d locked=%d", l.Free(), l.Locked())
	}
}

func TestLockReleaseSettle(t *testing.T) {
	l, cust := newFundedLedger(t, 1000)

	if err := l.Lock(600); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if l.Free() != 400 || l.Locked() != 600 {
		t.Fatalf("after lock: free=%d locked=%d", l.Free(), l.Locked())
	}

	if err := l.Release(100); err != nil {
		t.Fatalf("release: %v", err)
	}
	if l.Free() != 500 || l.Locked() != 500 {
		t.Fatalf("after release: free=%d locked=%d", l.Free(), l.Locked())
	}

	if err := l.Settle(taker, 500); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if l.Free() != 500 || l.Locked() != 0 {
		t.Fatalf("after settle: free=%d locked=%d", l.Free(), l.Locked())
	}
	if got := cust.BalanceOf(taker); got != 500 {
		t.Fatalf("taker custody balance = %d, want 500", got)
	}

	// Pool free plus everything paid out equals the original funding.
	if l.Free()+cust.Total() != 1000 {
		t.Fatalf("value not conserved: free=%d custody=%d", l.Free(), cust.Total())
	}
}

func TestLockBeyondFree(t *testing.T) {
	l, _ := newFundedLedger(t, 100)
	if err := l.Lock(101); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("lock beyond free = %v, want ErrInsufficientBalance", err)
	}
	if l.Free() != 100 || l.Locked() != 0 {
		t.Fatalf("pool changed on failed lock: free=%d locked=%d", l.Free(), l.Locked())
	}
}

func TestReleaseBeyondLocked(t *testing.T) {
	l, _ := newFundedLedger(t, 100)
	if err := l.Lock(50); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := l.Release(51); !errors.Is(err, domain.ErrInsufficientEscrow) {
		t.Fatalf("release beyond locked = %v, want ErrInsufficientEscrow", err)
	}
	if err := l.Settle(taker, 51); !errors.Is(err, domain.ErrInsufficientEscrow) {
		t.Fatalf("settle beyond locked = %v, want ErrInsufficientEscrow", err)
	}
}

func TestDefund(t *testing.T) {
	l, cust := newFundedLedger(t, 300)

	if err := l.Defund(funder, 200); err != nil {
		t.Fatalf("defund: %v", err)
	}
	if got := l.Free(); got != 100 {
		t.Fatalf("free after defund = %d, want 100", got)
	}
	if got := cust.BalanceOf(funder); got != 200 {
		t.Fatalf("funder custody after defund = %d, want 200", got)
	}

	if err := l.Defund(funder, 101); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("defund beyond free = %v, want ErrInsufficientBalance", err)
	}
}
