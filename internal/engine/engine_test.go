package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/custody"
	"github.com/alanyoungcy/escrowdesk/internal/domain"
	"github.com/alanyoungcy/escrowdesk/internal/proof"
)

var (
	seller = common.HexToAddress("0x0000000000000000000000000000000000000501")
	buyer  = common.HexToAddress("0x0000000000000000000000000000000000000502")
	other  = common.HexToAddress("0x0000000000000000000000000000000000000503")
)

var testClock = func() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

// newPooledMarket builds a desk with one pooled BTC market whose pool is
// seeded with poolUnits from the seller's custody balance.
func newPooledMarket(t *testing.T, poolUnits int64, allowFinalBelowMin bool) (*Desk, *Market, *custody.Ledger) {
	t.Helper()
	cust := custody.NewLedger()
	if err := cust.Deposit(seller, poolUnits); err != nil {
		t.Fatalf("seed custody: %v", err)
	}

	d := NewDesk(cust, proof.AcceptAll(), WithClock(testClock))
	m, err := d.Initialize(domain.Market{
		Asset:              "BTC",
		Kind:               domain.MarketKindPooled,
		PoolFunder:         seller,
		AllowFinalBelowMin: allowFinalBelowMin,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := d.FundPool("BTC", seller, poolUnits); err != nil {
		t.Fatalf("fund pool: %v", err)
	}
	return d, m, cust
}

func terms() CreateTerms {
	return CreateTerms{
		TotalUnits:   1_000_000,
		MinFillUnits: 0,
		Terms: domain.OrderTerms{
			PriceTicks:    45_000_00, // 45000.00 fiat per whole unit
			FiatCurrency:  "USD",
			PaymentMethod: "wise",
		},
	}
}

func TestInitializeRejectsDuplicateAsset(t *testing.T) {
	d, _, _ := newPooledMarket(t, 1_000_000, true)
	_, err := d.Initialize(domain.Market{Asset: "BTC", Kind: domain.MarketKindPooled})
	if !errors.Is(err, domain.ErrMarketExists) {
		t.Fatalf("second initialize = %v, want ErrMarketExists", err)
	}
}

func TestInitializeRejectsUnknownKind(t *testing.T) {
	d := NewDesk(custody.NewLedger(), proof.AcceptAll())
	_, err := d.Initialize(domain.Market{Asset: "BTC", Kind: "mystery"})
	if !errors.Is(err, domain.ErrInvalidKind) {
		t.Fatalf("unknown kind = %v, want ErrInvalidKind", err)
	}
}

func TestMarketUnknownAsset(t *testing.T) {
	d, _, _ := newPooledMarket(t, 1, true)
	if _, err := d.Market("ETH"); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Fatalf("unknown market = %v, want ErrMarketNotFound", err)
	}
}

func TestCreateOrderLocksEscrow(t *testing.T) {
	_, m, _ := newPooledMarket(t, 2_000_000, true)

	order, err := m.CreateOrder(seller, terms())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.ID != 1 {
		t.Fatalf("first id = %d, want 1", order.ID)
	}
	if order.Status != domain.OrderStatusOpen {
		t.Fatalf("status = %s, want open", order.Status)
	}
	if order.LockedUnits != order.TotalUnits {
		t.Fatalf("locked = %d, want %d", order.LockedUnits, order.TotalUnits)
	}
	if m.Ledger().Locked() != 1_000_000 || m.Ledger().Free() != 1_000_000 {
		t.Fatalf("pool: free=%d locked=%d", m.Ledger().Free(), m.Ledger().Locked())
	}
	if order.CreatedAt != testClock() {
		t.Fatalf("created at = %v", order.CreatedAt)
	}
}

func TestCreateOrderInsufficientPool(t *testing.T) {
	_, m, _ := newPooledMarket(t, 500_000, true)

	_, err := m.CreateOrder(seller, terms())
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("create beyond pool = %v, want ErrInsufficientBalance", err)
	}
	// Failed creation leaves no trace.
	if m.Ledger().Locked() != 0 || m.Ledger().Free() != 500_000 {
		t.Fatalf("pool changed: free=%d locked=%d", m.Ledger().Free(), m.Ledger().Locked())
	}
	if ids := m.OrdersFor(seller); len(ids) != 0 {
		t.Fatalf("order created despite failure: %v", ids)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	_, m, _ := newPooledMarket(t, 10_000_000, true)

	cases := []struct {
		name   string
		mutate func(*CreateTerms)
	}{
		{"zero total", func(c *CreateTerms) { c.TotalUnits = 0 }},
		{"negative total", func(c *CreateTerms) { c.TotalUnits = -1 }},
		{"negative min fill", func(c *CreateTerms) { c.MinFillUnits = -1 }},
		{"min above total", func(c *CreateTerms) { c.MinFillUnits = c.TotalUnits + 1 }},
		{"zero price", func(c *CreateTerms) { c.Terms.PriceTicks = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ct := terms()
			tc.mutate(&ct)
			if _, err := m.CreateOrder(seller, ct); !errors.Is(err, domain.ErrInvalidAmount) {
				t.Fatalf("create = %v, want ErrInvalidAmount", err)
			}
		})
	}
}

func TestFillOrderExact(t *testing.T) {
	_, m, cust := newPooledMarket(t, 1_000_000, true)
	ctx := context.Background()

	order, err := m.CreateOrder(seller, terms())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	filled, fill, err := m.FillOrder(ctx, buyer, order.ID, 1_000_000, []byte("p1"))
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if filled.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %s, want filled", filled.Status)
	}
	if filled.RemainingUnits != 0 {
		t.Fatalf("remaining = %d, want 0", filled.RemainingUnits)
	}
	if filled.FilledAt == nil || !filled.FilledAt.Equal(testClock()) {
		t.Fatalf("filled at = %v", filled.FilledAt)
	}
	if fill.Units != 1_000_000 || fill.OrderID != order.ID || fill.Taker != buyer {
		t.Fatalf("fill record %+v", fill)
	}
	// One whole unit at 45000.00 is 4500000 minor units.
	if fill.FiatDue.Int64() != 45_000_00 {
		t.Fatalf("fiat due = %s, want 4500000", fill.FiatDue)
	}
	if got := cust.BalanceOf(buyer); got != 1_000_000 {
		t.Fatalf("buyer custody = %d, want 1000000", got)
	}
	if m.Ledger().Locked() != 0 {
		t.Fatalf("locked after full fill = %d", m.Ledger().Locked())
	}
}

func TestFillOrderPartialSequence(t *testing.T) {
	_, m, cust := newPooledMarket(t, 1_000_000, true)
	ctx := context.Background()

	order, err := m.CreateOrder(seller, terms())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _, err := m.FillOrder(ctx, buyer, order.ID, 300_000, []byte("p1"))
	if err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if first.Status != domain.OrderStatusPartiallyFilled {
		t.Fatalf("status after first fill = %s", first.Status)
	}
	if first.RemainingUnits != 700_000 {
		t.Fatalf("remaining = %d, want 700000", first.RemainingUnits)
	}

	second, _, err := m.FillOrder(ctx, other, order.ID, 700_000, []byte("p2"))
	if err != nil {
		t.Fatalf("second fill: %v", err)
	}
	if second.Status != domain.OrderStatusFilled {
		t.Fatalf("status after second fill = %s", second.Status)
	}
	if cust.BalanceOf(buyer) != 300_000 || cust.BalanceOf(other) != 700_000 {
		t.Fatalf("taker balances: %d and %d", cust.BalanceOf(buyer), cust.BalanceOf(other))
	}
}

func TestFillOrderOverRemaining(t *testing.T) {
	_, m, _ := newPooledMarket(t, 1_000_000, true)
	ctx := context.Background()

	order, _ := m.CreateOrder(seller, terms())
	if _, _, err := m.FillOrder(ctx, buyer, order.ID, 600_000, []byte("p1")); err != nil {
		t.Fatalf("fill: %v", err)
	}

	_, _, err := m.FillOrder(ctx, buyer, order.ID, 400_001, []byte("p2"))
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("over-fill = %v, want ErrInvalidAmount", err)
	}

	got, err := m.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RemainingUnits != 400_000 {
		t.Fatalf("remaining changed on rejected fill: %d", got.RemainingUnits)
	}
}

func TestFillOrderMinFill(t *testing.T) {
	_, m, _ := newPooledMarket(t, 1_000_000, true)
	ctx := context.Background()

	ct := terms()
	ct.MinFillUnits = 250_000
	order, err := m.CreateOrder(seller, ct)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, _, err = m.FillOrder(ctx, buyer, order.ID, 249_999, []byte("p1"))
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("fill below minimum = %v, want ErrInvalidAmount", err)
	}

	if _, _, err := m.FillOrder(ctx, buyer, order.ID, 850_000, []byte("p2")); err != nil {
		t.Fatalf("fill at minimum: %v", err)
	}

	// 150000 left, below the minimum, but it exhausts the order exactly.
	final, _, err := m.FillOrder(ctx, buyer, order.ID, 150_000, []byte("p3"))
	if err != nil {
		t.Fatalf("final below-minimum fill: %v", err)
	}
	if final.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %s, want filled", final.Status)
	}
}

func TestFillOrderFinalBelowMinDisallowed(t *testing.T) {
	_, m, _ := newPooledMarket(t, 1_000_000, false)
	ctx := context.Background()

	ct := terms()
	ct.MinFillUnits = 250_000
	order, err := m.CreateOrder(seller, ct)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := m.FillOrder(ctx, buyer, order.ID, 850_000, []byte("p1")); err != nil {
		t.Fatalf("fill: %v", err)
	}

	// Without the final-remainder exception the dust is unfillable.
	_, _, err = m.FillOrder(ctx, buyer, order.ID, 150_000, []byte("p2"))
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("final below-minimum fill = %v, want ErrInvalidAmount", err)
	}
}

func TestFillOrderProofReplay(t *testing.T) {
	_, m, _ := newPooledMarket(t, 1_000_000, true)
	ctx := context.Background()

	order, _ := m.CreateOrder(seller, terms())
	sameProof := []byte("receipt")

	if _, _, err := m.FillOrder(ctx, buyer, order.ID, 100_000, sameProof); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	_, _, err := m.FillOrder(ctx, buyer, order.ID, 100_000, sameProof)
	if !errors.Is(err, domain.ErrInvalidProof) {
		t.Fatalf("replayed proof = %v, want ErrInvalidProof", err)
	}
	// A fresh proof still goes through.
	if _, _, err := m.FillOrder(ctx, buyer, order.ID, 100_000, []byte("receipt-2")); err != nil {
		t.Fatalf("fresh proof: %v", err)
	}
}

func TestFillOrderRejectedProofLeavesStateUntouched(t *testing.T) {
	cust := custody.NewLedger()
	if err := cust.Deposit(seller, 1_000_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	d := NewDesk(cust, proof.RejectAll(), WithClock(testClock))
	m, err := d.Initialize(domain.Market{
		Asset: "BTC", Kind: domain.MarketKindPooled, PoolFunder: seller, AllowFinalBelowMin: true,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := d.FundPool("BTC", seller, 1_000_000); err != nil {
		t.Fatalf("fund: %v", err)
	}

	order, err := m.CreateOrder(seller, terms())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// A rejected proof is not consumed: retrying the identical fill must
	// fail the same way, with the order untouched both times.
	for attempt := 1; attempt <= 2; attempt++ {
		_, _, err = m.FillOrder(context.Background(), buyer, order.ID, 100_000, []byte("p"))
		if !errors.Is(err, domain.ErrInvalidProof) {
			t.Fatalf("attempt %d with rejecting verifier = %v, want ErrInvalidProof", attempt, err)
		}
		got, _ := m.GetOrder(order.ID)
		if got.RemainingUnits != 1_000_000 || got.Status != domain.OrderStatusOpen {
			t.Fatalf("attempt %d changed state on rejected proof: %+v", attempt, got)
		}
		if cust.BalanceOf(buyer) != 0 {
			t.Fatalf("attempt %d: buyer paid despite rejected proof: %d", attempt, cust.BalanceOf(buyer))
		}
	}
}

func TestCancelOrderReturnsEscrow(t *testing.T) {
	_, m, _ := newPooledMarket(t, 1_000_000, true)
	ctx := context.Background()

	order, _ := m.CreateOrder(seller, terms())
	if _, _, err := m.FillOrder(ctx, buyer, order.ID, 400_000, []byte("p1")); err != nil {
		t.Fatalf("fill: %v", err)
	}

	cancelled, err := m.CancelOrder(seller, order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelledAt == nil || !cancelled.CancelledAt.Equal(testClock()) {
		t.Fatalf("cancelled at = %v", cancelled.CancelledAt)
	}
	if cancelled.LockedUnits != 0 {
		t.Fatalf("locked after cancel = %d", cancelled.LockedUnits)
	}
	// The unfilled 600000 returns to the pool's free balance.
	if m.Ledger().Free() != 600_000 || m.Ledger().Locked() != 0 {
		t.Fatalf("pool after cancel: free=%d locked=%d", m.Ledger().Free(), m.Ledger().Locked())
	}
}

func TestCancelOrderUnauthorized(t *testing.T) {
	_, m, _ := newPooledMarket(t, 1_000_000, true)

	order, _ := m.CreateOrder(seller, terms())
	_, err := m.CancelOrder(other, order.ID)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("cancel by stranger = %v, want ErrUnauthorized", err)
	}
	got, _ := m.GetOrder(order.ID)
	if got.Status != domain.OrderStatusOpen {
		t.Fatalf("status changed: %s", got.Status)
	}
}

func TestTerminalOrdersAreImmutable(t *testing.T) {
	_, m, _ := newPooledMarket(t, 2_000_000, true)
	ctx := context.Background()

	filled, _ := m.CreateOrder(seller, terms())
	if _, _, err := m.FillOrder(ctx, buyer, filled.ID, 1_000_000, []byte("p1")); err != nil {
		t.Fatalf("fill: %v", err)
	}
	cancelled, _ := m.CreateOrder(seller, terms())
	if _, err := m.CancelOrder(seller, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	for _, id := range []uint64{filled.ID, cancelled.ID} {
		if _, _, err := m.FillOrder(ctx, buyer, id, 1, []byte("px")); !errors.Is(err, domain.ErrInvalidStatus) {
			t.Fatalf("fill terminal order %d = %v, want ErrInvalidStatus", id, err)
		}
		if _, err := m.CancelOrder(seller, id); !errors.Is(err, domain.ErrInvalidStatus) {
			t.Fatalf("cancel terminal order %d = %v, want ErrInvalidStatus", id, err)
		}
	}
}

func TestIDsNotReusedAfterCancel(t *testing.T) {
	_, m, _ := newPooledMarket(t, 3_000_000, true)

	first, _ := m.CreateOrder(seller, terms())
	if _, err := m.CancelOrder(seller, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	second, err := m.CreateOrder(seller, terms())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("id %d reused or regressed after %d", second.ID, first.ID)
	}
	// The cancelled order stays queryable.
	got, err := m.GetOrder(first.ID)
	if err != nil {
		t.Fatalf("get cancelled order: %v", err)
	}
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestExternalMarketTransfersFromOwner(t *testing.T) {
	cust := custody.NewLedger()
	if err := cust.Deposit(seller, 1_000_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	d := NewDesk(cust, proof.AcceptAll(), WithClock(testClock))
	m, err := d.Initialize(domain.Market{
		Asset: "USDT", Kind: domain.MarketKindExternal, AllowFinalBelowMin: true,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if m.Ledger() != nil {
		t.Fatalf("external market has a pool ledger")
	}
	if err := d.FundPool("USDT", seller, 1); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("fund external market = %v, want ErrInvalidStatus", err)
	}

	order, err := m.CreateOrder(seller, terms())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.LockedUnits != 0 {
		t.Fatalf("external order locked = %d, want 0", order.LockedUnits)
	}

	if _, _, err := m.FillOrder(context.Background(), buyer, order.ID, 400_000, []byte("p1")); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if cust.BalanceOf(seller) != 600_000 || cust.BalanceOf(buyer) != 400_000 {
		t.Fatalf("balances after fill: seller=%d buyer=%d", cust.BalanceOf(seller), cust.BalanceOf(buyer))
	}

	// A fill beyond the owner's remaining custody balance fails atomically.
	if err := cust.Withdraw(seller, 500_000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	_, _, err = m.FillOrder(context.Background(), buyer, order.ID, 200_000, []byte("p2"))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("underfunded external fill = %v, want ErrInsufficientBalance", err)
	}
	got, _ := m.GetOrder(order.ID)
	if got.RemainingUnits != 600_000 {
		t.Fatalf("remaining changed on failed settle: %d", got.RemainingUnits)
	}
}

func TestMarketsSorted(t *testing.T) {
	d := NewDesk(custody.NewLedger(), proof.AcceptAll())
	for _, asset := range []string{"ETH", "BTC", "USDT"} {
		if _, err := d.Initialize(domain.Market{Asset: asset, Kind: domain.MarketKindExternal}); err != nil {
			t.Fatalf("initialize %s: %v", asset, err)
		}
	}
	specs := d.Markets()
	if len(specs) != 3 {
		t.Fatalf("markets = %d, want 3", len(specs))
	}
	for i, want := range []string{"BTC", "ETH", "USDT"} {
		if specs[i].Asset != want {
			t.Fatalf("markets[%d] = %s, want %s", i, specs[i].Asset, want)
		}
	}
}

func TestPoolConservation(t *testing.T) {
	_, m, cust := newPooledMarket(t, 5_000_000, true)
	ctx := context.Background()

	o1, _ := m.CreateOrder(seller, terms())
	o2, _ := m.CreateOrder(seller, terms())
	if _, _, err := m.FillOrder(ctx, buyer, o1.ID, 700_000, []byte("a")); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if _, _, err := m.FillOrder(ctx, other, o2.ID, 1_000_000, []byte("b")); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if _, err := m.CancelOrder(seller, o1.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Every unit is in exactly one place: pool free, pool locked, or a
	// custody balance.
	total := m.Ledger().Free() + m.Ledger().Locked() + cust.Total()
	if total != 5_000_000 {
		t.Fatalf("value not conserved: %d", total)
	}
	if m.Ledger().Locked() != m.LockedTotal() {
		t.Fatalf("pool locked %d != order locked sum %d", m.Ledger().Locked(), m.LockedTotal())
	}
}
