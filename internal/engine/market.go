package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/escrowdesk/internal/book"
	"github.com/alanyoungcy/escrowdesk/internal/domain"
	"github.com/alanyoungcy/escrowdesk/internal/escrow"
)

// Market is the lifecycle engine for one asset type. Every operation runs
// under the market mutex as one indivisible transaction: it either
// completes fully or fails with no observable side effect. Operations on
// different Market instances are independent.
type Market struct {
	spec     domain.Market
	verifier domain.ProofVerifier
	now      func() time.Time

	mu       sync.Mutex
	store    *book.Store
	ledger   *escrow.Ledger // nil for externally-custodied markets
	strategy escrow.Strategy

	// usedProofs holds the digest of every accepted proof per order, so a
	// spent proof cannot authorize a second fill.
	usedProofs map[uint64]map[[32]byte]struct{}
}

// CreateTerms are the caller-supplied parameters for CreateOrder.
type CreateTerms struct {
	TotalUnits   int64
	MinFillUnits int64
	Terms        domain.OrderTerms
}

// Spec returns the market's immutable record.
func (m *Market) Spec() domain.Market {
	return m.spec
}

// Ledger returns the market's escrow ledger, or nil for externally-custodied
// markets.
func (m *Market) Ledger() *escrow.Ledger {
	return m.ledger
}

// CreateOrder allocates an id, reserves escrow backing per the market's
// strategy, and inserts the new order in Open status. If reserving fails
// the order is never created. No proof is required at creation.
func (m *Market) CreateOrder(owner common.Address, terms CreateTerms) (domain.Order, error) {
	if terms.TotalUnits <= 0 {
		return domain.Order{}, fmt.Errorf("engine: create: total %d: %w", terms.TotalUnits, domain.ErrInvalidAmount)
	}
	if terms.MinFillUnits < 0 || terms.MinFillUnits > terms.TotalUnits {
		return domain.Order{}, fmt.Errorf("engine: create: min fill %d for total %d: %w",
			terms.MinFillUnits, terms.TotalUnits, domain.ErrInvalidAmount)
	}
	if terms.Terms.PriceTicks <= 0 {
		return domain.Order{}, fmt.Errorf("engine: create: price %d: %w", terms.Terms.PriceTicks, domain.ErrInvalidAmount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	order := domain.Order{
		ID:             m.store.AllocateID(),
		Asset:          m.spec.Asset,
		Owner:          owner,
		TotalUnits:     terms.TotalUnits,
		RemainingUnits: terms.TotalUnits,
		MinFillUnits:   terms.MinFillUnits,
		Terms:          terms.Terms,
		Status:         domain.OrderStatusOpen,
		CreatedAt:      m.now().UTC(),
	}

	if err := m.strategy.Reserve(&order); err != nil {
		return domain.Order{}, fmt.Errorf("engine: create order: %w", err)
	}
	if err := m.store.Insert(order); err != nil {
		// Roll the reservation back so a defensive-check failure cannot
		// strand locked value.
		_ = m.strategy.Cancel(&order)
		return domain.Order{}, err
	}
	return order, nil
}

// FillOrder applies a fill of units against the order, gated by the
// settlement proof. Preconditions are checked in a fixed sequence — each is
// a distinct failure mode, and proof verification runs last because it is
// the most expensive check. A request that fails any precondition leaves
// the order and all balances exactly as they were.
func (m *Market) FillOrder(ctx context.Context, taker common.Address, id uint64, units int64, proof []byte) (domain.Order, domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, err := m.store.Get(id)
	if err != nil {
		return domain.Order{}, domain.Fill{}, err
	}
	if !order.Status.Fillable() {
		return domain.Order{}, domain.Fill{}, fmt.Errorf("engine: fill order %d in status %s: %w",
			id, order.Status, domain.ErrInvalidStatus)
	}
	if units <= 0 {
		return domain.Order{}, domain.Fill{}, fmt.Errorf("engine: fill %d: %w", units, domain.ErrInvalidAmount)
	}
	if units < order.MinFillUnits && !(m.spec.AllowFinalBelowMin && units == order.RemainingUnits) {
		return domain.Order{}, domain.Fill{}, fmt.Errorf("engine: fill %d below minimum %d: %w",
			units, order.MinFillUnits, domain.ErrInvalidAmount)
	}
	if units > order.RemainingUnits {
		return domain.Order{}, domain.Fill{}, fmt.Errorf("engine: fill %d exceeds remaining %d: %w",
			units, order.RemainingUnits, domain.ErrInvalidAmount)
	}

	digest := sha256.Sum256(proof)
	if _, spent := m.usedProofs[id][digest]; spent {
		return domain.Order{}, domain.Fill{}, fmt.Errorf("engine: fill order %d: proof already consumed: %w",
			id, domain.ErrInvalidProof)
	}
	if err := m.verifier.Verify(ctx, proof, order.Terms, units); err != nil {
		return domain.Order{}, domain.Fill{}, fmt.Errorf("engine: fill order %d: %w: %v",
			id, domain.ErrInvalidProof, err)
	}

	// All preconditions passed; apply the transition to a copy, settle, and
	// only then write back. A settlement failure leaves the store untouched.
	now := m.now().UTC()
	order.RemainingUnits -= units
	if order.RemainingUnits == 0 {
		order.Status = domain.OrderStatusFilled
		order.FilledAt = &now
	} else {
		order.Status = domain.OrderStatusPartiallyFilled
	}

	if err := m.strategy.Settle(&order, taker, units); err != nil {
		return domain.Order{}, domain.Fill{}, fmt.Errorf("engine: fill order %d: %w", id, err)
	}
	if err := m.store.Put(order); err != nil {
		return domain.Order{}, domain.Fill{}, err
	}

	if m.usedProofs[id] == nil {
		m.usedProofs[id] = make(map[[32]byte]struct{})
	}
	m.usedProofs[id][digest] = struct{}{}

	fill := domain.Fill{
		ID:          uuid.New().String(),
		Asset:       m.spec.Asset,
		OrderID:     id,
		Taker:       taker,
		Units:       units,
		FiatDue:     order.Terms.FiatDue(units),
		ProofDigest: digest[:],
		CreatedAt:   now,
	}
	return order, fill, nil
}

// CancelOrder moves the order to Cancelled and returns its escrow backing
// to the pool. Only the owner may cancel, and only from a non-terminal
// status. RemainingUnits keeps its last value for audit; the terminal
// status guard makes it unfillable.
func (m *Market) CancelOrder(caller common.Address, id uint64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, err := m.store.Get(id)
	if err != nil {
		return domain.Order{}, err
	}
	if caller != order.Owner {
		return domain.Order{}, fmt.Errorf("engine: cancel order %d by %s: %w", id, caller.Hex(), domain.ErrUnauthorized)
	}
	if !order.Status.Fillable() {
		return domain.Order{}, fmt.Errorf("engine: cancel order %d in status %s: %w",
			id, order.Status, domain.ErrInvalidStatus)
	}

	now := m.now().UTC()
	if err := m.strategy.Cancel(&order); err != nil {
		return domain.Order{}, fmt.Errorf("engine: cancel order %d: %w", id, err)
	}
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now

	if err := m.store.Put(order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// GetOrder returns the order with the given id.
func (m *Market) GetOrder(id uint64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Get(id)
}

// OrdersFor returns the ids created by the account, in creation order. It
// never fails; unknown accounts get an empty slice.
func (m *Market) OrdersFor(account common.Address) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.OrdersFor(account)
}

// LockedTotal sums LockedUnits across all non-terminal orders.
func (m *Market) LockedTotal() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	m.store.Each(func(o domain.Order) {
		if !o.Status.Terminal() {
			sum += o.LockedUnits
		}
	})
	return sum
}
