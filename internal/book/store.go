// Package book implements the order store for a single market: identifier
// allocation and indexed lookup, with no business rules. Callers are
// expected to serialize access; the lifecycle engine holds its market lock
// around every use.
package book

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

// Store maps order id to Order and keeps a secondary index from owner to
// the ids it created, in insertion order. Orders are never deleted;
// cancelled and filled orders remain queryable for history.
type Store struct {
	orders     map[uint64]domain.Order
	ownerIndex map[common.Address][]uint64
	nextID     uint64
}

// NewStore creates an empty Store. The first allocated id is 1.
func NewStore() *Store {
	return &Store{
		orders:     make(map[uint64]domain.Order),
		ownerIndex: make(map[common.Address][]uint64),
		nextID:     1,
	}
}

// AllocateID returns the next order id and increments the counter. Ids are
// strictly increasing and never reused, even after cancellation.
func (s *Store) AllocateID() uint64 {
	id := s.nextID
	s.nextID++
	return id
}

// Insert adds the order and appends its id to the owner index. Returns
// ErrDuplicateOrder if the id is already present; unreachable under
// monotonic allocation, kept as a defensive check.
func (s *Store) Insert(order domain.Order) error {
	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("book: insert order %d: %w", order.ID, domain.ErrDuplicateOrder)
	}
	s.orders[order.ID] = order
	s.ownerIndex[order.Owner] = append(s.ownerIndex[order.Owner], order.ID)
	return nil
}

// Get returns a copy of the order with the given id.
func (s *Store) Get(id uint64) (domain.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("book: order %d: %w", id, domain.ErrOrderNotFound)
	}
	return order, nil
}

// Put writes back a mutated order. The id must already exist.
func (s *Store) Put(order domain.Order) error {
	if _, ok := s.orders[order.ID]; !ok {
		return fmt.Errorf("book: put order %d: %w", order.ID, domain.ErrOrderNotFound)
	}
	s.orders[order.ID] = order
	return nil
}

// OrdersFor returns the ids created by the account, in creation order.
// Accounts that never created an order get an empty slice.
func (s *Store) OrdersFor(account common.Address) []uint64 {
	ids := s.ownerIndex[account]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// Len returns the number of stored orders.
func (s *Store) Len() int {
	return len(s.orders)
}

// Each calls fn for every stored order. Iteration order is unspecified.
func (s *Store) Each(fn func(domain.Order)) {
	for _, o := range s.orders {
		fn(o)
	}
}
