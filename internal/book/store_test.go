package book

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

var owner = common.HexToAddress("0x0000000000000000000000000000000000000a01")

func TestAllocateIDMonotonic(t *testing.T) {
	s := NewStore()
	prev := uint64(0)
	for i := 0; i < 100; i++ {
		id := s.AllocateID()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
	if prev != 100 {
		t.Fatalf("last id = %d, want 100", prev)
	}
}

func TestInsertGetPut(t *testing.T) {
	s := NewStore()
	order := domain.Order{
		ID:             s.AllocateID(),
		Owner:          owner,
		TotalUnits:     10,
		RemainingUnits: 10,
		Status:         domain.OrderStatusOpen,
	}
	if err := s.Insert(order); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Get(order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalUnits != 10 || got.Status != domain.OrderStatusOpen {
		t.Fatalf("got %+v", got)
	}

	got.RemainingUnits = 4
	got.Status = domain.OrderStatusPartiallyFilled
	if err := s.Put(got); err != nil {
		t.Fatalf("put: %v", err)
	}
	again, err := s.Get(order.ID)
	if err != nil {
		t.Fatalf("get after put: %v", err)
	}
	if again.RemainingUnits != 4 || again.Status != domain.OrderStatusPartiallyFilled {
		t.Fatalf("put not applied: %+v", again)
	}
}

func TestInsertDuplicate(t *testing.T) {
	s := NewStore()
	order := domain.Order{ID: s.AllocateID(), Owner: owner}
	if err := s.Insert(order); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(order); !errors.Is(err, domain.ErrDuplicateOrder) {
		t.Fatalf("duplicate insert = %v, want ErrDuplicateOrder", err)
	}
}

func TestGetPutUnknown(t *testing.T) {
	s := NewStore()
	if _, err := s.Get(42); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("get unknown = %v, want ErrOrderNotFound", err)
	}
	if err := s.Put(domain.Order{ID: 42}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("put unknown = %v, want ErrOrderNotFound", err)
	}
}

func TestOrdersForInsertionOrder(t *testing.T) {
	s := NewStore()
	other := common.HexToAddress("0x0000000000000000000000000000000000000b02")

	var want []uint64
	for i := 0; i < 5; i++ {
		o := domain.Order{ID: s.AllocateID(), Owner: owner}
		if err := s.Insert(o); err != nil {
			t.Fatalf("insert: %v", err)
		}
		want = append(want, o.ID)

		spacer := domain.Order{ID: s.AllocateID(), Owner: other}
		if err := s.Insert(spacer); err != nil {
			t.Fatalf("insert spacer: %v", err)
		}
	}

	got := s.OrdersFor(owner)
	if len(got) != len(want) {
		t.Fatalf("OrdersFor returned %d ids, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OrdersFor[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if ids := s.OrdersFor(common.Address{}); len(ids) != 0 {
		t.Fatalf("unknown account ids = %v, want empty", ids)
	}
}
