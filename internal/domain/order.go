package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// unitScale is the fixed-point scale for asset quantities: 1e6 units equal
// one whole asset unit.
const unitScale = 1_000_000

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// Fillable reports whether an order in this status may accept fills.
func (s OrderStatus) Fillable() bool {
	return s == OrderStatusOpen || s == OrderStatusPartiallyFilled
}

// OrderTerms are the immutable economic terms a settlement proof must match.
type OrderTerms struct {
	PriceTicks    int64  // fiat minor units per whole asset unit
	FiatCurrency  string // ISO 4217, e.g. "USD"
	PaymentMethod string // e.g. "wise", "revolut"
}

// FiatDue returns the fiat amount (in minor units) owed for filling the
// given quantity of asset units at these terms.
func (t OrderTerms) FiatDue(units int64) *big.Int {
	due := new(big.Int).Mul(big.NewInt(units), big.NewInt(t.PriceTicks))
	return due.Div(due, big.NewInt(unitScale))
}

// Order is one resting offer to trade a quantity of asset for fiat value.
// TotalUnits, MinFillUnits, Terms, Owner and CreatedAt are immutable after
// creation; RemainingUnits is monotonically non-increasing and LockedUnits
// mirrors it for pool-funded orders.
type Order struct {
	ID             uint64
	Asset          string
	Owner          common.Address
	TotalUnits     int64
	RemainingUnits int64
	MinFillUnits   int64 // 0 means no minimum
	LockedUnits    int64 // escrowed on behalf of this order; 0 for seller-funded
	Terms          OrderTerms
	Status         OrderStatus
	CreatedAt      time.Time
	FilledAt       *time.Time
	CancelledAt    *time.Time
}

// Total returns the display quantity from fixed-point units.
func (o Order) Total() float64 {
	return float64(o.TotalUnits) / unitScale
}

// Remaining returns the display remaining quantity from fixed-point units.
func (o Order) Remaining() float64 {
	return float64(o.RemainingUnits) / unitScale
}

// Fill records one accepted fill against an order.
type Fill struct {
	ID          string // UUID
	Asset       string
	OrderID     uint64
	Taker       common.Address
	Units       int64
	FiatDue     *big.Int // minor units, per the order terms
	ProofDigest []byte   // digest of the accepted settlement proof
	CreatedAt   time.Time
}

// OrderEvent is published on the signal bus after every successful
// lifecycle transition.
type OrderEvent struct {
	Type      string         `json:"type"` // "order_created", "order_filled", "order_cancelled"
	Asset     string         `json:"asset"`
	OrderID   uint64         `json:"order_id"`
	Account   common.Address `json:"account"` // owner for create/cancel, taker for fill
	Units     int64          `json:"units"`
	Remaining int64          `json:"remaining"`
	Status    OrderStatus    `json:"status"`
	At        time.Time      `json:"at"`
}
