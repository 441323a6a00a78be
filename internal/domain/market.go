package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketKind selects the escrow strategy for a market.
type MarketKind string

const (
	// MarketKindPooled funds orders from the market's escrow pool: creating
	// an order locks its full quantity, filling settles out of escrow.
	MarketKindPooled MarketKind = "pooled"

	// MarketKindExternal leaves funds in the seller's custody balance; a
	// fill transfers seller to buyer directly, escrow is untouched.
	MarketKindExternal MarketKind = "external"
)

// Valid reports whether k is a known market kind.
func (k MarketKind) Valid() bool {
	return k == MarketKindPooled || k == MarketKindExternal
}

// Market is the per-asset-type singleton record: one escrow pool, one order
// table, one id counter.
type Market struct {
	Asset      string
	Kind       MarketKind
	PoolFunder common.Address // pooled markets: account whose custody balance seeds the pool

	// AllowFinalBelowMin permits a final fill that exactly exhausts the
	// remaining quantity even when it is below the order's minimum.
	AllowFinalBelowMin bool

	CreatedAt time.Time
}
