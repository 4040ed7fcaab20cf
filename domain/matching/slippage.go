package matching

import (
	"github.com/shopspring/decimal"

	"apex/domain/orderbook"
)

var bpsScale = decimal.New(1, -4)

// SlippageLimit is the worst price a market taker on side may reach when
// the band is anchored at ref. The band is rounded toward ref.
func SlippageLimit(side orderbook.Side, ref int64, bps uint32) int64 {
	delta := decimal.NewFromInt(ref).
		Mul(decimal.NewFromInt(int64(bps))).
		Mul(bpsScale).
		Floor().
		IntPart()
	if side == orderbook.Buy {
		return ref + delta
	}
	return ref - delta
}
