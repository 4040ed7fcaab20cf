package matching

import (
	"github.com/cockroachdb/errors"

	"apex/domain/orderbook"
)

// Validate checks an order's fixed terms. Failures wrap orderbook.ErrInvalidOrder.
func Validate(o *orderbook.Order) error {
	if o.Side != orderbook.Buy && o.Side != orderbook.Sell {
		return errors.Wrapf(orderbook.ErrInvalidOrder, "unknown side %d", o.Side)
	}
	if o.Quantity <= 0 || o.Quantity > orderbook.MaxQuantity {
		return errors.Wrapf(orderbook.ErrInvalidOrder, "quantity %d out of range", o.Quantity)
	}
	if o.Directive > orderbook.TakerOnly {
		return errors.Wrapf(orderbook.ErrInvalidOrder, "unknown directive %d", o.Directive)
	}

	switch o.Type {
	case orderbook.Limit:
		if o.Price() <= 0 {
			return errors.Wrapf(orderbook.ErrInvalidOrder, "limit price %d must be positive", o.Price())
		}
		if o.TimeInForce != orderbook.GoodTillCancel {
			return errors.Wrapf(orderbook.ErrInvalidOrder, "limit order with time in force %s", o.TimeInForce)
		}
		if o.Slippage != nil {
			return errors.Wrap(orderbook.ErrInvalidOrder, "slippage only applies to market orders")
		}
	case orderbook.Market:
		if o.TimeInForce != orderbook.ImmediateOrCancel && o.TimeInForce != orderbook.FillOrKill {
			return errors.Wrapf(orderbook.ErrInvalidOrder, "market order with time in force %s", o.TimeInForce)
		}
		if o.Directive == orderbook.MakerOnly {
			return errors.Wrap(orderbook.ErrInvalidOrder, "market order cannot be maker-only")
		}
		if o.Slippage != nil && *o.Slippage > orderbook.MaxSlippageBps {
			return errors.Wrapf(orderbook.ErrInvalidOrder,
				"slippage %d bps above maximum %d", *o.Slippage, orderbook.MaxSlippageBps)
		}
	default:
		return errors.Wrapf(orderbook.ErrInvalidOrder, "unknown order type %d", o.Type)
	}
	return nil
}
