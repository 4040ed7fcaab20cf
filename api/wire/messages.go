package wire

import (
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"apex/domain/matching"
	"apex/domain/orderbook"
)

// CreateOrderRequest carries a client-chosen ID and the order's terms.
type CreateOrderRequest struct {
	ID    uuid.UUID
	Terms orderbook.Terms
}

// Order builds the domain order the request describes.
func (r *CreateOrderRequest) Order() *orderbook.Order {
	return orderbook.NewOrder(r.ID, r.Terms)
}

func (r *CreateOrderRequest) AppendWire(b []byte) []byte {
	b = appendUUID(b, 1, r.ID)
	b = appendUint(b, 2, uint64(r.Terms.Side))
	b = appendUint(b, 3, uint64(r.Terms.Type))
	b = appendInt(b, 4, r.Terms.Price)
	b = appendInt(b, 5, r.Terms.Quantity)
	b = appendUint(b, 6, uint64(r.Terms.Directive))
	b = appendUint(b, 7, uint64(r.Terms.TimeInForce))
	if r.Terms.Slippage != nil {
		// optional: present even when zero
		b = protowire.AppendTag(b, 8, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*r.Terms.Slippage))
	}
	return b
}

func (r *CreateOrderRequest) UnmarshalWire(b []byte) error {
	*r = CreateOrderRequest{}
	return decode(b, func(num protowire.Number, f field) (err error) {
		switch num {
		case 1:
			r.ID, err = f.uuid()
		case 2:
			r.Terms.Side = orderbook.Side(f.u)
		case 3:
			r.Terms.Type = orderbook.OrderType(f.u)
		case 4:
			r.Terms.Price = f.int64()
		case 5:
			r.Terms.Quantity = f.int64()
		case 6:
			r.Terms.Directive = orderbook.Directive(f.u)
		case 7:
			r.Terms.TimeInForce = orderbook.TimeInForce(f.u)
		case 8:
			r.Terms.Slippage = orderbook.Bps(f.uint32())
		}
		return err
	})
}

// Trade mirrors orderbook.Trade on the wire.
type Trade orderbook.Trade

func (t *Trade) AppendWire(b []byte) []byte {
	b = appendUint(b, 1, t.Seq)
	b = appendUUID(b, 2, t.MakerID)
	b = appendUUID(b, 3, t.TakerID)
	b = appendUint(b, 4, uint64(t.TakerSide))
	b = appendInt(b, 5, t.Price)
	b = appendInt(b, 6, t.Quantity)
	b = appendTime(b, 7, t.Time)
	return b
}

func (t *Trade) UnmarshalWire(b []byte) error {
	*t = Trade{}
	return decode(b, func(num protowire.Number, f field) (err error) {
		switch num {
		case 1:
			t.Seq = f.u
		case 2:
			t.MakerID, err = f.uuid()
		case 3:
			t.TakerID, err = f.uuid()
		case 4:
			t.TakerSide = orderbook.Side(f.u)
		case 5:
			t.Price = f.int64()
		case 6:
			t.Quantity = f.int64()
		case 7:
			t.Time = f.time()
		}
		return err
	})
}

func appendTrades(b []byte, num protowire.Number, trades []orderbook.Trade) []byte {
	for i := range trades {
		b = appendMessage(b, num, (*Trade)(&trades[i]))
	}
	return b
}

func decodeTrade(f field) (orderbook.Trade, error) {
	var t Trade
	err := t.UnmarshalWire(f.b)
	return orderbook.Trade(t), err
}

// Execution mirrors matching.Execution on the wire.
type Execution matching.Execution

func (e *Execution) AppendWire(b []byte) []byte {
	b = appendUUID(b, 1, e.OrderID)
	b = appendUint(b, 2, uint64(e.Status))
	b = appendUint(b, 3, uint64(e.Reason))
	b = appendInt(b, 4, e.Filled)
	b = appendInt(b, 5, e.Remaining)
	return appendTrades(b, 6, e.Trades)
}

func (e *Execution) UnmarshalWire(b []byte) error {
	*e = Execution{}
	return decode(b, func(num protowire.Number, f field) (err error) {
		switch num {
		case 1:
			e.OrderID, err = f.uuid()
		case 2:
			e.Status = orderbook.Status(f.u)
		case 3:
			e.Reason = orderbook.Reason(f.u)
		case 4:
			e.Filled = f.int64()
		case 5:
			e.Remaining = f.int64()
		case 6:
			var t orderbook.Trade
			if t, err = decodeTrade(f); err == nil {
				e.Trades = append(e.Trades, t)
			}
		}
		return err
	})
}

// OrderRef addresses one order. It is the body of cancel and lookup calls.
type OrderRef struct {
	ID uuid.UUID
}

func (r *OrderRef) AppendWire(b []byte) []byte {
	return appendUUID(b, 1, r.ID)
}

func (r *OrderRef) UnmarshalWire(b []byte) error {
	*r = OrderRef{}
	return decode(b, func(num protowire.Number, f field) (err error) {
		if num == 1 {
			r.ID, err = f.uuid()
		}
		return err
	})
}

type UpdateOrderRequest struct {
	ID    uuid.UUID
	Price int64
}

func (r *UpdateOrderRequest) AppendWire(b []byte) []byte {
	b = appendUUID(b, 1, r.ID)
	return appendInt(b, 2, r.Price)
}

func (r *UpdateOrderRequest) UnmarshalWire(b []byte) error {
	*r = UpdateOrderRequest{}
	return decode(b, func(num protowire.Number, f field) (err error) {
		switch num {
		case 1:
			r.ID, err = f.uuid()
		case 2:
			r.Price = f.int64()
		}
		return err
	})
}

// Empty is used for Ack and for requests without fields.
type Empty struct{}

func (*Empty) AppendWire(b []byte) []byte { return b }

func (*Empty) UnmarshalWire(b []byte) error {
	return decode(b, func(protowire.Number, field) error { return nil })
}

type MatchOrdersResponse struct {
	Trades []orderbook.Trade
}

func (r *MatchOrdersResponse) AppendWire(b []byte) []byte {
	return appendTrades(b, 1, r.Trades)
}

func (r *MatchOrdersResponse) UnmarshalWire(b []byte) error {
	*r = MatchOrdersResponse{}
	return decode(b, func(num protowire.Number, f field) error {
		if num != 1 {
			return nil
		}
		t, err := decodeTrade(f)
		if err != nil {
			return err
		}
		r.Trades = append(r.Trades, t)
		return nil
	})
}

type TopOfBookRequest struct {
	Depth uint32
}

func (r *TopOfBookRequest) AppendWire(b []byte) []byte {
	return appendUint(b, 1, uint64(r.Depth))
}

func (r *TopOfBookRequest) UnmarshalWire(b []byte) error {
	*r = TopOfBookRequest{}
	return decode(b, func(num protowire.Number, f field) error {
		if num == 1 {
			r.Depth = f.uint32()
		}
		return nil
	})
}

type Level orderbook.LevelView

func (l *Level) AppendWire(b []byte) []byte {
	b = appendInt(b, 1, l.Price)
	b = appendInt(b, 2, l.Quantity)
	return appendUint(b, 3, uint64(l.Orders))
}

func (l *Level) UnmarshalWire(b []byte) error {
	*l = Level{}
	return decode(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			l.Price = f.int64()
		case 2:
			l.Quantity = f.int64()
		case 3:
			l.Orders = int(f.uint32())
		}
		return nil
	})
}

type TopOfBook struct {
	BidPrice int64
	HasBid   bool
	AskPrice int64
	HasAsk   bool
	Bids     []orderbook.LevelView
	Asks     []orderbook.LevelView
}

func (t *TopOfBook) AppendWire(b []byte) []byte {
	b = appendInt(b, 1, t.BidPrice)
	b = appendBool(b, 2, t.HasBid)
	b = appendInt(b, 3, t.AskPrice)
	b = appendBool(b, 4, t.HasAsk)
	for i := range t.Bids {
		b = appendMessage(b, 5, (*Level)(&t.Bids[i]))
	}
	for i := range t.Asks {
		b = appendMessage(b, 6, (*Level)(&t.Asks[i]))
	}
	return b
}

func (t *TopOfBook) UnmarshalWire(b []byte) error {
	*t = TopOfBook{}
	return decode(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			t.BidPrice = f.int64()
		case 2:
			t.HasBid = f.bool()
		case 3:
			t.AskPrice = f.int64()
		case 4:
			t.HasAsk = f.bool()
		case 5, 6:
			var l Level
			if err := l.UnmarshalWire(f.b); err != nil {
				return err
			}
			if num == 5 {
				t.Bids = append(t.Bids, orderbook.LevelView(l))
			} else {
				t.Asks = append(t.Asks, orderbook.LevelView(l))
			}
		}
		return nil
	})
}

// OrderView mirrors orderbook.View on the wire.
type OrderView orderbook.View

func (v *OrderView) AppendWire(b []byte) []byte {
	b = appendUUID(b, 1, v.ID)
	b = appendUint(b, 2, uint64(v.Side))
	b = appendUint(b, 3, uint64(v.Type))
	b = appendUint(b, 4, uint64(v.Directive))
	b = appendInt(b, 5, v.Price)
	b = appendInt(b, 6, v.Quantity)
	b = appendInt(b, 7, v.Remaining)
	b = appendUint(b, 8, uint64(v.Status))
	b = appendUint(b, 9, uint64(v.Reason))
	return appendUint(b, 10, v.Seq)
}

func (v *OrderView) UnmarshalWire(b []byte) error {
	*v = OrderView{}
	return decode(b, func(num protowire.Number, f field) (err error) {
		switch num {
		case 1:
			v.ID, err = f.uuid()
		case 2:
			v.Side = orderbook.Side(f.u)
		case 3:
			v.Type = orderbook.OrderType(f.u)
		case 4:
			v.Directive = orderbook.Directive(f.u)
		case 5:
			v.Price = f.int64()
		case 6:
			v.Quantity = f.int64()
		case 7:
			v.Remaining = f.int64()
		case 8:
			v.Status = orderbook.Status(f.u)
		case 9:
			v.Reason = orderbook.Reason(f.u)
		case 10:
			v.Seq = f.u
		}
		return err
	})
}
