package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"apex/domain/orderbook"
)

// Event mirrors orderbook.Event. It is the payload of journal records,
// outbox entries and event stream messages.
type Event orderbook.Event

func (e *Event) AppendWire(b []byte) []byte {
	b = appendUint(b, 1, e.Seq)
	b = appendUint(b, 2, uint64(e.Kind))
	b = appendUUID(b, 3, e.OrderID)
	b = appendUint(b, 4, uint64(e.Side))
	b = appendInt(b, 5, e.Price)
	b = appendInt(b, 6, e.OldPrice)
	b = appendInt(b, 7, e.Delta)
	b = appendInt(b, 8, e.Remaining)
	b = appendUint(b, 9, uint64(e.Status))
	b = appendUint(b, 10, uint64(e.Reason))
	b = appendUint(b, 11, e.OrderSeq)
	b = appendTime(b, 12, e.Time)
	b = appendUUID(b, 13, e.Counterparty)
	b = appendUint(b, 14, e.TradeSeq)
	b = appendBool(b, 15, e.Maker)
	b = appendInt(b, 16, e.Quantity)
	return appendUint(b, 17, uint64(e.Directive))
}

func (e *Event) UnmarshalWire(b []byte) error {
	*e = Event{}
	return decode(b, func(num protowire.Number, f field) (err error) {
		switch num {
		case 1:
			e.Seq = f.u
		case 2:
			e.Kind = orderbook.EventKind(f.u)
		case 3:
			e.OrderID, err = f.uuid()
		case 4:
			e.Side = orderbook.Side(f.u)
		case 5:
			e.Price = f.int64()
		case 6:
			e.OldPrice = f.int64()
		case 7:
			e.Delta = f.int64()
		case 8:
			e.Remaining = f.int64()
		case 9:
			e.Status = orderbook.Status(f.u)
		case 10:
			e.Reason = orderbook.Reason(f.u)
		case 11:
			e.OrderSeq = f.u
		case 12:
			e.Time = f.time()
		case 13:
			e.Counterparty, err = f.uuid()
		case 14:
			e.TradeSeq = f.u
		case 15:
			e.Maker = f.bool()
		case 16:
			e.Quantity = f.int64()
		case 17:
			e.Directive = orderbook.Directive(f.u)
		}
		return err
	})
}

// MarshalEvent encodes a domain event.
func MarshalEvent(ev orderbook.Event) []byte {
	return (*Event)(&ev).AppendWire(nil)
}

// UnmarshalEvent decodes a payload written by MarshalEvent.
func UnmarshalEvent(b []byte) (orderbook.Event, error) {
	var e Event
	if err := e.UnmarshalWire(b); err != nil {
		return orderbook.Event{}, err
	}
	return orderbook.Event(e), nil
}
