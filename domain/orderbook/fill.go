package orderbook

import "time"

// Matching primitives. The taker passed to each of them must be claimed
// by the caller (see Admit and ClaimCrossed) and qty must not exceed its
// remaining quantity.

func (b *Book) trade(maker, taker *Order, price, qty int64) Trade {
	return Trade{
		Seq:       b.trades.Next(),
		MakerID:   maker.ID,
		TakerID:   taker.ID,
		TakerSide: taker.Side,
		Price:     price,
		Quantity:  qty,
		Time:      time.Now(),
	}
}

func (b *Book) emitFill(o, counter *Order, t Trade, st Status, maker bool) {
	b.emit(Event{
		Kind:         EventFilled,
		OrderID:      o.ID,
		Side:         o.Side,
		Price:        t.Price,
		Delta:        t.Quantity,
		Remaining:    o.Remaining(),
		Quantity:     o.Quantity,
		Directive:    o.Directive,
		Status:       st,
		OrderSeq:     o.Seq(),
		Time:         t.Time,
		Counterparty: counter.ID,
		TradeSeq:     t.Seq,
		Maker:        maker,
	})
}

// settleLocked books one fill of q between a maker resting at lvl and the
// taker. The caller holds lvl.mu.
func (b *Book) settleLocked(lvl *PriceLevel, maker, taker *Order, q int64, makerStatus Status, trades []Trade) []Trade {
	_, takerStatus, _ := taker.fillHeld(q, false)

	lvl.qty.Add(-q)
	if tl := taker.level.Load(); tl != nil {
		tl.qty.Add(-q)
	}

	t := b.trade(maker, taker, lvl.price, q)
	b.emitFill(maker, taker, t, makerStatus, true)
	b.emitFill(taker, maker, t, takerStatus, false)

	if makerStatus == Filled {
		lvl.unlinkLocked(maker)
	}
	return append(trades, t)
}

// FillLevel consumes up to qty from lvl in arrival order on behalf of taker.
// Claimed and terminal makers are skipped. It returns the trades appended
// to trades and the quantity filled.
func (b *Book) FillLevel(lvl *PriceLevel, taker *Order, qty int64, trades []Trade) ([]Trade, int64) {
	lvl.mu.Lock()
	defer lvl.mu.Unlock()

	if lvl.dead {
		return trades, 0
	}

	var filled int64
	for o := lvl.head; o != nil && filled < qty; {
		next := o.next
		q, st, ok := o.fillMaker(qty-filled, b.retries)
		if ok {
			trades = b.settleLocked(lvl, o, taker, q, st, trades)
			filled += q
		}
		o = next
	}
	b.side(lvl.side).pruneLocked(lvl)
	return trades, filled
}

// Reserve claims makers at lvl in arrival order until their combined
// remaining quantity reaches need. Claimed makers are appended to held.
func (b *Book) Reserve(lvl *PriceLevel, need int64, held []*Order) ([]*Order, int64) {
	lvl.mu.Lock()
	defer lvl.mu.Unlock()

	var got int64
	for o := lvl.head; o != nil && got < need; o = o.next {
		if _, ok := o.tryClaim(); ok {
			held = append(held, o)
			got += o.Remaining()
		}
	}
	return held, got
}

// Release drops claims taken by Reserve.
func (b *Book) Release(held []*Order) {
	for _, o := range held {
		o.release()
	}
}

// Commit fills taker for qty against makers claimed by Reserve, in order,
// releasing every claim. Claimed makers cannot be depleted by anyone else,
// so the returned quantity equals qty when the reservation covered it.
func (b *Book) Commit(taker *Order, held []*Order, qty int64, trades []Trade) ([]Trade, int64) {
	var filled int64
	for _, m := range held {
		if filled >= qty {
			m.release()
			continue
		}
		lvl := m.level.Load()
		lvl.mu.Lock()
		q, st, ok := m.fillHeld(qty-filled, true)
		if ok {
			trades = b.settleLocked(lvl, m, taker, q, st, trades)
			filled += q
		} else {
			m.release()
		}
		b.side(lvl.side).pruneLocked(lvl)
		lvl.mu.Unlock()
	}
	return trades, filled
}

// ClaimCrossed inspects the crossed part of the book. When it is crossed
// it claims a taker and returns it: of the earliest takers on each side,
// the later-arrived one. Maker-only orders are never takers, so a crossed
// book whose crossing levels hold only maker-only orders on both sides
// reports crossed as false. A nil taker with crossed set means the
// candidates were busy and the caller may retry.
func (b *Book) ClaimCrossed() (taker *Order, crossed bool) {
	bid, ask := b.bids.best(), b.asks.best()
	if bid == nil || ask == nil || bid.price < ask.price {
		return nil, false
	}

	bo, bbusy := b.firstTaker(Buy, ask.price)
	ao, abusy := b.firstTaker(Sell, bid.price)

	switch {
	case bo == nil && ao == nil:
		return nil, bbusy || abusy
	case bo == nil:
		taker = ao
	case ao == nil:
		taker = bo
	case bo.Seq() > ao.Seq():
		taker = bo
	default:
		taker = ao
	}
	if _, ok := taker.tryClaim(); !ok {
		return nil, true
	}
	return taker, true
}

// firstTaker scans the levels of side that cross bound, best first, for
// an order allowed to take.
func (b *Book) firstTaker(side Side, bound int64) (taker *Order, busy bool) {
	b.side(side).walk(func(lvl *PriceLevel) bool {
		if !Crosses(side, lvl.price, bound) {
			return false
		}
		lvl.mu.Lock()
		o, wait := lvl.takerLocked()
		lvl.mu.Unlock()
		busy = busy || wait
		taker = o
		return o == nil
	})
	return taker, busy
}

// Settle finishes a resting taker claimed by ClaimCrossed: a filled taker
// leaves the book, anything else keeps its queue position.
func (b *Book) Settle(taker *Order) {
	if taker.Status() == Filled {
		b.detach(taker, 0)
	}
	taker.release()
}
