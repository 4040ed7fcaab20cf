package orderbook

import (
	"sync"
	"sync/atomic"
)

// PriceLevel is a FIFO queue at a single price.
// The list is guarded by mu; count and qty may be read without it.
type PriceLevel struct {
	price int64
	side  Side

	mu   sync.Mutex
	head *Order
	tail *Order
	dead bool

	count atomic.Int32
	qty   atomic.Int64
}

func newPriceLevel(side Side, price int64) *PriceLevel {
	return &PriceLevel{side: side, price: price}
}

func (p *PriceLevel) Price() int64 {
	return p.price
}

func (p *PriceLevel) Side() Side {
	return p.side
}

// Len is the number of linked orders, including ones that just turned terminal.
func (p *PriceLevel) Len() int {
	return int(p.count.Load())
}

// Quantity is the approximate resting quantity at this price.
func (p *PriceLevel) Quantity() int64 {
	return p.qty.Load()
}

func (p *PriceLevel) Empty() bool {
	return p.count.Load() == 0
}

// Orders returns the linked orders in arrival order.
func (p *PriceLevel) Orders() []*Order {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*Order, 0, p.count.Load())
	for o := p.head; o != nil; o = o.next {
		out = append(out, o)
	}
	return out
}

// ---- locked helpers ----

func (p *PriceLevel) enqueueLocked(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	o.level.Store(p)
	p.count.Add(1)
	p.qty.Add(o.Remaining())
}

func (p *PriceLevel) unlinkLocked(o *Order) {
	if o.level.Load() != p {
		return
	}
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next = nil
	o.prev = nil
	o.level.Store(nil)

	p.count.Add(-1)
	p.qty.Add(-o.Remaining())
}

// takerLocked returns the first order here that may take liquidity.
// busy reports a candidate skipped only because another matcher held it.
func (p *PriceLevel) takerLocked() (taker *Order, busy bool) {
	for o := p.head; o != nil; o = o.next {
		if o.Directive == MakerOnly {
			continue
		}
		st, claimed, _ := unpack(o.state.Load())
		if !st.Resting() {
			continue
		}
		if claimed {
			busy = true
			continue
		}
		return o, busy
	}
	return nil, busy
}
