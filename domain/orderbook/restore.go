package orderbook

// Restore rests o with remaining quantity left and emits nothing. It rebuilds
// a book from a snapshot or a journal before the book takes traffic.
//
// A non-zero seq is o's original arrival sequence. Sequences must be
// restored in increasing order; later arrivals are numbered after the
// highest one restored. A zero seq draws a fresh sequence.
func (b *Book) Restore(o *Order, remaining int64, seq uint64) error {
	if o.Type != Limit || o.Price() <= 0 || remaining <= 0 || remaining > clampQty(o.Quantity) {
		return opError("restore", o.ID, ErrInvalidOrder)
	}
	if seq != 0 && seq <= b.arrivals.Current() {
		return opError("restore", o.ID, ErrInvalidOrder)
	}
	if !o.admit() {
		return opError("restore", o.ID, ErrInvalidOrder)
	}
	if _, loaded := b.index.LoadOrStore(o.ID, o); loaded {
		o.reject(ReasonDuplicateOrderID)
		return opError("restore", o.ID, ErrDuplicateOrderID)
	}

	st := Active
	if remaining < o.Quantity {
		st = PartiallyFilled
	}
	o.state.Store(pack(st, true, remaining))

	if seq != 0 {
		// link draws the next arrival number
		b.arrivals.AdvanceTo(seq - 1)
	}
	if err := b.link(o, 0, 0); err != nil {
		o.finishHeld(ReasonNone)
		return opError("restore", o.ID, err)
	}
	o.release()
	return nil
}
