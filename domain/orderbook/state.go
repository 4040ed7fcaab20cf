package orderbook

import "runtime"

// State word layout:
//
//	[63..60] status | [59] claim | [58..0] remaining quantity
//
// A claimed word may only be changed by the claim holder.
const (
	statusShift = 60
	claimBit    = uint64(1) << 59
	qtyMask     = claimBit - 1
)

// MaxQuantity is the largest quantity an order can carry.
const MaxQuantity = int64(qtyMask)

func pack(st Status, claimed bool, rem int64) uint64 {
	w := uint64(st)<<statusShift | uint64(rem)&qtyMask
	if claimed {
		w |= claimBit
	}
	return w
}

func unpack(w uint64) (Status, bool, int64) {
	return Status(w >> statusShift), w&claimBit != 0, int64(w & qtyMask)
}

func afterFill(rem int64) Status {
	if rem == 0 {
		return Filled
	}
	return PartiallyFilled
}

func (o *Order) setReason(r Reason) {
	o.reason.CompareAndSwap(uint32(ReasonNone), uint32(r))
}

// admit claims a freshly created order for its submitter.
func (o *Order) admit() bool {
	w := o.state.Load()
	st, claimed, rem := unpack(w)
	if st != Created || claimed {
		return false
	}
	return o.state.CompareAndSwap(w, pack(Created, true, rem))
}

// activate moves a claimed Created order to Active, keeping the claim.
func (o *Order) activate() bool {
	w := o.state.Load()
	st, claimed, rem := unpack(w)
	if st != Created || !claimed {
		return false
	}
	return o.state.CompareAndSwap(w, pack(Active, true, rem))
}

// reject moves a Created order to Rejected and drops any claim.
func (o *Order) reject(r Reason) bool {
	for {
		w := o.state.Load()
		st, _, rem := unpack(w)
		if st != Created {
			return false
		}
		if o.state.CompareAndSwap(w, pack(Rejected, false, rem)) {
			o.setReason(r)
			return true
		}
	}
}

// tryClaim claims a resting, unclaimed order. It never spins.
func (o *Order) tryClaim() (Status, bool) {
	w := o.state.Load()
	st, claimed, rem := unpack(w)
	if claimed || !st.Resting() {
		return st, false
	}
	return st, o.state.CompareAndSwap(w, pack(st, true, rem))
}

// claim spins on tryClaim for at most retries attempts.
func (o *Order) claim(retries int) error {
	for i := 0; i < retries; i++ {
		st, ok := o.tryClaim()
		if ok {
			return nil
		}
		if st.Terminal() {
			return ErrAlreadyTerminal
		}
		runtime.Gosched()
	}
	return ErrContentionExhausted
}

// release drops the claim. Only the holder calls it.
func (o *Order) release() {
	for {
		w := o.state.Load()
		if w&claimBit == 0 {
			return
		}
		if o.state.CompareAndSwap(w, w&^claimBit) {
			return
		}
	}
}

// fillMaker takes up to q from an unclaimed resting order.
func (o *Order) fillMaker(q int64, retries int) (int64, Status, bool) {
	for i := 0; i < retries; i++ {
		w := o.state.Load()
		st, claimed, rem := unpack(w)
		if claimed || !st.Resting() || rem == 0 {
			return 0, st, false
		}
		take := min(q, rem)
		next := afterFill(rem - take)
		if o.state.CompareAndSwap(w, pack(next, false, rem-take)) {
			return take, next, true
		}
	}
	return 0, o.Status(), false
}

// fillHeld takes q from an order the caller has claimed.
// If release is set the claim is dropped in the same swap.
func (o *Order) fillHeld(q int64, release bool) (int64, Status, bool) {
	for {
		w := o.state.Load()
		st, claimed, rem := unpack(w)
		if !claimed || !st.Resting() || rem == 0 {
			return 0, st, false
		}
		take := min(q, rem)
		next := afterFill(rem - take)
		if o.state.CompareAndSwap(w, pack(next, claimed && !release, rem-take)) {
			return take, next, true
		}
	}
}

// cancel moves a resting order to Cancelled, waiting out claims for at
// most retries attempts. It returns the cancelled remainder.
func (o *Order) cancel(r Reason, retries int) (int64, error) {
	for i := 0; i < retries; i++ {
		w := o.state.Load()
		st, claimed, rem := unpack(w)
		if st.Terminal() {
			return 0, ErrAlreadyTerminal
		}
		if claimed || !st.Resting() {
			runtime.Gosched()
			continue
		}
		if o.state.CompareAndSwap(w, pack(Cancelled, false, rem)) {
			o.setReason(r)
			return rem, nil
		}
	}
	return 0, ErrContentionExhausted
}

// finishHeld ends a claimed order that will not rest. A remainder is
// cancelled with r; a filled order keeps its status.
func (o *Order) finishHeld(r Reason) (Status, int64) {
	for {
		w := o.state.Load()
		st, _, rem := unpack(w)
		next := st
		if st.Resting() {
			next = Cancelled
		}
		if o.state.CompareAndSwap(w, pack(next, false, rem)) {
			if next == Cancelled {
				o.setReason(r)
			}
			return next, rem
		}
	}
}
