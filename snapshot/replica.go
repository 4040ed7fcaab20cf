package snapshot

import (
	"sync"
	"time"

	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/google/uuid"

	"apex/domain/orderbook"
)

// Replica is an event-sourced copy of the resting book. It applies events
// in the order it receives them and keeps absolute state from each event,
// so applying an event twice is harmless. It can run as a live syncer or
// be fed from the journal.
type Replica struct {
	mu      sync.Mutex
	bids    *rbt.Tree[int64, *replicaLevel]
	asks    *rbt.Tree[int64, *replicaLevel]
	orders  map[uuid.UUID]*OrderEntry
	lastSeq uint64
}

type replicaLevel struct {
	qty   int64
	queue *rbt.Tree[uint64, *OrderEntry]
}

func descending(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func ascending(a, b int64) int {
	return -descending(a, b)
}

func bySeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func NewReplica() *Replica {
	return &Replica{
		bids:   rbt.NewWith[int64, *replicaLevel](descending),
		asks:   rbt.NewWith[int64, *replicaLevel](ascending),
		orders: make(map[uuid.UUID]*OrderEntry),
	}
}

// Load replaces the replica's contents with s.
func (r *Replica) Load(s *Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bids.Clear()
	r.asks.Clear()
	clear(r.orders)
	for _, e := range s.Orders {
		e := e
		r.add(&e)
	}
	r.lastSeq = s.Seq
}

func (r *Replica) Notify(ev orderbook.Event) {
	r.Apply(ev)
}

func (r *Replica) Apply(ev orderbook.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Seq > r.lastSeq {
		r.lastSeq = ev.Seq
	}

	switch ev.Kind {
	case orderbook.EventInserted, orderbook.EventRepriced:
		r.remove(ev.OrderID)
		r.add(&OrderEntry{
			ID:        ev.OrderID,
			Side:      ev.Side,
			Directive: ev.Directive,
			Price:     ev.Price,
			Quantity:  ev.Quantity,
			Remaining: ev.Remaining,
			Seq:       ev.OrderSeq,
		})

	case orderbook.EventFilled:
		e, ok := r.orders[ev.OrderID]
		if !ok {
			// a taker that never rested
			return
		}
		if ev.Status.Terminal() || ev.Remaining <= 0 {
			r.remove(ev.OrderID)
			return
		}
		if lvl, ok := r.tree(e.Side).Get(e.Price); ok {
			lvl.qty += ev.Remaining - e.Remaining
		}
		e.Remaining = ev.Remaining

	case orderbook.EventRemoved, orderbook.EventExpired:
		r.remove(ev.OrderID)
	}
}

func (r *Replica) tree(side orderbook.Side) *rbt.Tree[int64, *replicaLevel] {
	if side == orderbook.Buy {
		return r.bids
	}
	return r.asks
}

func (r *Replica) add(e *OrderEntry) {
	t := r.tree(e.Side)
	lvl, ok := t.Get(e.Price)
	if !ok {
		lvl = &replicaLevel{queue: rbt.NewWith[uint64, *OrderEntry](bySeq)}
		t.Put(e.Price, lvl)
	}
	lvl.queue.Put(e.Seq, e)
	lvl.qty += e.Remaining
	r.orders[e.ID] = e
}

func (r *Replica) remove(id uuid.UUID) {
	e, ok := r.orders[id]
	if !ok {
		return
	}
	delete(r.orders, id)

	t := r.tree(e.Side)
	lvl, ok := t.Get(e.Price)
	if !ok {
		return
	}
	lvl.queue.Remove(e.Seq)
	lvl.qty -= e.Remaining
	if lvl.queue.Empty() {
		t.Remove(e.Price)
	}
}

// LastSeq is the highest event sequence applied.
func (r *Replica) LastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

func (r *Replica) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *Replica) Order(id uuid.UUID) (OrderEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.orders[id]
	if !ok {
		return OrderEntry{}, false
	}
	return *e, true
}

func (r *Replica) Best(side orderbook.Side) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node := r.tree(side).Left()
	if node == nil {
		return 0, false
	}
	return node.Key, true
}

// Depth returns up to n levels on side, best first. n <= 0 means all.
func (r *Replica) Depth(side orderbook.Side, n int) []orderbook.LevelView {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []orderbook.LevelView
	it := r.tree(side).Iterator()
	for it.Next() {
		lvl := it.Value()
		out = append(out, orderbook.LevelView{
			Price:    it.Key(),
			Quantity: lvl.qty,
			Orders:   lvl.queue.Size(),
		})
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// Snapshot captures the replica, bids then asks, each level in arrival order.
func (r *Replica) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Snapshot{
		Seq:     r.lastSeq,
		Created: time.Now().UTC(),
		Orders:  make([]OrderEntry, 0, len(r.orders)),
	}
	for _, t := range []*rbt.Tree[int64, *replicaLevel]{r.bids, r.asks} {
		it := t.Iterator()
		for it.Next() {
			q := it.Value().queue.Iterator()
			for q.Next() {
				s.Orders = append(s.Orders, *q.Value())
			}
		}
	}
	return s
}
