package orderbook

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/zhangyunhao116/skipmap"

	"apex/infra/sequence"
)

// DefaultMaxRetries bounds every spin in the book.
const DefaultMaxRetries = 1024

// Book is a concurrent two-sided order book for one instrument.
// There is no book-wide lock: sides are skip lists, each level has its
// own mutex and each order its own state word.
type Book struct {
	bids *bookSide
	asks *bookSide

	// Terminal orders stay indexed so late cancels report ErrAlreadyTerminal
	// and reused IDs stay rejected until Purge.
	index *skipmap.FuncMap[uuid.UUID, *Order]

	arrivals *sequence.Sequencer
	trades   *sequence.Sequencer
	events   *sequence.Sequencer

	syncer  Syncer
	retries int
}

type Option func(*Book)

func WithSyncer(s Syncer) Option {
	return func(b *Book) {
		if s != nil {
			b.syncer = s
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(b *Book) {
		if n > 0 {
			b.retries = n
		}
	}
}

// WithEventSequencer resumes event numbering, e.g. after a restart.
func WithEventSequencer(seq *sequence.Sequencer) Option {
	return func(b *Book) {
		if seq != nil {
			b.events = seq
		}
	}
}

func NewBook(opts ...Option) *Book {
	b := &Book{
		bids: newBookSide(Buy),
		asks: newBookSide(Sell),
		index: skipmap.NewFunc[uuid.UUID, *Order](func(a, b uuid.UUID) bool {
			return bytes.Compare(a[:], b[:]) < 0
		}),
		arrivals: sequence.New(0),
		trades:   sequence.New(0),
		events:   sequence.New(0),
		syncer:   NopSyncer{},
		retries:  DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Book) side(s Side) *bookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) MaxRetries() int {
	return b.retries
}

// LastEventSeq is the sequence of the most recent event.
func (b *Book) LastEventSeq() uint64 {
	return b.events.Current()
}

func (b *Book) emit(ev Event) {
	ev.Seq = b.events.Next()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.syncer.Notify(ev)
}

func (b *Book) emitState(kind EventKind, o *Order, delta int64) {
	v := o.View()
	b.emit(Event{
		Kind:      kind,
		OrderID:   o.ID,
		Side:      o.Side,
		Price:     v.Price,
		Delta:     delta,
		Remaining: v.Remaining,
		Quantity:  o.Quantity,
		Directive: o.Directive,
		Status:    v.Status,
		Reason:    v.Reason,
		OrderSeq:  v.Seq,
	})
}

//
// ──────────────────────────────────────────────────────────
// Submission
// ──────────────────────────────────────────────────────────
//

// Admit reserves o's ID and claims o for the submitting goroutine.
// A duplicate ID rejects o.
func (b *Book) Admit(o *Order) error {
	if !o.admit() {
		return opError("admit", o.ID, ErrInvalidOrder)
	}
	if _, loaded := b.index.LoadOrStore(o.ID, o); loaded {
		o.reject(ReasonDuplicateOrderID)
		b.emitState(EventRejected, o, 0)
		return opError("admit", o.ID, ErrDuplicateOrderID)
	}
	return nil
}

// Activate moves an admitted order to Active. The claim is kept.
func (b *Book) Activate(o *Order) bool {
	return o.activate()
}

// Reject refuses an order that has not been activated.
func (b *Book) Reject(o *Order, r Reason) bool {
	if !o.reject(r) {
		return false
	}
	b.emitState(EventRejected, o, 0)
	return true
}

// Rest links a claimed order at the tail of its price level and releases it.
func (b *Book) Rest(o *Order) error {
	if err := b.link(o, EventInserted, 0); err != nil {
		return opError("rest", o.ID, err)
	}
	o.release()
	return nil
}

// Expire ends a claimed order that will not rest, cancelling any remainder
// with r. It returns the final status and the cancelled quantity.
func (b *Book) Expire(o *Order, r Reason) (Status, int64) {
	st, rem := o.finishHeld(r)
	if st == Cancelled {
		b.emitState(EventExpired, o, -rem)
	}
	return st, rem
}

// Insert rests a fresh order without matching it. A crossed book that
// results is resolved by the matching engine's sweep.
func (b *Book) Insert(o *Order) error {
	if err := b.Admit(o); err != nil {
		return err
	}
	o.activate()
	if err := b.Rest(o); err != nil {
		b.Expire(o, ReasonNone)
		return err
	}
	return nil
}

func (b *Book) link(o *Order, kind EventKind, oldPrice int64) error {
	s := b.side(o.Side)
	price := o.Price()
	for i := 0; i < b.retries; i++ {
		lvl := s.levelFor(price)
		lvl.mu.Lock()
		if lvl.dead {
			lvl.mu.Unlock()
			continue
		}
		o.seq.Store(b.arrivals.Next())
		lvl.enqueueLocked(o)

		if kind != 0 {
			v := o.View()
			b.emit(Event{
				Kind:      kind,
				OrderID:   o.ID,
				Side:      o.Side,
				Price:     price,
				OldPrice:  oldPrice,
				Delta:     v.Remaining,
				Remaining: v.Remaining,
				Quantity:  o.Quantity,
				Directive: o.Directive,
				Status:    v.Status,
				OrderSeq:  v.Seq,
			})
		}
		lvl.mu.Unlock()
		return nil
	}
	return ErrContentionExhausted
}

// detach unlinks o from whatever level holds it, emitting kind if set.
func (b *Book) detach(o *Order, kind EventKind) {
	lvl := o.level.Load()
	if lvl == nil {
		return
	}
	lvl.mu.Lock()
	defer lvl.mu.Unlock()

	if o.level.Load() != lvl {
		return
	}
	lvl.unlinkLocked(o)
	if kind != 0 {
		b.emitState(kind, o, -o.Remaining())
	}
	b.side(lvl.side).pruneLocked(lvl)
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// Remove cancels a resting order and detaches it from its level.
func (b *Book) Remove(id uuid.UUID) (*Order, error) {
	o, ok := b.index.Load(id)
	if !ok {
		return nil, opError("remove", id, ErrNotFound)
	}
	if _, err := o.cancel(ReasonUserCancelled, b.retries); err != nil {
		return o, opError("remove", id, err)
	}
	b.detach(o, EventRemoved)
	return o, nil
}

// UpdatePrice moves a resting limit order to price at the back of the queue.
func (b *Book) UpdatePrice(id uuid.UUID, price int64) error {
	o, ok := b.index.Load(id)
	if !ok {
		return opError("update", id, ErrNotFound)
	}
	if o.Status().Terminal() {
		return opError("update", id, ErrAlreadyTerminal)
	}
	if o.Type != Limit || price <= 0 {
		return opError("update", id, ErrInvalidOrder)
	}
	if err := o.claim(b.retries); err != nil {
		return opError("update", id, err)
	}

	b.detach(o, 0)
	old := o.price.Swap(price)
	if err := b.link(o, EventRepriced, old); err != nil {
		// the order is off the book and cannot be relinked
		st, rem := o.finishHeld(ReasonNone)
		if st == Cancelled {
			b.emitState(EventRemoved, o, -rem)
		}
		return opError("update", id, err)
	}
	o.release()
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// Best returns the best non-empty level on side, or nil.
func (b *Book) Best(side Side) *PriceLevel {
	return b.side(side).best()
}

func (b *Book) BestPrice(side Side) (int64, bool) {
	lvl := b.Best(side)
	if lvl == nil {
		return 0, false
	}
	return lvl.price, true
}

// Level returns the level at price if one exists.
func (b *Book) Level(side Side, price int64) (*PriceLevel, bool) {
	return b.side(side).find(price)
}

// Levels visits non-empty levels on side best first until fn returns false.
func (b *Book) Levels(side Side, fn func(*PriceLevel) bool) {
	b.side(side).walk(fn)
}

// LevelView is an aggregated price level.
type LevelView struct {
	Price    int64
	Quantity int64
	Orders   int
}

// Depth returns up to n aggregated levels on side, best first. n <= 0 means all.
func (b *Book) Depth(side Side, n int) []LevelView {
	out := make([]LevelView, 0, 16)
	b.Levels(side, func(lvl *PriceLevel) bool {
		out = append(out, LevelView{
			Price:    lvl.price,
			Quantity: lvl.Quantity(),
			Orders:   lvl.Len(),
		})
		return n <= 0 || len(out) < n
	})
	return out
}

// Walk visits resting orders on side in priority order until fn returns false.
func (b *Book) Walk(side Side, fn func(*Order) bool) {
	b.Levels(side, func(lvl *PriceLevel) bool {
		for _, o := range lvl.Orders() {
			if !o.Status().Resting() {
				continue
			}
			if !fn(o) {
				return false
			}
		}
		return true
	})
}

// Order looks up an order by ID. Terminal orders are found until purged.
func (b *Book) Order(id uuid.UUID) (*Order, bool) {
	return b.index.Load(id)
}

// Len is the number of non-terminal orders known to the book.
func (b *Book) Len() int {
	n := 0
	b.index.Range(func(_ uuid.UUID, o *Order) bool {
		if !o.Status().Terminal() {
			n++
		}
		return true
	})
	return n
}

// Purge drops terminal orders from the index and returns how many went.
func (b *Book) Purge() int {
	n := 0
	b.index.Range(func(id uuid.UUID, o *Order) bool {
		if o.Status().Terminal() && o.level.Load() == nil {
			b.index.Delete(id)
			n++
		}
		return true
	})
	return n
}

// LevelCount is the number of price levels on side, including ones being pruned.
func (b *Book) LevelCount(side Side) int {
	return b.side(side).depth()
}
