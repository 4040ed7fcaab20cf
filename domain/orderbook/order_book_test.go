package orderbook

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func mustInsert(t *testing.T, b *Book, side Side, price, qty int64) *Order {
	t.Helper()
	o := NewLimit(uuid.New(), side, price, qty)
	if err := b.Insert(o); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return o
}

func TestInsertBestAndFIFO(t *testing.T) {
	b := NewBook()

	if _, ok := b.BestPrice(Buy); ok {
		t.Fatal("empty book has a best bid")
	}

	mustInsert(t, b, Buy, 99, 1)
	first := mustInsert(t, b, Buy, 100, 1)
	second := mustInsert(t, b, Buy, 100, 2)
	mustInsert(t, b, Sell, 105, 1)
	mustInsert(t, b, Sell, 103, 1)

	if p, _ := b.BestPrice(Buy); p != 100 {
		t.Fatalf("best bid = %d", p)
	}
	if p, _ := b.BestPrice(Sell); p != 103 {
		t.Fatalf("best ask = %d", p)
	}

	orders := b.Best(Buy).Orders()
	if len(orders) != 2 || orders[0] != first || orders[1] != second {
		t.Fatal("level is not in arrival order")
	}
	if first.Seq() >= second.Seq() {
		t.Fatal("arrival sequence not increasing")
	}
	if first.Status() != Active {
		t.Fatalf("status = %v", first.Status())
	}
	if b.Len() != 5 {
		t.Fatalf("len = %d", b.Len())
	}
}

func TestInsertDuplicate(t *testing.T) {
	b := NewBook()
	o := mustInsert(t, b, Sell, 100, 1)

	dup := NewLimit(o.ID, Buy, 90, 1)
	err := b.Insert(dup)
	if !errors.Is(err, ErrDuplicateOrderID) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if dup.Status() != Rejected || dup.Reason() != ReasonDuplicateOrderID {
		t.Fatalf("dup status=%v reason=%v", dup.Status(), dup.Reason())
	}
	if _, ok := b.BestPrice(Buy); ok {
		t.Fatal("duplicate touched the book")
	}
	if got, _ := b.Order(o.ID); got != o {
		t.Fatal("index entry replaced")
	}
}

func TestInsertCancelRoundTrip(t *testing.T) {
	b := NewBook()
	mustInsert(t, b, Buy, 100, 5)
	mustInsert(t, b, Sell, 110, 5)

	bid, _ := b.BestPrice(Buy)
	ask, _ := b.BestPrice(Sell)

	o := mustInsert(t, b, Buy, 105, 3)
	if p, _ := b.BestPrice(Buy); p != 105 {
		t.Fatalf("best bid after insert = %d", p)
	}

	if _, err := b.Remove(o.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if p, _ := b.BestPrice(Buy); p != bid {
		t.Fatalf("best bid = %d, want %d", p, bid)
	}
	if p, _ := b.BestPrice(Sell); p != ask {
		t.Fatalf("best ask = %d, want %d", p, ask)
	}
	if _, ok := b.Level(Buy, 105); ok {
		t.Fatal("empty level not pruned")
	}
	if o.Status() != Cancelled {
		t.Fatalf("status = %v", o.Status())
	}
}

func TestRemoveErrors(t *testing.T) {
	rec := &recorder{}
	b := NewBook(WithSyncer(rec))

	if _, err := b.Remove(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id: %v", err)
	}

	o := mustInsert(t, b, Sell, 100, 1)
	if _, err := b.Remove(o.ID); err != nil {
		t.Fatal(err)
	}
	kinds := len(rec.kinds())
	if _, err := b.Remove(o.ID); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("second remove: %v", err)
	}
	if len(rec.kinds()) != kinds {
		t.Fatal("second remove emitted an event")
	}

	if n := b.Purge(); n != 1 {
		t.Fatalf("purged %d", n)
	}
	if _, err := b.Remove(o.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("remove after purge: %v", err)
	}
}

func TestUpdatePriceForfeitsPriority(t *testing.T) {
	rec := &recorder{}
	b := NewBook(WithSyncer(rec))

	a := mustInsert(t, b, Sell, 100, 1)
	c := mustInsert(t, b, Sell, 100, 1)
	mustInsert(t, b, Sell, 101, 1)

	if err := b.UpdatePrice(a.ID, 101); err != nil {
		t.Fatalf("update: %v", err)
	}
	if a.Price() != 101 {
		t.Fatalf("price = %d", a.Price())
	}

	lvl, _ := b.Level(Sell, 101)
	orders := lvl.Orders()
	if orders[len(orders)-1] != a {
		t.Fatal("repriced order not at the tail")
	}
	if b.Best(Sell).Orders()[0] != c {
		t.Fatal("remaining order lost its place")
	}

	kinds := rec.kinds()
	if kinds[len(kinds)-1] != EventRepriced {
		t.Fatalf("last event = %v", kinds[len(kinds)-1])
	}

	// same price still goes to the back
	if err := b.UpdatePrice(c.ID, 100); err != nil {
		t.Fatal(err)
	}
	if c.Seq() <= a.Seq() {
		t.Fatal("same-price update kept the old sequence")
	}
}

func TestUpdatePriceErrors(t *testing.T) {
	b := NewBook()
	if err := b.UpdatePrice(uuid.New(), 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown: %v", err)
	}

	o := mustInsert(t, b, Buy, 100, 1)
	if err := b.UpdatePrice(o.ID, 0); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("zero price: %v", err)
	}

	if _, err := b.Remove(o.ID); err != nil {
		t.Fatal(err)
	}
	if err := b.UpdatePrice(o.ID, 0); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("cancelled: %v", err)
	}
}

func TestFillLevelAndPrune(t *testing.T) {
	rec := &recorder{}
	b := NewBook(WithSyncer(rec))

	m1 := mustInsert(t, b, Sell, 100, 3)
	m2 := mustInsert(t, b, Sell, 100, 3)

	taker := NewLimit(uuid.New(), Buy, 100, 5)
	if err := b.Admit(taker); err != nil {
		t.Fatal(err)
	}
	b.Activate(taker)

	trades, filled := b.FillLevel(b.Best(Sell), taker, 5, nil)
	if filled != 5 || len(trades) != 2 {
		t.Fatalf("filled=%d trades=%d", filled, len(trades))
	}
	if trades[0].MakerID != m1.ID || trades[0].Quantity != 3 {
		t.Fatalf("first trade %+v", trades[0])
	}
	if trades[1].MakerID != m2.ID || trades[1].Quantity != 2 || trades[1].Price != 100 {
		t.Fatalf("second trade %+v", trades[1])
	}
	if m1.Status() != Filled || m2.Status() != PartiallyFilled || m2.Remaining() != 1 {
		t.Fatalf("m1=%v m2=%v/%d", m1.Status(), m2.Status(), m2.Remaining())
	}
	if taker.Status() != Filled {
		t.Fatalf("taker = %v", taker.Status())
	}
	if m1.level.Load() != nil {
		t.Fatal("filled maker still linked")
	}
	if lvl := b.Best(Sell); lvl == nil || lvl.Quantity() != 1 || lvl.Len() != 1 {
		t.Fatal("level accounting wrong")
	}
	b.Expire(taker, ReasonNone)

	taker2 := NewLimit(uuid.New(), Buy, 100, 5)
	b.Admit(taker2)
	b.Activate(taker2)
	_, filled = b.FillLevel(b.Best(Sell), taker2, 5, nil)
	if filled != 1 {
		t.Fatalf("filled = %d", filled)
	}
	if _, ok := b.Level(Sell, 100); ok {
		t.Fatal("drained level not pruned")
	}
}

func TestReserveReleaseCommit(t *testing.T) {
	b := NewBook()
	m1 := mustInsert(t, b, Buy, 100, 2)
	m2 := mustInsert(t, b, Buy, 100, 2)

	held, got := b.Reserve(b.Best(Buy), 3, nil)
	if got != 4 || len(held) != 2 {
		t.Fatalf("got=%d held=%d", got, len(held))
	}
	// reserved makers are invisible to cancels
	if _, err := m1.cancel(ReasonUserCancelled, 4); !errors.Is(err, ErrContentionExhausted) {
		t.Fatalf("cancel reserved: %v", err)
	}

	b.Release(held)
	if _, ok := m1.tryClaim(); !ok {
		t.Fatal("release did not drop the claim")
	}
	m1.release()

	taker := NewMarket(uuid.New(), Sell, 3, FillOrKill)
	b.Admit(taker)
	b.Activate(taker)
	held, _ = b.Reserve(b.Best(Buy), 3, held[:0])
	trades, filled := b.Commit(taker, held, 3, nil)
	if filled != 3 || len(trades) != 2 {
		t.Fatalf("filled=%d trades=%d", filled, len(trades))
	}
	if m1.Status() != Filled || m2.Remaining() != 1 {
		t.Fatalf("m1=%v m2=%d", m1.Status(), m2.Remaining())
	}
	if _, ok := m2.tryClaim(); !ok {
		t.Fatal("commit left m2 claimed")
	}
}

func TestClaimCrossed(t *testing.T) {
	b := NewBook()
	if _, crossed := b.ClaimCrossed(); crossed {
		t.Fatal("empty book crossed")
	}

	ask := mustInsert(t, b, Sell, 100, 1)
	bid := mustInsert(t, b, Buy, 101, 1)

	taker, crossed := b.ClaimCrossed()
	if !crossed || taker != bid {
		t.Fatalf("taker=%v crossed=%v", taker, crossed)
	}
	b.Settle(taker)
	if bid.Status() != Active || ask.Status() != Active {
		t.Fatal("settle without fills changed state")
	}

	b2 := NewBook()
	early := mustInsert(t, b2, Sell, 100, 1)
	late := NewOrder(uuid.New(), Terms{Side: Buy, Type: Limit, Price: 101, Quantity: 1, Directive: MakerOnly})
	if err := b2.Insert(late); err != nil {
		t.Fatal(err)
	}
	taker, crossed = b2.ClaimCrossed()
	if !crossed || taker != early {
		t.Fatal("maker-only order chosen as taker")
	}
	b2.Settle(taker)

	b3 := NewBook()
	for _, side := range []Side{Sell, Buy} {
		o := NewOrder(uuid.New(), Terms{Side: side, Type: Limit, Price: 100, Quantity: 1, Directive: MakerOnly})
		if err := b3.Insert(o); err != nil {
			t.Fatal(err)
		}
	}
	if taker, crossed := b3.ClaimCrossed(); taker != nil || crossed {
		t.Fatal("two maker-only orders must not trade")
	}
}

func TestClaimCrossedLooksPastMakerOnly(t *testing.T) {
	makerOnly := func(b *Book, side Side, price int64) *Order {
		t.Helper()
		o := NewOrder(uuid.New(), Terms{Side: side, Type: Limit, Price: price, Quantity: 1, Directive: MakerOnly})
		if err := b.Insert(o); err != nil {
			t.Fatal(err)
		}
		return o
	}

	// Behind a maker-only head at the same level.
	b := NewBook()
	makerOnly(b, Buy, 102)
	makerOnly(b, Sell, 101)
	plain := mustInsert(t, b, Sell, 101, 1)
	taker, crossed := b.ClaimCrossed()
	if !crossed || taker != plain {
		t.Fatalf("taker=%v crossed=%v", taker, crossed)
	}
	b.Settle(taker)

	// At a worse level that still crosses.
	b2 := NewBook()
	makerOnly(b2, Buy, 102)
	deeper := mustInsert(t, b2, Buy, 101, 1)
	makerOnly(b2, Sell, 101)
	taker, crossed = b2.ClaimCrossed()
	if !crossed || taker != deeper {
		t.Fatalf("taker=%v crossed=%v", taker, crossed)
	}
	b2.Settle(taker)

	// Levels that do not cross hold no takers.
	b3 := NewBook()
	makerOnly(b3, Buy, 101)
	mustInsert(t, b3, Buy, 99, 1)
	makerOnly(b3, Sell, 100)
	if taker, crossed := b3.ClaimCrossed(); taker != nil || crossed {
		t.Fatalf("taker=%v crossed=%v", taker, crossed)
	}
}

func TestDepth(t *testing.T) {
	b := NewBook()
	mustInsert(t, b, Sell, 101, 2)
	mustInsert(t, b, Sell, 101, 3)
	mustInsert(t, b, Sell, 102, 1)
	mustInsert(t, b, Sell, 103, 1)

	d := b.Depth(Sell, 2)
	if len(d) != 2 {
		t.Fatalf("depth len = %d", len(d))
	}
	if d[0] != (LevelView{Price: 101, Quantity: 5, Orders: 2}) {
		t.Fatalf("top = %+v", d[0])
	}
	if d[1].Price != 102 {
		t.Fatalf("second = %+v", d[1])
	}
	if all := b.Depth(Sell, 0); len(all) != 3 {
		t.Fatalf("full depth = %d", len(all))
	}
}

func TestConcurrentInsertKeepsFIFO(t *testing.T) {
	b := NewBook()

	const workers, per = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				o := NewLimit(uuid.New(), Sell, int64(100+i%5), 1)
				if err := b.Insert(o); err != nil {
					t.Errorf("insert: %v", err)
					return
				}
				if i%3 == 0 {
					if _, err := b.Remove(o.ID); err != nil {
						t.Errorf("remove: %v", err)
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	b.Levels(Sell, func(lvl *PriceLevel) bool {
		var last uint64
		for _, o := range lvl.Orders() {
			if o.Seq() <= last {
				t.Fatalf("level %d out of arrival order", lvl.Price())
			}
			last = o.Seq()
			total++
		}
		return true
	})

	want := workers * (per - (per+2)/3)
	if total != want || b.Len() != want {
		t.Fatalf("resting = %d, index = %d, want %d", total, b.Len(), want)
	}
}

func TestRestoreKeepsPriorityAndIsSilent(t *testing.T) {
	var rec recorder
	b := NewBook(WithSyncer(&rec))

	first := NewLimit(uuid.New(), Buy, 100, 10)
	second := NewLimit(uuid.New(), Buy, 100, 4)
	if err := b.Restore(first, 6, 40); err != nil {
		t.Fatal(err)
	}
	if err := b.Restore(second, 4, 57); err != nil {
		t.Fatal(err)
	}
	if n := len(rec.kinds()); n != 0 {
		t.Fatalf("restore emitted %d events", n)
	}

	if first.Status() != PartiallyFilled || first.Remaining() != 6 || first.Filled() != 4 {
		t.Fatalf("first = %v rem %d", first.Status(), first.Remaining())
	}
	if second.Status() != Active {
		t.Fatalf("second = %v", second.Status())
	}
	if first.Seq() != 40 || second.Seq() != 57 {
		t.Fatalf("sequences %d, %d", first.Seq(), second.Seq())
	}
	lvl, ok := b.Level(Buy, 100)
	if !ok || lvl.Quantity() != 10 {
		t.Fatal("restored level missing or wrong quantity")
	}
	if orders := lvl.Orders(); orders[0] != first || orders[1] != second {
		t.Fatal("restore lost arrival order")
	}

	// new arrivals queue behind restored ones
	third := mustInsert(t, b, Buy, 100, 1)
	if third.Seq() <= second.Seq() {
		t.Fatalf("new arrival seq %d not after %d", third.Seq(), second.Seq())
	}

	if err := b.Restore(NewLimit(first.ID, Buy, 100, 1), 1, 0); !errors.Is(err, ErrDuplicateOrderID) {
		t.Fatalf("duplicate: %v", err)
	}
	if err := b.Restore(NewLimit(uuid.New(), Buy, 100, 1), 2, 0); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("over-quantity: %v", err)
	}
	if err := b.Restore(NewLimit(uuid.New(), Buy, 100, 1), 1, 10); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("sequence behind: %v", err)
	}
}
