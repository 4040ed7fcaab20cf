package matching

import (
	"log/slog"
	"runtime"

	"github.com/google/uuid"

	"apex/domain/orderbook"
	"apex/infra/memory"
	"apex/infra/sequence"
)

// Execution is the outcome of CreateOrder. A cancelled remainder after
// some fills is reported here with its Reason, not as an error.
type Execution struct {
	OrderID   uuid.UUID
	Status    orderbook.Status
	Reason    orderbook.Reason
	Filled    int64
	Remaining int64
	Trades    []orderbook.Trade
}

// Engine matches orders for one instrument. All methods are safe for
// concurrent use.
type Engine struct {
	book    *orderbook.Book
	log     *slog.Logger
	holds   *memory.Pool[[]*orderbook.Order]
	retries int
}

type config struct {
	syncer  orderbook.Syncer
	logger  *slog.Logger
	retries int
	events  *sequence.Sequencer
}

type Option func(*config)

// WithSyncer sets the collaborator notified of every book mutation.
func WithSyncer(s orderbook.Syncer) Option {
	return func(c *config) { c.syncer = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMaxRetries bounds every CAS retry loop and busy sweep.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.retries = n }
}

// WithEventSequencer resumes event numbering.
func WithEventSequencer(seq *sequence.Sequencer) Option {
	return func(c *config) { c.events = seq }
}

func New(opts ...Option) *Engine {
	c := config{
		syncer:  orderbook.NopSyncer{},
		retries: orderbook.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	book := orderbook.NewBook(
		orderbook.WithSyncer(c.syncer),
		orderbook.WithMaxRetries(c.retries),
		orderbook.WithEventSequencer(c.events),
	)

	return &Engine{
		book:    book,
		log:     c.logger.With(slog.String("component", "matching")),
		holds:   memory.NewSlicePool[*orderbook.Order](16),
		retries: book.MaxRetries(),
	}
}

// Book exposes the underlying book for queries and snapshots.
func (e *Engine) Book() *orderbook.Book {
	return e.book
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// CreateOrder validates, matches and, for limit orders, rests o.
func (e *Engine) CreateOrder(o *orderbook.Order) (*Execution, error) {
	if o == nil {
		return nil, &orderbook.OrderError{Op: "create", Err: orderbook.ErrInvalidOrder}
	}

	if err := Validate(o); err != nil {
		e.book.Reject(o, orderbook.ReasonInvalidOrder)
		e.log.Debug("order rejected", slog.String("order_id", o.ID.String()), slog.Any("error", err))
		return execution(o, nil), &orderbook.OrderError{Op: "create", ID: o.ID, Err: err}
	}

	if err := e.book.Admit(o); err != nil {
		return execution(o, nil), err
	}

	if o.Directive == orderbook.MakerOnly && e.wouldCross(o) {
		e.book.Reject(o, orderbook.ReasonWouldCrossMakerOnly)
		return execution(o, nil), failure("create", o, orderbook.ErrWouldCrossMakerOnly)
	}

	if o.Type == orderbook.Market && o.TimeInForce == orderbook.FillOrKill {
		return e.fillOrKill(o)
	}

	// A maker-only order never walks: liquidity linked after the cross
	// check is left for MatchOrders, which never lets it take.
	if o.Directive == orderbook.MakerOnly {
		e.book.Activate(o)
		if err := e.book.Rest(o); err != nil {
			e.book.Expire(o, orderbook.ReasonNone)
			return execution(o, nil), err
		}
		return execution(o, nil), nil
	}

	e.book.Activate(o)
	trades, stop := e.walk(o, nil)

	switch {
	case o.Remaining() == 0:
		e.book.Expire(o, orderbook.ReasonNone)

	case o.Type == orderbook.Market || o.Directive == orderbook.TakerOnly:
		filled := o.Filled()
		e.book.Expire(o, stop)
		if filled == 0 {
			return execution(o, trades), failure("create", o, orderbook.ReasonFor(stop))
		}

	default:
		if err := e.book.Rest(o); err != nil {
			e.book.Expire(o, orderbook.ReasonNone)
			e.log.Warn("order could not rest", slog.String("order_id", o.ID.String()), slog.Any("error", err))
			return execution(o, trades), err
		}
	}
	return execution(o, trades), nil
}

// fillOrKill reserves enough qualifying liquidity for the whole order
// before filling any of it. The order is still Created while reserving,
// so a shortfall rejects it without touching the book.
func (e *Engine) fillOrKill(o *orderbook.Order) (*Execution, error) {
	held := e.holds.Get()
	defer e.holds.Put(held)

	need := o.Quantity
	var got int64
	stop := e.levels(o, func(lvl *orderbook.PriceLevel) bool {
		var n int64
		*held, n = e.book.Reserve(lvl, need-got, *held)
		got += n
		return got < need
	})

	if got < need {
		e.book.Release(*held)
		e.book.Reject(o, stop)
		return execution(o, nil), failure("create", o, orderbook.ReasonFor(stop))
	}

	e.book.Activate(o)
	trades, filled := e.book.Commit(o, *held, need, nil)
	if filled < need {
		e.log.Warn("fill-or-kill commit fell short",
			slog.String("order_id", o.ID.String()),
			slog.Int64("filled", filled),
			slog.Int64("quantity", need),
		)
	}
	e.book.Expire(o, orderbook.ReasonInsufficientLiquidity)
	return execution(o, trades), nil
}

// CancelOrder cancels a resting order.
func (e *Engine) CancelOrder(id uuid.UUID) error {
	if _, err := e.book.Remove(id); err != nil {
		if orderbook.IsRetriable(err) {
			e.log.Warn("cancel contended", slog.String("order_id", id.String()))
		}
		return err
	}
	return nil
}

// UpdateOrder moves a resting limit order to price. It loses its queue
// position; a resulting cross is resolved by MatchOrders.
func (e *Engine) UpdateOrder(id uuid.UUID, price int64) error {
	return e.book.UpdatePrice(id, price)
}

// MatchOrders uncrosses resting orders until the best bid is below the
// best ask. Concurrent sweeps are safe and may overlap.
func (e *Engine) MatchOrders() []orderbook.Trade {
	var trades []orderbook.Trade

	for misses := 0; misses < e.retries; {
		taker, crossed := e.book.ClaimCrossed()
		if !crossed {
			break
		}
		if taker == nil {
			misses++
			runtime.Gosched()
			continue
		}

		before := len(trades)
		trades, _ = e.walk(taker, trades)
		e.book.Settle(taker)

		if len(trades) == before {
			misses++
		} else {
			misses = 0
		}
	}
	return trades
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

func (e *Engine) BestBid() (int64, bool) {
	return e.book.BestPrice(orderbook.Buy)
}

func (e *Engine) BestAsk() (int64, bool) {
	return e.book.BestPrice(orderbook.Sell)
}

// Order returns the current view of a known order.
func (e *Engine) Order(id uuid.UUID) (orderbook.View, bool) {
	o, ok := e.book.Order(id)
	if !ok {
		return orderbook.View{}, false
	}
	return o.View(), true
}

//
// ──────────────────────────────────────────────────────────
// Walk
// ──────────────────────────────────────────────────────────
//

// levels visits the opposite levels the taker may trade with, best first,
// until fn returns false. It returns why the walk would stop for lack of
// qualifying liquidity.
func (e *Engine) levels(taker *orderbook.Order, fn func(*orderbook.PriceLevel) bool) orderbook.Reason {
	stop := orderbook.ReasonInsufficientLiquidity

	var (
		limit    int64
		hasLimit bool
	)
	if taker.Type == orderbook.Limit {
		limit, hasLimit = taker.Price(), true
	}

	e.book.Levels(taker.Side.Opposite(), func(lvl *orderbook.PriceLevel) bool {
		if taker.Type == orderbook.Market && taker.Slippage != nil && !hasLimit {
			limit, hasLimit = SlippageLimit(taker.Side, lvl.Price(), *taker.Slippage), true
		}
		if hasLimit && !orderbook.Crosses(taker.Side, limit, lvl.Price()) {
			if taker.Type == orderbook.Market {
				stop = orderbook.ReasonSlippageExceeded
			}
			return false
		}
		return fn(lvl)
	})
	return stop
}

// walk fills a claimed taker against the opposite side.
func (e *Engine) walk(taker *orderbook.Order, trades []orderbook.Trade) ([]orderbook.Trade, orderbook.Reason) {
	stop := e.levels(taker, func(lvl *orderbook.PriceLevel) bool {
		rem := taker.Remaining()
		if rem == 0 {
			return false
		}
		trades, _ = e.book.FillLevel(lvl, taker, rem, trades)
		return taker.Remaining() > 0
	})
	return trades, stop
}

func (e *Engine) wouldCross(o *orderbook.Order) bool {
	best, ok := e.book.BestPrice(o.Side.Opposite())
	return ok && orderbook.Crosses(o.Side, o.Price(), best)
}

func failure(op string, o *orderbook.Order, err error) error {
	return &orderbook.OrderError{Op: op, ID: o.ID, Err: err}
}

func execution(o *orderbook.Order, trades []orderbook.Trade) *Execution {
	v := o.View()
	return &Execution{
		OrderID:   o.ID,
		Status:    v.Status,
		Reason:    v.Reason,
		Filled:    o.Filled(),
		Remaining: v.Remaining,
		Trades:    trades,
	}
}
