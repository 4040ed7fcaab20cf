package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"apex/domain/matching"
	"apex/domain/orderbook"
	"apex/infra/metrics"
	"apex/infra/wal/entry"
	"apex/infra/wal/exit"
)

// OrderService is the only write entry point into the engine.
type OrderService struct {
	engine  *matching.Engine
	metrics *metrics.Metrics
	log     *slog.Logger
	journal *entry.WAL
	outbox  *exit.Outbox
}

type Option func(*OrderService)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *OrderService) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *OrderService) {
		if l != nil {
			s.log = l
		}
	}
}

// WithJournal lets the snapshot job truncate the journal it covers.
func WithJournal(w *entry.WAL) Option {
	return func(s *OrderService) { s.journal = w }
}

// WithOutbox lets the snapshot job drop acknowledged outbox records.
func WithOutbox(o *exit.Outbox) Option {
	return func(s *OrderService) { s.outbox = o }
}

func NewOrderService(engine *matching.Engine, opts ...Option) *OrderService {
	s := &OrderService{engine: engine, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(slog.String("component", "service"))
	return s
}

func (s *OrderService) Engine() *matching.Engine {
	return s.engine
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// CreateOrder submits a new order. A nil id is replaced by a fresh one.
func (s *OrderService) CreateOrder(
	ctx context.Context,
	id uuid.UUID,
	terms orderbook.Terms,
) (*matching.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	start := time.Now()
	exec, err := s.engine.CreateOrder(orderbook.NewOrder(id, terms))
	s.observe("create", start, err)
	if s.metrics != nil && exec != nil {
		s.metrics.ObserveOutcome(exec.Status)
	}

	if err != nil && !errors.Is(err, orderbook.ErrInsufficientLiquidity) && !errors.Is(err, orderbook.ErrSlippageExceeded) {
		s.log.Debug("order refused", slog.String("order_id", id.String()), slog.Any("err", err))
	}
	return exec, err
}

func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := s.engine.CancelOrder(id)
	s.observe("cancel", start, err)
	return err
}

func (s *OrderService) UpdateOrder(ctx context.Context, id uuid.UUID, price int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := s.engine.UpdateOrder(id, price)
	s.observe("update", start, err)
	return err
}

// MatchOrders uncrosses resting orders.
func (s *OrderService) MatchOrders(ctx context.Context) ([]orderbook.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	trades := s.engine.MatchOrders()
	s.observe("match", start, nil)
	return trades, nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// Quote is the top of book plus up to n aggregated levels per side.
type Quote struct {
	Bid, Ask       int64
	HasBid, HasAsk bool
	Bids, Asks     []orderbook.LevelView
}

func (s *OrderService) TopOfBook(depth int) Quote {
	var q Quote
	q.Bid, q.HasBid = s.engine.BestBid()
	q.Ask, q.HasAsk = s.engine.BestAsk()
	if depth > 0 {
		book := s.engine.Book()
		q.Bids = book.Depth(orderbook.Buy, depth)
		q.Asks = book.Depth(orderbook.Sell, depth)
	}
	return q
}

func (s *OrderService) Order(id uuid.UUID) (orderbook.View, bool) {
	return s.engine.Order(id)
}

func (s *OrderService) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveLatency(op, start)
	if err != nil {
		s.metrics.ObserveError(op, ErrorClass(err))
	}
}

// ErrorClass names the domain error behind err for metrics and logs.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, orderbook.ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, orderbook.ErrDuplicateOrderID):
		return "duplicate_order_id"
	case errors.Is(err, orderbook.ErrNotFound):
		return "not_found"
	case errors.Is(err, orderbook.ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, orderbook.ErrWouldCrossMakerOnly):
		return "would_cross_maker_only"
	case errors.Is(err, orderbook.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, orderbook.ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, orderbook.ErrContentionExhausted):
		return "contention_exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
