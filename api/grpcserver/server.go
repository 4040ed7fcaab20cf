package grpcserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"apex/api/wire"
	"apex/domain/orderbook"
	"apex/service"
)

// maxDepth bounds the levels a TopOfBook call may ask for.
const maxDepth = 1000

// Server adapts OrderService to gRPC.
type Server struct {
	svc *service.OrderService
}

func NewServer(svc *service.OrderService) *Server {
	return &Server{svc: svc}
}

// -------------------- Commands --------------------

// CreateOrder answers with the execution report. Orders that end for lack
// of liquidity or on the slippage band are outcomes, reported through the
// status and reason of the execution; other refusals are gRPC errors.
func (s *Server) CreateOrder(ctx context.Context, req *wire.CreateOrderRequest) (*wire.Execution, error) {
	exec, err := s.svc.CreateOrder(ctx, req.ID, req.Terms)
	if err != nil && !isOutcome(err) {
		return nil, toStatus(err)
	}
	return (*wire.Execution)(exec), nil
}

func (s *Server) CancelOrder(ctx context.Context, req *wire.OrderRef) (*wire.Empty, error) {
	if err := s.svc.CancelOrder(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return &wire.Empty{}, nil
}

func (s *Server) UpdateOrder(ctx context.Context, req *wire.UpdateOrderRequest) (*wire.Empty, error) {
	if err := s.svc.UpdateOrder(ctx, req.ID, req.Price); err != nil {
		return nil, toStatus(err)
	}
	return &wire.Empty{}, nil
}

func (s *Server) MatchOrders(ctx context.Context, _ *wire.Empty) (*wire.MatchOrdersResponse, error) {
	trades, err := s.svc.MatchOrders(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &wire.MatchOrdersResponse{Trades: trades}, nil
}

// -------------------- Queries --------------------

func (s *Server) TopOfBook(_ context.Context, req *wire.TopOfBookRequest) (*wire.TopOfBook, error) {
	depth := int(req.Depth)
	if depth > maxDepth {
		return nil, status.Errorf(codes.InvalidArgument, "depth %d above %d", depth, maxDepth)
	}
	q := s.svc.TopOfBook(depth)
	return &wire.TopOfBook{
		BidPrice: q.Bid,
		HasBid:   q.HasBid,
		AskPrice: q.Ask,
		HasAsk:   q.HasAsk,
		Bids:     q.Bids,
		Asks:     q.Asks,
	}, nil
}

func (s *Server) GetOrder(_ context.Context, req *wire.OrderRef) (*wire.OrderView, error) {
	v, ok := s.svc.Order(req.ID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "order %s not found", req.ID)
	}
	return (*wire.OrderView)(&v), nil
}

// -------------------- Errors --------------------

func isOutcome(err error) bool {
	return errors.Is(err, orderbook.ErrInsufficientLiquidity) || errors.Is(err, orderbook.ErrSlippageExceeded)
}

// toStatus maps domain errors to gRPC codes.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, orderbook.ErrInvalidOrder):
		code = codes.InvalidArgument
	case errors.Is(err, orderbook.ErrDuplicateOrderID):
		code = codes.AlreadyExists
	case errors.Is(err, orderbook.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, orderbook.ErrAlreadyTerminal),
		errors.Is(err, orderbook.ErrWouldCrossMakerOnly),
		errors.Is(err, orderbook.ErrInsufficientLiquidity),
		errors.Is(err, orderbook.ErrSlippageExceeded):
		code = codes.FailedPrecondition
	case errors.Is(err, orderbook.ErrContentionExhausted):
		code = codes.Aborted
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}

// -------------------- Interceptors --------------------

// LoggingInterceptor logs every call; server faults at error level.
func LoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	log = log.With(slog.String("component", "grpc"))
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelDebug
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		log.Log(ctx, level, "rpc",
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Duration("took", time.Since(start)),
		)
		return resp, err
	}
}
