package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"apex/domain/matching"
	"apex/domain/orderbook"
	"apex/service"
)

func startServer(t testing.TB) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(log)))
	Register(s, NewServer(service.NewOrderService(matching.New(), service.WithLogger(log))))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func ctx(t testing.TB) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func limit(side orderbook.Side, price, qty int64) orderbook.Terms {
	return orderbook.Terms{Side: side, Type: orderbook.Limit, Price: price, Quantity: qty}
}

func TestCreateMatchAndQuery(t *testing.T) {
	c := startServer(t)

	maker := uuid.New()
	exec, err := c.CreateOrder(ctx(t), maker, limit(orderbook.Sell, 101, 10))
	require.NoError(t, err)
	assert.Equal(t, maker, exec.OrderID)
	assert.Equal(t, orderbook.Active, exec.Status)

	taker := uuid.New()
	exec, err = c.CreateOrder(ctx(t), taker, limit(orderbook.Buy, 102, 4))
	require.NoError(t, err)
	assert.Equal(t, orderbook.Filled, exec.Status)
	require.Len(t, exec.Trades, 1)
	assert.Equal(t, maker, exec.Trades[0].MakerID)
	assert.Equal(t, int64(101), exec.Trades[0].Price)
	assert.Equal(t, int64(4), exec.Trades[0].Quantity)

	top, err := c.TopOfBook(ctx(t), 5)
	require.NoError(t, err)
	assert.False(t, top.HasBid)
	assert.True(t, top.HasAsk)
	assert.Equal(t, int64(101), top.AskPrice)
	require.Len(t, top.Asks, 1)
	assert.Equal(t, int64(6), top.Asks[0].Quantity)

	v, err := c.GetOrder(ctx(t), maker)
	require.NoError(t, err)
	assert.Equal(t, orderbook.PartiallyFilled, v.Status)
	assert.Equal(t, int64(6), v.Remaining)
}

func TestCancelUpdateAndMatch(t *testing.T) {
	c := startServer(t)

	bid := uuid.New()
	_, err := c.CreateOrder(ctx(t), bid, limit(orderbook.Buy, 99, 5))
	require.NoError(t, err)
	ask := uuid.New()
	_, err = c.CreateOrder(ctx(t), ask, limit(orderbook.Sell, 103, 5))
	require.NoError(t, err)

	// repricing into a cross leaves it for MatchOrders
	require.NoError(t, c.UpdateOrder(ctx(t), bid, 104))
	trades, err := c.MatchOrders(ctx(t))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(5), trades[0].Quantity)

	err = c.CancelOrder(ctx(t), ask)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	err = c.CancelOrder(ctx(t), uuid.New())
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.GetOrder(ctx(t), uuid.New())
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestRefusalsMapToCodes(t *testing.T) {
	c := startServer(t)

	_, err := c.CreateOrder(ctx(t), uuid.New(), limit(orderbook.Buy, 0, 5))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	id := uuid.New()
	_, err = c.CreateOrder(ctx(t), id, limit(orderbook.Sell, 100, 5))
	require.NoError(t, err)
	_, err = c.CreateOrder(ctx(t), id, limit(orderbook.Sell, 100, 5))
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	post := limit(orderbook.Buy, 100, 1)
	post.Directive = orderbook.MakerOnly
	_, err = c.CreateOrder(ctx(t), uuid.New(), post)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = c.TopOfBook(ctx(t), maxDepth+1)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestNoLiquidityIsAnOutcome(t *testing.T) {
	c := startServer(t)

	exec, err := c.CreateOrder(ctx(t), uuid.New(), orderbook.Terms{
		Side:        orderbook.Buy,
		Type:        orderbook.Market,
		Quantity:    3,
		TimeInForce: orderbook.ImmediateOrCancel,
	})
	require.NoError(t, err)
	assert.True(t, exec.Status.Terminal())
	assert.Equal(t, orderbook.ReasonInsufficientLiquidity, exec.Reason)
	assert.Empty(t, exec.Trades)
}

func TestServerAssignsMissingID(t *testing.T) {
	c := startServer(t)

	exec, err := c.CreateOrder(ctx(t), uuid.Nil, limit(orderbook.Buy, 90, 1))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, exec.OrderID)

	v, err := c.GetOrder(ctx(t), exec.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), v.Price)
}
