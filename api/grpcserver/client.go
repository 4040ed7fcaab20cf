package grpcserver

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"apex/api/wire"
	"apex/domain/matching"
	"apex/domain/orderbook"
)

// Dial opens an insecure connection that speaks the wire codec.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.Name)),
	}
	return grpc.NewClient(target, append(base, opts...)...)
}

// Client is a typed client for the matching engine service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out wire.Message) error {
	return c.cc.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(wire.Name))
}

func (c *Client) CreateOrder(ctx context.Context, id uuid.UUID, terms orderbook.Terms) (*matching.Execution, error) {
	out := new(wire.Execution)
	if err := c.invoke(ctx, "CreateOrder", &wire.CreateOrderRequest{ID: id, Terms: terms}, out); err != nil {
		return nil, err
	}
	return (*matching.Execution)(out), nil
}

func (c *Client) CancelOrder(ctx context.Context, id uuid.UUID) error {
	return c.invoke(ctx, "CancelOrder", &wire.OrderRef{ID: id}, new(wire.Empty))
}

func (c *Client) UpdateOrder(ctx context.Context, id uuid.UUID, price int64) error {
	return c.invoke(ctx, "UpdateOrder", &wire.UpdateOrderRequest{ID: id, Price: price}, new(wire.Empty))
}

func (c *Client) MatchOrders(ctx context.Context) ([]orderbook.Trade, error) {
	out := new(wire.MatchOrdersResponse)
	if err := c.invoke(ctx, "MatchOrders", new(wire.Empty), out); err != nil {
		return nil, err
	}
	return out.Trades, nil
}

func (c *Client) TopOfBook(ctx context.Context, depth uint32) (*wire.TopOfBook, error) {
	out := new(wire.TopOfBook)
	if err := c.invoke(ctx, "TopOfBook", &wire.TopOfBookRequest{Depth: depth}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrder(ctx context.Context, id uuid.UUID) (orderbook.View, error) {
	out := new(wire.OrderView)
	if err := c.invoke(ctx, "GetOrder", &wire.OrderRef{ID: id}, out); err != nil {
		return orderbook.View{}, err
	}
	return orderbook.View(*out), nil
}
