package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"apex/api/wire"
)

// ServiceName matches the service in api/proto/apex.proto.
const ServiceName = "apex.v1.MatchingEngine"

type MatchingEngineServer interface {
	CreateOrder(context.Context, *wire.CreateOrderRequest) (*wire.Execution, error)
	CancelOrder(context.Context, *wire.OrderRef) (*wire.Empty, error)
	UpdateOrder(context.Context, *wire.UpdateOrderRequest) (*wire.Empty, error)
	MatchOrders(context.Context, *wire.Empty) (*wire.MatchOrdersResponse, error)
	TopOfBook(context.Context, *wire.TopOfBookRequest) (*wire.TopOfBook, error)
	GetOrder(context.Context, *wire.OrderRef) (*wire.OrderView, error)
}

// ServiceDesc is written by hand; messages travel with the wire codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchingEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateOrder", MatchingEngineServer.CreateOrder),
		unary("CancelOrder", MatchingEngineServer.CancelOrder),
		unary("UpdateOrder", MatchingEngineServer.UpdateOrder),
		unary("MatchOrders", MatchingEngineServer.MatchOrders),
		unary("TopOfBook", MatchingEngineServer.TopOfBook),
		unary("GetOrder", MatchingEngineServer.GetOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/proto/apex.proto",
}

func Register(s grpc.ServiceRegistrar, srv MatchingEngineServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req any, PReq interface {
	*Req
	wire.Message
}, Resp wire.Message](
	name string,
	call func(MatchingEngineServer, context.Context, PReq) (Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MatchingEngineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(MatchingEngineServer), ctx, req.(PReq))
			})
		},
	}
}
