package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"brokerage/internal/account"
	"brokerage/internal/broker"
	"brokerage/internal/domain"
	"brokerage/internal/exchange"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "brokerage.v1.Broker"

// BrokerServer is the server API for the brokerage.v1.Broker service. The
// messages are protobuf well-known types, so no generated code is needed.
type BrokerServer interface {
	// RequestQuote returns the price in cents for the ticker in the request.
	RequestQuote(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	// PlaceOrder accepts the same fields as POST /api/orders and returns the
	// order id.
	PlaceOrder(context.Context, *structpb.Struct) (*wrapperspb.UInt64Value, error)
	// StreamFills sends every fill executed while the stream is open.
	StreamFills(*emptypb.Empty, grpc.ServerStream) error
}

// RegisterBrokerServer registers srv on s.
func RegisterBrokerServer(s grpc.ServiceRegistrar, srv BrokerServer) {
	s.RegisterService(&brokerServiceDesc, srv)
}

var brokerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BrokerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestQuote", Handler: requestQuoteHandler},
		{MethodName: "PlaceOrder", Handler: placeOrderHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamFills", Handler: streamFillsHandler, ServerStreams: true},
	},
}

func requestQuoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BrokerServer).RequestQuote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RequestQuote"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BrokerServer).RequestQuote(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func placeOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BrokerServer).PlaceOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/PlaceOrder"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BrokerServer).PlaceOrder(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamFillsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BrokerServer).StreamFills(in, stream)
}

// brokerService implements BrokerServer on top of the API server.
type brokerService struct {
	srv *Server
}

func (b *brokerService) RequestQuote(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	q, err := b.srv.broker.RequestQuote(ctx, in.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	return wrapperspb.Int64(q.Price), nil
}

func (b *brokerService) PlaceOrder(ctx context.Context, in *structpb.Struct) (*wrapperspb.UInt64Value, error) {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	var req orderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding order: %v", err)
	}
	id, err := b.srv.placeOrder(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return wrapperspb.UInt64(id), nil
}

func (b *brokerService) StreamFills(_ *emptypb.Empty, stream grpc.ServerStream) error {
	if b.srv.feed == nil {
		return status.Error(codes.Unavailable, "fill stream disabled")
	}
	id, ch := b.srv.feed.Subscribe(feedBuffer)
	defer b.srv.feed.Unsubscribe(id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := fillStruct(f)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// fillStruct converts f to the wire struct. Field names match the JSON
// encoding of domain.Fill.
func fillStruct(f domain.Fill) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		"order_id":    f.OrderID,
		"account_id":  f.AccountID,
		"ticker":      f.Ticker,
		"side":        string(f.Side),
		"shares":      f.Shares,
		"price":       f.Price,
		"executed_at": f.ExecutedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding fill %d: %w", f.OrderID, err)
	}
	return s, nil
}

// grpcError maps broker and collaborator errors onto status codes.
func grpcError(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, account.ErrInvalidAccount):
		code = codes.InvalidArgument
	case errors.Is(err, account.ErrInvalidLogin):
		code = codes.Unauthenticated
	case errors.Is(err, account.ErrNotFound), errors.Is(err, broker.ErrNoManager),
		errors.Is(err, exchange.ErrUnknownTicker):
		code = codes.NotFound
	case errors.Is(err, account.ErrExists):
		code = codes.AlreadyExists
	case errors.Is(err, broker.ErrNotReady):
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}
