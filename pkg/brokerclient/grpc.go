package brokerclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "brokerage.v1.Broker"

var streamFillsDesc = grpc.StreamDesc{StreamName: "StreamFills", ServerStreams: true}

// GRPCClient talks to the brokerage.v1.Broker gRPC service.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC creates a client for the server at target. Extra options are
// appended after plaintext transport credentials.
func DialGRPC(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", target, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close releases the connection.
func (c *GRPCClient) Close() error { return c.conn.Close() }

// GetQuote returns the current price of ticker in cents.
func (c *GRPCClient) GetQuote(ctx context.Context, ticker string) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/RequestQuote", wrapperspb.String(ticker), out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// PlaceOrder submits o and returns its id.
func (c *GRPCClient) PlaceOrder(ctx context.Context, o Order) (uint64, error) {
	in, err := structpb.NewStruct(o.wire())
	if err != nil {
		return 0, err
	}
	out := new(wrapperspb.UInt64Value)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/PlaceOrder", in, out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// StreamFills calls fn for each fill until ctx is cancelled or the stream
// ends.
func (c *GRPCClient) StreamFills(ctx context.Context, fn func(Fill)) error {
	stream, err := c.conn.NewStream(ctx, &streamFillsDesc, "/"+serviceName+"/StreamFills")
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		f, err := decodeFill(msg)
		if err != nil {
			return err
		}
		fn(f)
	}
}

// decodeFill goes through JSON so the struct's field names and the HTTP
// encoding stay in one place.
func decodeFill(msg *structpb.Struct) (Fill, error) {
	var f Fill
	raw, err := json.Marshal(msg.AsMap())
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("decoding fill: %w", err)
	}
	return f, nil
}
