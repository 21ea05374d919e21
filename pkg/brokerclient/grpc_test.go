package brokerclient

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"brokerage/internal/account"
	"brokerage/internal/api"
	"brokerage/internal/broker"
	"brokerage/internal/config"
	"brokerage/internal/domain"
	"brokerage/internal/exchange"
	"brokerage/internal/fills"
	"brokerage/internal/queue"
	"brokerage/internal/store"
	"brokerage/internal/util"
)

func TestGRPCClient(t *testing.T) {
	log := util.Discard()
	sim := exchange.NewSimulator(domain.Quote{Ticker: "AAPL", Price: 19000})
	accounts := account.NewManager(store.NewMemoryStore(), log, account.WithHashCost(bcrypt.MinCost))
	feed := fills.NewFeed(log)
	b, err := broker.Factory{Mode: queue.ModeDedicated, Logger: log}.NewBroker("test", accounts, sim, feed)
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	defer b.Close()

	srv := api.NewServer(config.Default(), b, feed, log)
	lis := bufconn.Listen(1 << 20)
	go srv.GRPCServer().Serve(lis)
	defer srv.GRPCServer().Stop()

	c, err := DialGRPC("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("DialGRPC: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	price, err := c.GetQuote(ctx, "AAPL")
	if err != nil || price != 19000 {
		t.Errorf("GetQuote = %d, %v; want 19000", price, err)
	}
	if _, err := c.GetQuote(ctx, "NOPE"); status.Code(err) != codes.NotFound {
		t.Errorf("GetQuote(NOPE) code = %v, want NotFound", status.Code(err))
	}

	if _, err := b.CreateAccount(ctx, "testaccount", "password1", 1000000); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	streamCtx, stopStream := context.WithCancel(ctx)
	fillsCh := make(chan Fill, 1)
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- c.StreamFills(streamCtx, func(f Fill) { fillsCh <- f })
	}()
	deadline := time.Now().Add(2 * time.Second)
	for feed.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("fill stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	id, err := c.PlaceOrder(ctx, Order{Account: "testaccount", Ticker: "AAPL", Side: Buy, Shares: 3})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	sim.Open()

	select {
	case f := <-fillsCh:
		if f.OrderID != id || f.Shares != 3 || f.Price != 19000 || f.Side != Buy {
			t.Errorf("fill = %+v, want order %d buy 3@19000", f, id)
		}
		if f.ExecutedAt.IsZero() {
			t.Error("fill has no execution time")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no fill streamed")
	}

	stopStream()
	if err := <-streamDone; err != nil {
		t.Errorf("StreamFills returned %v after cancel", err)
	}
}
