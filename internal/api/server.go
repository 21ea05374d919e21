// Package api provides the HTTP and gRPC server for the brokerage, exposing
// account, quote and order endpoints plus a live stream of fills.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"brokerage/internal/broker"
	"brokerage/internal/config"
	"brokerage/internal/fills"
)

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	broker   broker.Broker
	feed     *fills.Feed
	hub      *Hub
	httpAddr string
	grpcAddr string
	log      *slog.Logger

	httpSrv *http.Server
	grpcSrv *grpc.Server
}

// NewServer creates a Server for b configured from cfg. feed may be nil, in
// which case the fill stream endpoints report 503 / Unavailable.
func NewServer(cfg *config.Config, b broker.Broker, feed *fills.Feed, log *slog.Logger) *Server {
	s := &Server{
		broker:   b,
		feed:     feed,
		httpAddr: net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		grpcAddr: net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort)),
		log:      log.With("component", "api"),
	}
	if feed != nil {
		s.hub = NewHub(feed, s.log)
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.grpcSrv = grpc.NewServer()
	RegisterBrokerServer(s.grpcSrv, &brokerService{srv: s})
	return s
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("DELETE /api/accounts/{name}", s.handleDeleteAccount)
	mux.HandleFunc("POST /api/accounts/{name}/login", s.handleLogin)
	mux.HandleFunc("GET /api/quotes/{ticker}", s.handleQuote)
	mux.HandleFunc("POST /api/orders", s.handlePlaceOrder)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /ws/fills", s.handleWebSocket)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}

// GRPCServer exposes the gRPC server so callers can serve it on their own
// listener.
func (s *Server) GRPCServer() *grpc.Server { return s.grpcSrv }

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	grpcLis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve runs both servers on the given listeners until ctx is cancelled,
// then shuts them down.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.hub != nil {
		g.Go(func() error {
			s.hub.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		s.log.Info("http listening", "addr", httpLis.Addr().String())
		if err := s.httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.log.Info("grpc listening", "addr", grpcLis.Addr().String())
		if err := s.grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
// Streaming gRPC calls are cut off if they outlive ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.grpcSrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcSrv.Stop()
	}
	return err
}
