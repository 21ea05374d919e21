package exchange

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"brokerage/internal/domain"
)

// NetworkAdapter publishes a local Exchange on the network. Commands are
// served over TCP, one line per request; exchange events are sent as UDP
// datagrams to the events address, which may be a multicast group.
type NetworkAdapter struct {
	ex     Exchange
	ln     net.Listener
	events *net.UDPConn
	log    *slog.Logger

	closed atomic.Bool
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewNetworkAdapter starts serving ex on commandsAddr and forwarding its
// events to eventsAddr.
func NewNetworkAdapter(ex Exchange, commandsAddr, eventsAddr string, log *slog.Logger) (*NetworkAdapter, error) {
	raddr, err := net.ResolveUDPAddr("udp4", eventsAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving events address %s: %w", eventsAddr, err)
	}
	events, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dialing events address %s: %w", eventsAddr, err)
	}
	ln, err := net.Listen("tcp", commandsAddr)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("listening on %s: %w", commandsAddr, err)
	}

	a := &NetworkAdapter{
		ex:     ex,
		ln:     ln,
		events: events,
		log:    log.With("component", "exchange-adapter"),
		conns:  make(map[net.Conn]struct{}),
	}
	ex.AddListener(a)

	a.wg.Add(1)
	go a.serve()

	a.log.Info("exchange adapter started", "commands", ln.Addr().String(), "events", eventsAddr)
	return a, nil
}

// Addr returns the command listener address.
func (a *NetworkAdapter) Addr() net.Addr { return a.ln.Addr() }

// Opened forwards an open event.
func (a *NetworkAdapter) Opened(e Event) { a.issue(e) }

// Closed forwards a close event.
func (a *NetworkAdapter) Closed(e Event) { a.issue(e) }

// PriceChanged forwards a price change event.
func (a *NetworkAdapter) PriceChanged(e Event) { a.issue(e) }

func (a *NetworkAdapter) issue(e Event) {
	if a.closed.Load() {
		return
	}
	msg := encodeEvent(e)
	if _, err := a.events.Write([]byte(msg)); err != nil {
		a.log.Warn("sending event failed", "event", msg, "error", err)
	}
}

func (a *NetworkAdapter) serve() {
	defer a.wg.Done()
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if a.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			a.log.Warn("accept failed", "error", err)
			continue
		}
		if !a.track(conn) {
			conn.Close()
			return
		}
		a.wg.Add(1)
		go a.handle(conn)
	}
}

func (a *NetworkAdapter) track(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return false
	}
	a.conns[conn] = struct{}{}
	return true
}

func (a *NetworkAdapter) handle(conn net.Conn) {
	defer a.wg.Done()
	defer func() {
		a.mu.Lock()
		delete(a.conns, conn)
		a.mu.Unlock()
		conn.Close()
	}()

	a.log.Debug("client connected", "remote", conn.RemoteAddr().String())
	scanner := bufio.NewScanner(conn)
	w := bufio.NewWriter(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		resp := a.respond(line)
		if _, err := w.WriteString(resp + "\n"); err != nil {
			a.log.Debug("writing response failed", "error", err)
			return
		}
		if err := w.Flush(); err != nil {
			a.log.Debug("flushing response failed", "error", err)
			return
		}
	}
}

// respond executes one command line against the exchange.
func (a *NetworkAdapter) respond(line string) string {
	cmd, err := parseCommand(line)
	if err != nil {
		a.log.Warn("rejecting command", "error", err)
		return respError
	}

	switch cmd.name {
	case cmdGetState:
		if a.ex.IsOpen() {
			return stateOpen
		}
		return stateClosed

	case cmdGetTickers:
		return strings.Join(a.ex.Tickers(), delimiter)

	case cmdGetQuote:
		q, err := a.ex.Quote(cmd.ticker)
		if err != nil {
			return strconv.Itoa(invalidStock)
		}
		return strconv.FormatInt(q.Price, 10)

	default: // cmdExecuteTrade
		order := &domain.Order{
			ID:        domain.NextOrderID(),
			AccountID: cmd.account,
			Ticker:    cmd.ticker,
			Shares:    cmd.shares,
			Side:      cmd.side,
		}
		price, err := a.ex.ExecuteTrade(context.Background(), order)
		if err != nil {
			if errors.Is(err, ErrUnknownTicker) {
				return strconv.Itoa(invalidStock)
			}
			a.log.Error("trade failed", "ticker", cmd.ticker, "error", err)
			return respError
		}
		return strconv.FormatInt(price, 10)
	}
}

// Close stops accepting commands, disconnects clients and stops forwarding
// events. It waits for connection handlers until ctx is done.
func (a *NetworkAdapter) Close(ctx context.Context) error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	a.ex.RemoveListener(a)

	errs := []error{a.ln.Close()}
	a.mu.Lock()
	for conn := range a.conns {
		conn.Close()
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for adapter connections: %w", ctx.Err()))
	}

	errs = append(errs, a.events.Close())
	a.log.Info("exchange adapter stopped")
	return errors.Join(errs...)
}
