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
	"time"

	"brokerage/internal/domain"
	"brokerage/internal/util"
)

// Compile-time interface check.
var _ Exchange = (*NetworkProxy)(nil)

// ErrProtocol is returned when the remote exchange answers with an error or
// a malformed response.
var ErrProtocol = errors.New("exchange: protocol error")

// NetworkProxy is an Exchange backed by a remote NetworkAdapter.
type NetworkProxy struct {
	addr    string
	timeout time.Duration
	backoff util.Backoff
	log     *slog.Logger

	mu   sync.Mutex // serializes command round trips; guards conn and r
	conn net.Conn   // nil after a failed round trip until redialed
	r    *bufio.Reader

	events    *net.UDPConn
	listeners listenerSet
	closed    atomic.Bool
	done      chan struct{}
}

// ProxyOptions configures DialNetworkProxy.
type ProxyOptions struct {
	// Timeout bounds each command round trip. Zero means five seconds.
	Timeout time.Duration

	// DialAttempts is the number of connection attempts. Zero means five.
	DialAttempts int
}

// DialNetworkProxy connects to the adapter at commandsAddr and subscribes to
// events on eventsAddr. A multicast events address joins the group; any
// other address is bound directly.
func DialNetworkProxy(ctx context.Context, commandsAddr, eventsAddr string, opts ProxyOptions, log *slog.Logger) (*NetworkProxy, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.DialAttempts <= 0 {
		opts.DialAttempts = 5
	}

	gaddr, err := net.ResolveUDPAddr("udp4", eventsAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving events address %s: %w", eventsAddr, err)
	}
	var events *net.UDPConn
	if gaddr.IP.IsMulticast() {
		events, err = net.ListenMulticastUDP("udp4", nil, gaddr)
	} else {
		events, err = net.ListenUDP("udp4", gaddr)
	}
	if err != nil {
		return nil, fmt.Errorf("listening for events on %s: %w", eventsAddr, err)
	}

	p := &NetworkProxy{
		addr:    commandsAddr,
		timeout: opts.Timeout,
		backoff: util.Backoff{Attempts: opts.DialAttempts, Base: 200 * time.Millisecond, Max: 2 * time.Second},
		log:     log.With("component", "exchange-proxy"),
		events:  events,
		done:    make(chan struct{}),
	}
	if err := p.dial(ctx); err != nil {
		events.Close()
		return nil, err
	}
	go p.receive()
	return p, nil
}

// dial (re)connects the command channel. Callers hold mu or own p
// exclusively.
func (p *NetworkProxy) dial(ctx context.Context) error {
	var d net.Dialer
	err := util.Retry(ctx, p.backoff, func() error {
		c, err := d.DialContext(ctx, "tcp", p.addr)
		if err != nil {
			p.log.Debug("exchange dial failed", "addr", p.addr, "error", err)
			var addrErr *net.AddrError
			if errors.As(err, &addrErr) {
				return util.Permanent(err)
			}
			return err
		}
		p.conn = c
		p.r = bufio.NewReader(c)
		return nil
	})
	if err != nil {
		return fmt.Errorf("connecting to exchange %s: %w", p.addr, err)
	}
	return nil
}

// drop discards a connection whose framing can no longer be trusted: a
// reply to a failed command may still arrive on it. mu must be held.
func (p *NetworkProxy) drop(cause error) {
	p.log.Warn("dropping exchange connection", "addr", p.addr, "error", cause)
	p.conn.Close()
	p.conn = nil
	p.r = nil
}

// IsOpen asks the remote exchange for its state. Transport failures read
// as closed.
func (p *NetworkProxy) IsOpen() bool {
	resp, err := p.request(context.Background(), cmdGetState)
	if err != nil {
		p.log.Warn("state request failed", "error", err)
		return false
	}
	return resp == stateOpen
}

// Tickers returns the remote listing, or nil on transport failure.
func (p *NetworkProxy) Tickers() []string {
	resp, err := p.request(context.Background(), cmdGetTickers)
	if err != nil {
		p.log.Warn("tickers request failed", "error", err)
		return nil
	}
	if resp == "" {
		return nil
	}
	return strings.Split(resp, delimiter)
}

// Quote returns the remote price for ticker.
func (p *NetworkProxy) Quote(ticker string) (domain.Quote, error) {
	price, err := p.requestPrice(context.Background(), encodeQuoteCommand(ticker))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quote %s: %w", ticker, err)
	}
	return domain.Quote{Ticker: ticker, Price: price}, nil
}

// ExecuteTrade executes order on the remote exchange.
func (p *NetworkProxy) ExecuteTrade(ctx context.Context, order *domain.Order) (int64, error) {
	price, err := p.requestPrice(ctx, encodeTradeCommand(order))
	if err != nil {
		return 0, fmt.Errorf("execute order %d: %w", order.ID, err)
	}
	return price, nil
}

// AddListener registers l for remote events.
func (p *NetworkProxy) AddListener(l Listener) { p.listeners.add(l) }

// RemoveListener unregisters l.
func (p *NetworkProxy) RemoveListener(l Listener) { p.listeners.remove(l) }

func (p *NetworkProxy) requestPrice(ctx context.Context, cmd string) (int64, error) {
	resp, err := p.request(ctx, cmd)
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseInt(resp, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: response %q", ErrProtocol, resp)
	}
	if price == invalidStock {
		return 0, ErrUnknownTicker
	}
	return price, nil
}

// request sends one command line and reads one response line. Any
// transport failure drops the connection so a late reply is never read as
// the answer to a later command; the next request redials.
func (p *NetworkProxy) request(ctx context.Context, cmd string) (string, error) {
	if p.closed.Load() {
		return "", net.ErrClosed
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(p.timeout)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return "", net.ErrClosed
	}
	if p.conn == nil {
		dctx, cancel := context.WithDeadline(ctx, deadline)
		err := p.dial(dctx)
		cancel()
		if err != nil {
			return "", err
		}
	}
	if err := p.conn.SetDeadline(deadline); err != nil {
		p.drop(err)
		return "", err
	}
	if _, err := p.conn.Write([]byte(cmd + "\n")); err != nil {
		p.drop(err)
		return "", fmt.Errorf("sending %s: %w", cmd, err)
	}
	line, err := p.r.ReadString('\n')
	if err != nil {
		p.drop(err)
		return "", fmt.Errorf("reading response to %s: %w", cmd, err)
	}
	resp := strings.TrimSpace(line)
	if resp == respError {
		return "", fmt.Errorf("%w: exchange rejected %s", ErrProtocol, cmd)
	}
	return resp, nil
}

func (p *NetworkProxy) receive() {
	defer close(p.done)
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := p.events.ReadFromUDP(buf)
		if err != nil {
			if p.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			p.log.Warn("reading event failed", "error", err)
			continue
		}
		e, err := decodeEvent(string(buf[:n]))
		if err != nil {
			p.log.Warn("dropping event", "error", err)
			continue
		}
		p.listeners.fire(e)
	}
}

// Close disconnects from the remote exchange and stops event delivery.
func (p *NetworkProxy) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.mu.Lock()
	var connErr error
	if p.conn != nil {
		connErr = p.conn.Close()
		p.conn = nil
	}
	p.mu.Unlock()
	err := errors.Join(connErr, p.events.Close())
	<-p.done
	return err
}
