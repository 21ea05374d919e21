package exchange

import (
	"fmt"
	"strconv"
	"strings"

	"brokerage/internal/domain"
)

// Wire protocol shared by NetworkAdapter and NetworkProxy. Commands travel
// over TCP as one ':'-delimited line per request and per response; events
// travel as UDP datagrams of the same form.
//
//	GET_STATE_CMD                                   -> OPEN_STATE | CLOSED_STATE
//	GET_TICKERS_CMD                                 -> T1:T2:...
//	GET_QUOTE_CMD:T                                 -> price | -1
//	EXECUTE_TRADE_CMD:BUY_ORDER|SELL_ORDER:A:T:N    -> execution price (0 when closed)
//
//	OPEN_EVENT | CLOSED_EVENT | PRICE_CHANGE_EVENT:T:price
const (
	cmdGetState     = "GET_STATE_CMD"
	cmdGetTickers   = "GET_TICKERS_CMD"
	cmdGetQuote     = "GET_QUOTE_CMD"
	cmdExecuteTrade = "EXECUTE_TRADE_CMD"

	stateOpen   = "OPEN_STATE"
	stateClosed = "CLOSED_STATE"

	buyOrder  = "BUY_ORDER"
	sellOrder = "SELL_ORDER"

	eventOpen        = "OPEN_EVENT"
	eventClosed      = "CLOSED_EVENT"
	eventPriceChange = "PRICE_CHANGE_EVENT"

	respError = "ERROR"

	delimiter    = ":"
	invalidStock = -1
	maxDatagram  = 512
)

// command is a parsed request line.
type command struct {
	name    string
	ticker  string
	account string
	side    domain.Side
	shares  int64
}

func parseCommand(line string) (command, error) {
	tokens := strings.Split(strings.TrimSpace(line), delimiter)
	cmd := command{name: tokens[0]}
	switch cmd.name {
	case cmdGetState, cmdGetTickers:
		return cmd, nil
	case cmdGetQuote:
		if len(tokens) != 2 {
			return cmd, fmt.Errorf("malformed quote command %q", line)
		}
		cmd.ticker = tokens[1]
		return cmd, nil
	case cmdExecuteTrade:
		if len(tokens) != 5 {
			return cmd, fmt.Errorf("malformed trade command %q", line)
		}
		switch tokens[1] {
		case buyOrder:
			cmd.side = domain.SideBuy
		case sellOrder:
			cmd.side = domain.SideSell
		default:
			return cmd, fmt.Errorf("unknown order type %q", tokens[1])
		}
		cmd.account = tokens[2]
		cmd.ticker = tokens[3]
		n, err := strconv.ParseInt(tokens[4], 10, 64)
		if err != nil {
			return cmd, fmt.Errorf("parsing share count %q: %w", tokens[4], err)
		}
		cmd.shares = n
		return cmd, nil
	default:
		return cmd, fmt.Errorf("unknown command %q", line)
	}
}

func encodeQuoteCommand(ticker string) string {
	return cmdGetQuote + delimiter + ticker
}

func encodeTradeCommand(o *domain.Order) string {
	side := sellOrder
	if o.IsBuy() {
		side = buyOrder
	}
	return strings.Join([]string{
		cmdExecuteTrade, side, o.AccountID, o.Ticker, strconv.FormatInt(o.Shares, 10),
	}, delimiter)
}

func encodeEvent(e Event) string {
	switch e.Type {
	case EventOpened:
		return eventOpen
	case EventClosed:
		return eventClosed
	default:
		return eventPriceChange + delimiter + e.Ticker + delimiter + strconv.FormatInt(e.Price, 10)
	}
}

func decodeEvent(msg string) (Event, error) {
	tokens := strings.Split(strings.TrimSpace(msg), delimiter)
	switch tokens[0] {
	case eventOpen:
		return Event{Type: EventOpened}, nil
	case eventClosed:
		return Event{Type: EventClosed}, nil
	case eventPriceChange:
		if len(tokens) != 3 {
			return Event{}, fmt.Errorf("malformed price event %q", msg)
		}
		p, err := strconv.ParseInt(tokens[2], 10, 64)
		if err != nil {
			return Event{}, fmt.Errorf("parsing price %q: %w", tokens[2], err)
		}
		return Event{Type: EventPriceChanged, Ticker: tokens[1], Price: p}, nil
	default:
		return Event{}, fmt.Errorf("unknown event %q", msg)
	}
}
