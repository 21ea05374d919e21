package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"brokerage/pkg/brokerclient"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	serverURL := "http://localhost:8080"
	if v := os.Getenv("BROKERAGE_URL"); v != "" {
		serverURL = v
	}
	flag.StringVar(&serverURL, "url", serverURL, "broker-server HTTP base URL")
	grpcAddr := flag.String("grpc", os.Getenv("BROKERAGE_GRPC"), "use the gRPC API at this address for quote, order and fills")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: broker-cli [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version                                   Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status                                    Show broker status\n")
		fmt.Fprintf(os.Stderr, "  quote <ticker>                            Show the current price\n")
		fmt.Fprintf(os.Stderr, "  order <buy|sell> <account> <ticker> <shares> [stop-price]\n")
		fmt.Fprintf(os.Stderr, "                                            Place a market or stop order\n")
		fmt.Fprintf(os.Stderr, "  account create <name> <password> <balance>\n")
		fmt.Fprintf(os.Stderr, "  account login <name> <password>\n")
		fmt.Fprintf(os.Stderr, "  account delete <name>\n")
		fmt.Fprintf(os.Stderr, "  fills                                     Stream fills until interrupted\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := brokerclient.NewClient(serverURL)
	var gc *brokerclient.GRPCClient
	if *grpcAddr != "" {
		var err error
		if gc, err = brokerclient.DialGRPC(*grpcAddr); err != nil {
			fatal(err)
		}
		defer gc.Close()
	}

	switch args[0] {
	case "version":
		fmt.Printf("broker-cli %s\n", version)

	case "status":
		st, err := c.GetStatus(ctx)
		if err != nil {
			fatal(err)
		}
		printJSON(st)

	case "quote":
		need(args, 2)
		var price int64
		var err error
		if gc != nil {
			price, err = gc.GetQuote(ctx, args[1])
		} else {
			var q brokerclient.Quote
			q, err = c.GetQuote(ctx, args[1])
			price = q.Price
		}
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s %s\n", args[1], cents(price))

	case "order":
		need(args, 5)
		o := brokerclient.Order{
			Side:    brokerclient.Side(args[1]),
			Account: args[2],
			Ticker:  args[3],
			Shares:  parseInt(args[4]),
		}
		if len(args) > 5 {
			o.Price = parseInt(args[5])
		}
		var id uint64
		var err error
		if gc != nil {
			id, err = gc.PlaceOrder(ctx, o)
		} else {
			id, err = c.PlaceOrder(ctx, o)
		}
		if err != nil {
			fatal(err)
		}
		fmt.Printf("order %d accepted\n", id)

	case "account":
		need(args, 3)
		runAccount(ctx, c, args[1:])

	case "fills":
		show := func(f brokerclient.Fill) {
			fmt.Printf("%s  #%d %s %s %d @ %s\n",
				f.ExecutedAt.Local().Format(time.TimeOnly), f.OrderID, f.AccountID, f.Side, f.Shares, cents(f.Price))
		}
		var err error
		if gc != nil {
			err = gc.StreamFills(ctx, show)
		} else {
			err = c.StreamFills(ctx, show)
		}
		if err != nil {
			fatal(err)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

func runAccount(ctx context.Context, c *brokerclient.Client, args []string) {
	switch args[0] {
	case "create":
		need(args, 4)
		a, err := c.CreateAccount(ctx, args[1], args[2], parseInt(args[3]))
		if err != nil {
			fatal(err)
		}
		fmt.Printf("created %s with %s\n", a.Name, cents(a.Balance))
	case "login":
		need(args, 3)
		a, err := c.Login(ctx, args[1], args[2])
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s balance %s\n", a.Name, cents(a.Balance))
	case "delete":
		if err := c.DeleteAccount(ctx, args[1]); err != nil {
			fatal(err)
		}
		fmt.Printf("deleted %s\n", args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown account command: %s\n", args[0])
		os.Exit(1)
	}
}

func need(args []string, n int) {
	if len(args) < n {
		flag.Usage()
		os.Exit(1)
	}
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fatal(fmt.Errorf("invalid number %q", s))
	}
	return n
}

// cents formats an amount in cents as dollars.
func cents(v int64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
