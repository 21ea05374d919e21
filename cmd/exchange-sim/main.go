package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"brokerage/internal/config"
	"brokerage/internal/domain"
	"brokerage/internal/exchange"
	"brokerage/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("BROKERAGE_CONFIG")
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML config file")
	every := flag.Duration("walk", time.Second, "price random-walk interval; 0 disables price moves")
	useCalendar := flag.Bool("calendar", false, "open and close with NYSE regular hours instead of staying open")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(log)

	quotes := make([]domain.Quote, len(cfg.Exchange.Tickers))
	for i, t := range cfg.Exchange.Tickers {
		quotes[i] = domain.Quote{Ticker: t.Symbol, Price: t.Price}
	}
	sim := exchange.NewSimulator(quotes...)

	adapter, err := exchange.NewNetworkAdapter(sim, cfg.Exchange.ListenAddr, cfg.Exchange.EventsAddr, log)
	if err != nil {
		log.Error("starting exchange adapter", "error", err)
		os.Exit(1)
	}
	log.Info("exchange-sim listening",
		"commands", adapter.Addr().String(),
		"events", cfg.Exchange.EventsAddr,
		"tickers", sim.Tickers(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cal := util.NewTradingCalendar()
	syncState := func(now time.Time) {
		open := !*useCalendar || cal.IsMarketOpen(now)
		switch {
		case open && !sim.IsOpen():
			sim.Open()
			log.Info("market opened")
		case !open && sim.IsOpen():
			sim.CloseMarket()
			log.Info("market closed", "next_open", cal.NextOpen(now))
		}
	}
	syncState(time.Now())

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	interval := *every
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case now := <-t.C:
			syncState(now)
			if *every > 0 && sim.IsOpen() {
				sim.Walk(rng, cfg.Exchange.WalkStep)
			}
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := adapter.Close(shutdownCtx); err != nil {
		log.Error("closing exchange adapter", "error", err)
	}
}
