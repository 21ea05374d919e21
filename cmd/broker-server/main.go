package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

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

func main() {
	_ = godotenv.Load() // loads .env from current directory

	cfgPath := os.Getenv("BROKERAGE_CONFIG")
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("broker-server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	mode, err := queue.ParseMode(cfg.Broker.Strategy)
	if err != nil {
		return err
	}

	path := cfg.Storage.SQLitePath
	if cfg.Storage.Backend == store.BackendPebble {
		path = cfg.Storage.PebbleDir
	}
	dao, err := store.OpenAccounts(cfg.Storage.Backend, path)
	if err != nil {
		return fmt.Errorf("opening account store: %w", err)
	}
	accounts := account.NewManager(dao, log)

	ex, closeExchange, err := openExchange(ctx, cfg, log)
	if err != nil {
		accounts.Close()
		return err
	}
	defer closeExchange()

	feed := fills.NewFeed(log)
	defer feed.Close()
	recorders := []broker.FillRecorder{feed}
	if cfg.Storage.DataDir != "" {
		journal := store.NewParquetStore(cfg.Storage.DataDir)
		journal.Logger = log
		go journal.Run(ctx)
		defer func() {
			if err := journal.Close(); err != nil {
				log.Error("flushing fill journal", "pending", journal.Pending(), "error", err)
			}
		}()
		recorders = append(recorders, journal)
		log.Info("journaling fills", "data_dir", cfg.Storage.DataDir)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := fills.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		recorders = append(recorders, kp)
		log.Info("publishing fills", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	factory := broker.Factory{
		Mode:            mode,
		Workers:         cfg.Broker.Workers,
		ShutdownTimeout: cfg.Broker.ShutdownTimeout,
		Logger:          log,
	}
	b, err := factory.NewBroker(cfg.Broker.Name, accounts, ex, recorders...)
	if err != nil {
		accounts.Close()
		return fmt.Errorf("creating broker: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Error("closing broker", "error", err)
		}
	}()

	log.Info("broker-server starting",
		"broker", cfg.Broker.Name,
		"strategy", mode,
		"exchange", cfg.Exchange.Mode,
		"storage", cfg.Storage.Backend,
		"http_port", cfg.Server.Port,
		"grpc_port", cfg.Server.GRPCPort,
	)
	return api.NewServer(cfg, b, feed, log).ListenAndServe(ctx)
}

// openExchange builds the configured exchange. The returned func releases it.
func openExchange(ctx context.Context, cfg *config.Config, log *slog.Logger) (exchange.Exchange, func(), error) {
	switch cfg.Exchange.Mode {
	case "network":
		p, err := exchange.DialNetworkProxy(ctx, cfg.Exchange.CommandsAddr, cfg.Exchange.EventsAddr, exchange.ProxyOptions{}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to exchange: %w", err)
		}
		return p, func() { p.Close() }, nil

	case "alpaca":
		a := exchange.NewAlpacaExchange(exchange.AlpacaOptions{
			APIKey:       cfg.Alpaca.APIKey,
			APISecret:    cfg.Alpaca.APISecret,
			BaseURL:      cfg.Alpaca.BaseURL,
			DataURL:      cfg.Alpaca.DataURL,
			Tickers:      cfg.Exchange.Symbols(),
			PollInterval: cfg.Exchange.PollInterval,
			RateLimit:    cfg.Alpaca.RateLimitPerMin,
		}, log)
		if err := a.Start(ctx); err != nil {
			return nil, nil, err
		}
		return a, func() { a.Close() }, nil

	default:
		quotes := make([]domain.Quote, len(cfg.Exchange.Tickers))
		for i, t := range cfg.Exchange.Tickers {
			quotes[i] = domain.Quote{Ticker: t.Symbol, Price: t.Price}
		}
		sim := exchange.NewSimulator(quotes...)
		sim.Open()
		if cfg.Exchange.WalkStep > 0 && cfg.Exchange.PollInterval > 0 {
			go walk(ctx, sim, cfg.Exchange.PollInterval, cfg.Exchange.WalkStep)
		}
		return sim, func() {}, nil
	}
}

func walk(ctx context.Context, sim *exchange.Simulator, every time.Duration, step int64) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sim.Walk(rng, step)
		}
	}
}
