package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the brokerage.
type Config struct {
	Broker   Broker   `yaml:"broker"`
	Storage  Storage  `yaml:"storage"`
	Exchange Exchange `yaml:"exchange"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Server   Server   `yaml:"server"`
	Kafka    Kafka    `yaml:"kafka"`
	Logging  Logging  `yaml:"logging"`
}

// Broker selects the dispatch strategy and shutdown behaviour.
type Broker struct {
	Name            string        `yaml:"name"`
	Strategy        string        `yaml:"strategy"` // inline, dedicated or pooled
	Workers         int           `yaml:"workers"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Storage holds paths for data persistence.
type Storage struct {
	Backend    string `yaml:"backend"` // memory, sqlite or pebble
	SQLitePath string `yaml:"sqlite_path"`
	PebbleDir  string `yaml:"pebble_dir"`
	DataDir    string `yaml:"data_dir"` // fill journal root; empty disables it
}

// Exchange selects and addresses the exchange.
type Exchange struct {
	Mode         string        `yaml:"mode"` // simulator, network or alpaca
	CommandsAddr string        `yaml:"commands_addr"`
	EventsAddr   string        `yaml:"events_addr"`
	ListenAddr   string        `yaml:"listen_addr"`
	Tickers      []Ticker      `yaml:"tickers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	WalkStep     int64         `yaml:"walk_step"`
}

// Ticker is a listed instrument and its starting price in cents.
type Ticker struct {
	Symbol string `yaml:"symbol"`
	Price  int64  `yaml:"price"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	DataURL         string `yaml:"data_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Kafka configures the fill publisher. No brokers disables it.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Symbols returns the configured ticker symbols in order.
func (e Exchange) Symbols() []string {
	out := make([]string, len(e.Tickers))
	for i, t := range e.Tickers {
		out[i] = t.Symbol
	}
	return out
}

// ---------------------------------------------------------------------------
// Defaults and validation
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is given: an inline
// broker on an in-memory simulator.
func Default() *Config {
	return &Config{
		Broker: Broker{
			Name:            "brokerage",
			Strategy:        "inline",
			Workers:         4,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: Storage{
			Backend:    "memory",
			SQLitePath: "brokerage.db",
			PebbleDir:  "brokerage-pebble",
		},
		Exchange: Exchange{
			Mode:         "simulator",
			CommandsAddr: "127.0.0.1:4444",
			EventsAddr:   "239.1.1.1:5555",
			ListenAddr:   ":4444",
			Tickers: []Ticker{
				{Symbol: "AAPL", Price: 19000},
				{Symbol: "MSFT", Price: 42000},
				{Symbol: "GOOG", Price: 17000},
			},
			PollInterval: 5 * time.Second,
			WalkStep:     25,
		},
		Alpaca: Alpaca{
			BaseURL:         "https://paper-api.alpaca.markets",
			DataURL:         "https://data.alpaca.markets",
			RateLimitPerMin: 200,
		},
		Server: Server{
			Host:     "0.0.0.0",
			Port:     8080,
			GRPCPort: 9090,
		},
		Kafka:   Kafka{Topic: "brokerage.fills"},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Validate checks enumerated values and required fields.
func (c *Config) Validate() error {
	var errs []error
	switch c.Broker.Strategy {
	case "inline", "dedicated", "pooled":
	default:
		errs = append(errs, fmt.Errorf("broker.strategy %q: want inline, dedicated or pooled", c.Broker.Strategy))
	}
	if c.Broker.Name == "" {
		errs = append(errs, errors.New("broker.name is required"))
	}
	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite backend"))
		}
	case "pebble":
		if c.Storage.PebbleDir == "" {
			errs = append(errs, errors.New("storage.pebble_dir is required for the pebble backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: want memory, sqlite or pebble", c.Storage.Backend))
	}
	switch c.Exchange.Mode {
	case "simulator", "network":
	case "alpaca":
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			errs = append(errs, errors.New("alpaca credentials are required for the alpaca exchange"))
		}
	default:
		errs = append(errs, fmt.Errorf("exchange.mode %q: want simulator, network or alpaca", c.Exchange.Mode))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when kafka.brokers is set"))
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over Default,
// and then applies environment variable overrides. An empty path loads
// only defaults and overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BROKER_STRATEGY"); v != "" {
		cfg.Broker.Strategy = v
	}
	if v := os.Getenv("BROKER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Workers = n
		}
	}

	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("PEBBLE_DIR"); v != "" {
		cfg.Storage.PebbleDir = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("EXCHANGE_MODE"); v != "" {
		cfg.Exchange.Mode = v
	}
	if v := os.Getenv("EXCHANGE_COMMANDS_ADDR"); v != "" {
		cfg.Exchange.CommandsAddr = v
	}
	if v := os.Getenv("EXCHANGE_EVENTS_ADDR"); v != "" {
		cfg.Exchange.EventsAddr = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Standard Alpaca env vars, highest priority.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
