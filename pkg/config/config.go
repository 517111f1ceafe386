package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"OptEdge/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"500ms"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level     string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string        `yaml:"format" default:"console" validate:"oneof=console json"`
		Output    string        `yaml:"output" default:"stdout"`
		Collect   bool          `yaml:"collect"`
		Interval  time.Duration `yaml:"collect_interval" default:"30s"`
		Threshold int           `yaml:"collect_threshold" default:"100"`
	} `yaml:"log"`
	Engine   Engine `yaml:"engine"`
	Strategy struct {
		Mode string `yaml:"mode" default:"bollinger" validate:"oneof=bollinger market_making"`
	} `yaml:"strategy"`
	Kafka struct {
		Brokers      []string `yaml:"brokers" validate:"required,min=1"`
		EventsTopic  string   `yaml:"events_topic" default:"session.events" validate:"required"`
		OrdersTopic  string   `yaml:"orders_topic" default:"session.orders" validate:"required"`
		AlertsTopic  string   `yaml:"alerts_topic" default:"engine.alerts" validate:"required"`
		LogsTopic    string   `yaml:"logs_topic" default:"engine.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"5ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"optedge"`
			RetryMax   int           `yaml:"retry_max" default:"0"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"session.events.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Pipeline struct {
		BufferSize int `yaml:"buffer_size" default:"1024" validate:"gt=0"`
		MaxRPS     int `yaml:"max_rps"`
	} `yaml:"pipeline"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"optedge"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Cache struct {
		TTL   time.Duration `yaml:"ttl" default:"1s"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	RateLimit struct {
		Capacity     float64 `yaml:"capacity" default:"20"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"10"`
	} `yaml:"rate_limit"`
}

// Engine holds the pricing, risk and strategy parameters.
type Engine struct {
	ReferenceSpot    float64       `yaml:"reference_spot" default:"100" validate:"gt=0"`
	UnderlyingSpot   bool          `yaml:"underlying_spot"`
	Rate             float64       `yaml:"rate"`
	SessionLength    time.Duration `yaml:"session_length" default:"450s" validate:"gt=0"`
	ContractTerm     float64       `yaml:"contract_term" default:"0.0833333333333333" validate:"gt=0"`
	Window           int           `yaml:"window" default:"10" validate:"gte=2"`
	BandK            float64       `yaml:"band_k" default:"2" validate:"gt=0"`
	IVBuyMultiplier  float64       `yaml:"iv_buy_multiplier" default:"0.8" validate:"gt=0"`
	IVSellMultiplier float64       `yaml:"iv_sell_multiplier" default:"1.2" validate:"gt=0"`
	SpreadMultiplier float64       `yaml:"spread_multiplier" default:"2.5" validate:"gt=0"`
	Clip             int64         `yaml:"clip" default:"10" validate:"gt=0"`
	Skew             float64       `yaml:"skew" default:"0.3" validate:"gte=0"`
	TimeValueEdge    bool          `yaml:"time_value_edge" default:"true"`
	MinEdge          float64       `yaml:"min_edge" default:"0.5" validate:"gte=0"`
	EdgeFraction     float64       `yaml:"edge_fraction" default:"0.1" validate:"gte=0"`
	DeltaMax         float64       `yaml:"delta_max" default:"1000" validate:"gt=0"`
	VegaMax          float64       `yaml:"vega_max" default:"9000" validate:"gt=0"`
	HardStop         bool          `yaml:"hard_stop"`
	OptionsLimit     int64         `yaml:"options_limit" default:"5000" validate:"gt=0"`
	FuturesLimit     int64         `yaml:"futures_limit" default:"2500" validate:"gt=0"`
	TradeFee         float64       `yaml:"trade_fee" validate:"gte=0"`
	StartingCash     float64       `yaml:"starting_cash" default:"1000000"`
	CancelStale      bool          `yaml:"cancel_stale" default:"true"`
	WindDown         time.Duration `yaml:"wind_down"`
	Workers          int           `yaml:"workers" default:"4" validate:"gt=0"`
	AlertHistory     int           `yaml:"alert_history" default:"256" validate:"gt=0"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, decodes YAML over them and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_EVENTS_TOPIC"); v != "" {
		c.Kafka.EventsTopic = v
	}
	if v := os.Getenv("STRATEGY_MODE"); v != "" {
		c.Strategy.Mode = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("SERVER_PORT"), c.Server.Port)
	c.Engine.ReferenceSpot = util.ParseFloatDefault(os.Getenv("ENGINE_REFERENCE_SPOT"), c.Engine.ReferenceSpot)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags plus rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Engine.IVBuyMultiplier >= c.Engine.IVSellMultiplier {
		return fmt.Errorf("engine.iv_buy_multiplier must be below engine.iv_sell_multiplier")
	}
	if c.Engine.WindDown >= c.Engine.SessionLength {
		return fmt.Errorf("engine.wind_down must be shorter than engine.session_length")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
