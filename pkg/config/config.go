package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		// AggregateTopic, when set, batches repeated log lines onto Kafka.
		AggregateTopic string `yaml:"aggregate_topic"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Kafka struct {
		Brokers        []string `yaml:"brokers"`
		WhaleTopic     string   `yaml:"whale_topic"`
		SentimentTopic string   `yaml:"sentiment_topic"`
		TickTopic      string   `yaml:"tick_topic"`
		EventTopic     string   `yaml:"event_topic"`
		RequiredAcks   int      `yaml:"required_acks"`
		Compression    string   `yaml:"compression"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			BatchTimeout time.Duration `yaml:"batch_timeout"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Pipeline struct {
		CycleInterval       time.Duration `yaml:"cycle_interval"`
		Window              time.Duration `yaml:"window"`
		VolatilityWindow    int           `yaml:"volatility_window"`
		SnapshotInterval    time.Duration `yaml:"snapshot_interval"`
		Retention           time.Duration `yaml:"retention"`
		MinWhaleRecords     int           `yaml:"min_whale_records"`
		MinSentimentRecords int           `yaml:"min_sentiment_records"`
	} `yaml:"pipeline"`
	Scoring struct {
		LowSentiment        float64 `yaml:"low_sentiment"`
		HighSentiment       float64 `yaml:"high_sentiment"`
		VelocityRising      float64 `yaml:"velocity_rising"`
		AccumulationUSD     float64 `yaml:"accumulation_usd"`
		FlowScaleUSD        float64 `yaml:"flow_scale_usd"`
		MinConfidence       float64 `yaml:"min_confidence"`
		MaxConfidence       float64 `yaml:"max_confidence"`
		DisagreementCeiling float64 `yaml:"disagreement_ceiling"`
		TargetMultiplier    float64 `yaml:"target_multiplier"`
		StopMultiplier      float64 `yaml:"stop_multiplier"`
		MinExpectedMove     float64 `yaml:"min_expected_move"`
	} `yaml:"scoring"`
	Trading struct {
		InitialBalance   float64       `yaml:"initial_balance"`
		MinConfidence    float64       `yaml:"min_confidence"`
		MaxRiskScore     float64       `yaml:"max_risk_score"`
		MaxOpenPositions int           `yaml:"max_open_positions"`
		PositionFraction float64       `yaml:"position_fraction"`
		Cooldown         time.Duration `yaml:"cooldown"`
		AutoTrading      bool          `yaml:"auto_trading"`
	} `yaml:"trading"`
	Alerts struct {
		QueueSize      int           `yaml:"queue_size"`
		MaxAttempts    int           `yaml:"max_attempts"`
		ChannelTimeout time.Duration `yaml:"channel_timeout"`
		RetryInterval  time.Duration `yaml:"retry_interval"`
		Telegram       struct {
			Enabled  bool   `yaml:"enabled"`
			BotToken string `yaml:"bot_token"`
			ChatID   string `yaml:"chat_id"`
		} `yaml:"telegram"`
		Webhook struct {
			Enabled bool   `yaml:"enabled"`
			URL     string `yaml:"url"`
		} `yaml:"webhook"`
	} `yaml:"alerts"`
	Realtime struct {
		ObserverBuffer int           `yaml:"observer_buffer"`
		InboundBuffer  int           `yaml:"inbound_buffer"`
		PriceInterval  time.Duration `yaml:"price_interval"`
	} `yaml:"realtime"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
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

	// Override with environment variables
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Alerts.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Alerts.Telegram.ChatID = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		c.Alerts.Webhook.URL = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Kafka.WhaleTopic == "" || c.Kafka.SentimentTopic == "" || c.Kafka.TickTopic == "" {
		return fmt.Errorf("kafka inbound topics are required")
	}
	if c.Kafka.EventTopic == "" {
		return fmt.Errorf("kafka.event_topic is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Alerts.Telegram.Enabled && (c.Alerts.Telegram.BotToken == "" || c.Alerts.Telegram.ChatID == "") {
		return fmt.Errorf("alerts.telegram requires bot_token and chat_id when enabled")
	}
	if c.Alerts.Webhook.Enabled && c.Alerts.Webhook.URL == "" {
		return fmt.Errorf("alerts.webhook requires url when enabled")
	}
	return nil
}
