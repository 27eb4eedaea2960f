package di

import (
	"context"
	"fmt"
	"time"

	"WhalePulse/internal/alerts"
	"WhalePulse/internal/domain/repository"
	"WhalePulse/internal/handler/api"
	"WhalePulse/internal/ledger"
	"WhalePulse/internal/realtime"
	internalrepo "WhalePulse/internal/repository"
	icache "WhalePulse/internal/service/cache"
	"WhalePulse/internal/services/features"
	"WhalePulse/internal/services/scoring"
	"WhalePulse/internal/trading"
	"WhalePulse/internal/usecase"
	pkgch "WhalePulse/pkg/clickhouse"
	"WhalePulse/pkg/config"
	xhttp "WhalePulse/pkg/http"
	pkgkafka "WhalePulse/pkg/kafka"
	applogger "WhalePulse/pkg/logger"
	"WhalePulse/pkg/metrics"
	"WhalePulse/pkg/server"
)

// ProvideLogger creates the structured application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := cfg.Log.Level
	if level == "" {
		level = "info"
	}
	format := cfg.Log.Format
	if format == "" {
		format = "json"
	}
	output := cfg.Log.Output
	if output == "" {
		output = "stdout"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: output})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideArchive creates the ClickHouse archive and ensures its schema.
func ProvideArchive(chClient *pkgch.Client, log *applogger.Logger) (repository.Archive, error) {
	archive := internalrepo.NewCHArchive(chClient)
	archive.SetLogger(log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		return nil, fmt.Errorf("archive schema: %w", err)
	}
	return archive, nil
}

// logPublisher adapts the Kafka producer to the log collector's sink.
type logPublisher struct {
	p *pkgkafka.Producer
}

func (lp logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return lp.p.Publish(ctx, topic, nil, payload)
}

// ProvideKafkaProducer creates a Kafka producer. When a log aggregation
// topic is configured, repeated log lines are batched onto it.
func ProvideKafkaProducer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	if topic := cfg.Log.AggregateTopic; topic != "" {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          topic,
			Publisher:      logPublisher{p: producer},
		})
	}
	return producer, nil
}

// ProvideEventPublisher creates the outbound events publisher.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NoopHook{})
	return consumer, nil
}

// ProvideRecordStore creates the bounded in-memory window store.
func ProvideRecordStore(cfg *config.Config) *internalrepo.RecordStore {
	return internalrepo.NewRecordStore(cfg.Pipeline.Retention, 0)
}

// ProvideLedger creates the paper account.
func ProvideLedger(cfg *config.Config) *ledger.Ledger {
	balance := cfg.Trading.InitialBalance
	if balance == 0 {
		balance = 100_000
	}
	return ledger.New(balance)
}

// ProvideHub creates the websocket broadcast hub with the Kafka mirror
// attached.
func ProvideHub(cfg *config.Config, m repository.Metrics, log *applogger.Logger, pub repository.EventPublisher) *realtime.Hub {
	hub := realtime.NewHub(realtime.Config{
		ObserverBuffer: cfg.Realtime.ObserverBuffer,
		InboundBuffer:  cfg.Realtime.InboundBuffer,
	}, m, log)
	hub.SetMirror(pub)
	return hub
}

// ProvideThrottler creates the price broadcast throttler.
func ProvideThrottler(hub *realtime.Hub, cfg *config.Config) *realtime.PriceThrottler {
	return realtime.NewPriceThrottler(hub, cfg.Realtime.PriceInterval)
}

// ProvideBytesCache selects a layered Redis cache when enabled, in-process
// memory otherwise.
func ProvideBytesCache(cfg *config.Config) (icache.BytesCache, error) {
	if cfg.Redis.Enabled {
		return icache.NewRedisBacked(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return icache.NewMemoryBacked(), nil
}

// ProvideAlertChannels builds the configured notification channels. Order
// matters: the first channel is the low-priority target.
func ProvideAlertChannels(cfg *config.Config) []alerts.Channel {
	client := xhttp.NewClient(xhttp.WithTimeout(cfg.Alerts.ChannelTimeout))
	var channels []alerts.Channel
	if cfg.Alerts.Telegram.Enabled {
		channels = append(channels, alerts.NewTelegramChannel(cfg.Alerts.Telegram.BotToken, cfg.Alerts.Telegram.ChatID, client))
	}
	if cfg.Alerts.Webhook.Enabled {
		channels = append(channels, alerts.NewWebhookChannel(cfg.Alerts.Webhook.URL, client))
	}
	return channels
}

// ProvideDispatcher creates the alert dispatcher.
func ProvideDispatcher(cfg *config.Config, channels []alerts.Channel, archive repository.Archive, m repository.Metrics, log *applogger.Logger) *alerts.Dispatcher {
	return alerts.NewDispatcher(alerts.Config{
		QueueSize:      cfg.Alerts.QueueSize,
		MaxAttempts:    cfg.Alerts.MaxAttempts,
		ChannelTimeout: cfg.Alerts.ChannelTimeout,
		RetryInterval:  cfg.Alerts.RetryInterval,
	}, channels, archive, m, log)
}

// ProvideSink routes controller output to the hub, archive, and dispatcher.
func ProvideSink(hub *realtime.Hub, dispatcher *alerts.Dispatcher, archive repository.Archive, m repository.Metrics) trading.Sink {
	return usecase.NewEventSink(hub, dispatcher, archive, m)
}

// ProvideController creates the trading controller.
func ProvideController(cfg *config.Config, lg *ledger.Ledger, sink trading.Sink, m repository.Metrics, log *applogger.Logger) *trading.Controller {
	return trading.NewController(trading.Config{
		MinConfidence:    cfg.Trading.MinConfidence,
		MaxRiskScore:     cfg.Trading.MaxRiskScore,
		MaxOpenPositions: cfg.Trading.MaxOpenPositions,
		PositionFraction: cfg.Trading.PositionFraction,
		Cooldown:         cfg.Trading.Cooldown,
		AutoTrading:      cfg.Trading.AutoTrading,
	}, lg, sink, m, log)
}

// ProvideNormalizer creates the feature normalizer.
func ProvideNormalizer(cfg *config.Config) *features.Normalizer {
	return features.NewNormalizer(features.NormalizerConfig{
		MinWhaleRecords:     cfg.Pipeline.MinWhaleRecords,
		MinSentimentRecords: cfg.Pipeline.MinSentimentRecords,
	})
}

// ProvideScorer creates the scorer, seeded past persisted signal ids so
// ordering survives restarts.
func ProvideScorer(cfg *config.Config, archive repository.Archive, log *applogger.Logger) *scoring.Scorer {
	scorer := scoring.New(scoring.Config{
		LowSentiment:        cfg.Scoring.LowSentiment,
		HighSentiment:       cfg.Scoring.HighSentiment,
		VelocityRising:      cfg.Scoring.VelocityRising,
		AccumulationUSD:     cfg.Scoring.AccumulationUSD,
		FlowScaleUSD:        cfg.Scoring.FlowScaleUSD,
		MinConfidence:       cfg.Scoring.MinConfidence,
		MaxConfidence:       cfg.Scoring.MaxConfidence,
		DisagreementCeiling: cfg.Scoring.DisagreementCeiling,
		TargetMultiplier:    cfg.Scoring.TargetMultiplier,
		StopMultiplier:      cfg.Scoring.StopMultiplier,
		MinExpectedMove:     cfg.Scoring.MinExpectedMove,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if lastID, err := archive.LastSignalID(ctx); err != nil {
		log.Warn("signal id seed unavailable", applogger.Error(err))
	} else {
		scorer.Seed(lastID)
	}
	return scorer
}

// ProvideCycle creates the periodic analysis loop.
func ProvideCycle(
	cfg *config.Config,
	store *internalrepo.RecordStore,
	normalizer *features.Normalizer,
	scorer *scoring.Scorer,
	controller *trading.Controller,
	lg *ledger.Ledger,
	archive repository.Archive,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.Cycle {
	return usecase.NewCycle(usecase.CycleConfig{
		Interval:         cfg.Pipeline.CycleInterval,
		Window:           cfg.Pipeline.Window,
		VolatilityWindow: cfg.Pipeline.VolatilityWindow,
		SnapshotInterval: cfg.Pipeline.SnapshotInterval,
	}, store, normalizer, scorer, controller, lg, archive, m, log)
}

// ProvideMessageHandlers builds the inbound topic handlers.
func ProvideMessageHandlers(
	cfg *config.Config,
	store *internalrepo.RecordStore,
	controller *trading.Controller,
	throttler *realtime.PriceThrottler,
	m repository.Metrics,
) []pkgkafka.MessageHandler {
	return []pkgkafka.MessageHandler{
		usecase.NewWhaleHandler(cfg.Kafka.WhaleTopic, store, m),
		usecase.NewSentimentHandler(cfg.Kafka.SentimentTopic, store, m),
		usecase.NewTickHandler(cfg.Kafka.TickTopic, store, controller, throttler, m),
	}
}

// ProvideHTTPHandler creates the Echo route handler.
func ProvideHTTPHandler(
	log *applogger.Logger,
	controller *trading.Controller,
	lg *ledger.Ledger,
	archive repository.Archive,
	hub *realtime.Hub,
	cache icache.BytesCache,
) xhttp.Handler {
	return api.NewTradingEchoHandler(log, controller, lg, archive, hub, cache)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	cycle *usecase.Cycle,
	dispatcher *alerts.Dispatcher,
	hub *realtime.Hub,
	throttler *realtime.PriceThrottler,
	archive repository.Archive,
	publisher repository.EventPublisher,
	httpHandler xhttp.Handler,
) *server.App {
	return server.New(cfg, log, consumer, handlers, cycle, dispatcher, hub, throttler, archive, publisher, httpHandler)
}
