package di

import (
	"context"
	"fmt"
	"time"

	"CreditPulse/internal/domain/models"
	"CreditPulse/internal/domain/repository"
	domsvc "CreditPulse/internal/domain/service"
	"CreditPulse/internal/handler/api"
	mid "CreditPulse/internal/middleware"
	internalrepo "CreditPulse/internal/repository"
	"CreditPulse/internal/service/cache"
	"CreditPulse/internal/service/ratelimit"
	"CreditPulse/internal/services/analytics"
	"CreditPulse/internal/usecase"
	pkgch "CreditPulse/pkg/clickhouse"
	"CreditPulse/pkg/config"
	xhttp "CreditPulse/pkg/http"
	pkgkafka "CreditPulse/pkg/kafka"
	applogger "CreditPulse/pkg/logger"
	"CreditPulse/pkg/metrics"
	"CreditPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse and optionally creates the
// schema.
func ProvideClickHouseClient(cfg *config.Config, log *applogger.Logger) (*pkgch.Client, func(), error) {
	ch := cfg.ClickHouse
	opts := []pkgch.ClientOption{
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(ch.MaxOpenConns, ch.MaxIdleConns),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	}
	for k, v := range ch.Settings {
		opts = append(opts, pkgch.WithSetting(k, v))
	}
	client, err := pkgch.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Warn("clickhouse close", applogger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if version, err := client.ServerVersion(ctx); err == nil {
		log.Info("clickhouse connected",
			applogger.String("host", ch.Host),
			applogger.String("database", ch.Database),
			applogger.String("version", version),
		)
	}

	if ch.InitSchema {
		if err := client.InitSchema(ctx, ch.Tables); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		log.Info("clickhouse schema ready", applogger.String("database", ch.Database))
	}
	return client, cleanup, nil
}

// ProvideInputStore reads input rows and price history from ClickHouse.
func ProvideInputStore(client *pkgch.Client, cfg *config.Config, log *applogger.Logger) *internalrepo.CHInputStore {
	s := internalrepo.NewCHInputStore(client.DB(), cfg.ClickHouse.Tables.MarketInputs, cfg.ClickHouse.Tables.DailyPrices)
	s.SetLogger(log)
	return s
}

// ProvideRedisCache returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config, log *applogger.Logger) (*cache.RedisCache, func()) {
	if !cfg.Redis.Enabled {
		return nil, func() {}
	}
	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Prefix:   cfg.Redis.Prefix,
	})
	return rc, func() {
		if err := rc.Close(); err != nil {
			log.Warn("redis close", applogger.Error(err))
		}
	}
}

// ProvideHistoryCache layers an in-process cache over Redis when it is
// enabled, otherwise uses the in-process cache alone.
func ProvideHistoryCache(cfg *config.Config, rc *cache.RedisCache) cache.BytesCache {
	if rc == nil {
		return cache.NewTTLCache(cfg.Redis.L1Size)
	}
	return cache.NewLayeredCache(rc, cfg.Redis.L1Size, cfg.Redis.L1TTL)
}

// ProvideHistoryStore reads metric history from ClickHouse through the cache.
func ProvideHistoryStore(client *pkgch.Client, c cache.BytesCache, cfg *config.Config, log *applogger.Logger) repository.HistoryStore {
	store := internalrepo.NewCHHistoryStore(client.DB(), cfg.ClickHouse.Tables.Metrics)
	cached := internalrepo.NewCachedHistory(store, c, cfg.Redis.TTL)
	cached.SetLogger(log)
	return cached
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(p.Compression),
		pkgkafka.WithRequiredAcks(p.Acks()),
		pkgkafka.WithBatching(p.BatchSize, p.BatchTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			log.Warn("kafka producer close", applogger.Error(err))
		}
	}, nil
}

// ProvideResultSink writes results to ClickHouse and, with Kafka enabled,
// publishes them as well. The cleanup flushes buffered rows.
func ProvideResultSink(client *pkgch.Client, producer *pkgkafka.Producer, cfg *config.Config, log *applogger.Logger) (repository.ResultSink, func()) {
	sinks := []repository.ResultSink{
		internalrepo.NewCHResultSink(client.DB(), cfg.ClickHouse.Tables, cfg.Batch.SinkBatchSize, cfg.Batch.SinkFlush),
	}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaPublisher(producer, internalrepo.KafkaTopics{
			Results:  cfg.Kafka.Topics.Results,
			Signals:  cfg.Kafka.Topics.Signals,
			Failures: cfg.Kafka.Topics.Failures,
		}))
	}
	sink := internalrepo.NewMultiSink(sinks...)
	return sink, func() {
		if err := sink.Close(); err != nil {
			log.Error("result sink close", applogger.Error(err))
		}
	}
}

// ProvideEngine returns the credit analytics engine.
func ProvideEngine() domsvc.CreditEngine {
	return analytics.NewEngine()
}

// ProvideAnalysisOptions resolves the batch section, including scenario
// names, into runner options.
func ProvideAnalysisOptions(cfg *config.Config) (usecase.AnalysisOptions, error) {
	b := cfg.Batch
	opts := usecase.AnalysisOptions{
		Workers:       b.Workers,
		BundleTimeout: b.BundleTimeout,
		ReturnsWindow: b.ReturnsWindow,
		Sensitivity:   b.Runs("sensitivity"),
		Bootstrap:     b.Runs("bootstrap"),
		Stress:        b.Runs("stress"),
		Signal:        b.Runs("signal"),
		RealWorld:     b.Runs("real_world"),
	}
	for _, name := range b.Scenarios {
		sc, ok := analytics.NamedScenario(name)
		if !ok {
			return usecase.AnalysisOptions{}, fmt.Errorf("%w: unknown scenario %q (known: %v)", models.ErrInvalidConfig, name, analytics.ScenarioNames())
		}
		opts.Scenarios = append(opts.Scenarios, sc)
	}
	opts.Scenarios = append(opts.Scenarios, b.ExtraScenarios...)
	return opts, nil
}

// ProvideAnalysisRunner creates the analysis use case.
func ProvideAnalysisRunner(
	engine domsvc.CreditEngine,
	returns repository.ReturnsSource,
	history repository.HistoryStore,
	sink repository.ResultSink,
	m repository.Metrics,
	cfg *config.Config,
	opts usecase.AnalysisOptions,
	log *applogger.Logger,
) *usecase.AnalysisRunner {
	r := usecase.NewAnalysisRunner(engine, returns, history, sink, m, cfg.Analytics, opts)
	r.SetLogger(log)
	return r
}

// ProvideInputGate puts the input gate in front of the runner.
func ProvideInputGate(runner *usecase.AnalysisRunner, m repository.Metrics, cfg *config.Config) *mid.InputGate {
	c := cfg.Kafka.Consumer
	opts := []mid.GateOption{
		mid.WithTransform(mid.UpperTicker),
		mid.WithBufferSize(c.GateBuffer),
	}
	if c.RatePerTicker > 0 {
		opts = append(opts, mid.WithRateLimit(ratelimit.New(float64(c.RateBurst), c.RatePerTicker)))
	}
	return mid.NewInputGate(runner, m, opts...)
}

// ProvideKafkaConsumer returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		pkgkafka.LatencyHook(func(seconds float64) { m.RecordLatency("consume", seconds) }),
	))
	return consumer, nil
}

// ProvideKafkaInputsHandler feeds the inputs topic into the gate.
func ProvideKafkaInputsHandler(cfg *config.Config, gate *mid.InputGate, m repository.Metrics, log *applogger.Logger) *usecase.KafkaInputsHandler {
	return usecase.NewKafkaInputsHandler(cfg.Kafka.Topics.Inputs, gate, m, log)
}

// ProvideOpsHandler exposes health, run report and scenario endpoints.
func ProvideOpsHandler(log *applogger.Logger, runner *usecase.AnalysisRunner, client *pkgch.Client, rc *cache.RedisCache) *api.OpsEchoHandler {
	deps := map[string]api.Pinger{"clickhouse": client.Health}
	if rc != nil {
		deps["redis"] = rc.Ping
	}
	return api.NewOpsEchoHandler(log, runner, deps)
}

// ProvideHTTPServer creates the ops HTTP server.
func ProvideHTTPServer(cfg *config.Config, log *applogger.Logger, ops *api.OpsEchoHandler) *xhttp.Server {
	s := cfg.Server
	return xhttp.NewServer(log, []xhttp.Handler{ops},
		xhttp.WithHost(s.Host),
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithSlowThreshold(s.SlowThreshold),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	inputs repository.InputSource,
	runner *usecase.AnalysisRunner,
	gate *mid.InputGate,
	consumer *pkgkafka.Consumer,
	handler *usecase.KafkaInputsHandler,
	srv *xhttp.Server,
) *server.App {
	if consumer == nil {
		handler = nil
	}
	return server.New(cfg, log, inputs, runner, gate, consumer, handler, srv)
}
