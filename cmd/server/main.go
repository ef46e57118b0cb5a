package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	eventapp "github.com/Kylin-001/HKYG-sub002/internal/application/event"
	paymentapp "github.com/Kylin-001/HKYG-sub002/internal/application/payment"
	reconapp "github.com/Kylin-001/HKYG-sub002/internal/application/reconciliation"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/auth"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/cache"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/config"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/event"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/logger"
	paymentinfra "github.com/Kylin-001/HKYG-sub002/internal/infrastructure/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/persistence"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/scheduler"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/security"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/storage"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/telemetry"
	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/handler"
	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/middleware"
	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/router"

	_ "github.com/Kylin-001/HKYG-sub002/docs"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Payment Core API
//	@version		1.0
//	@description	Payment ledger, provider webhooks, outbox delivery and daily reconciliation.

//	@contact.name	Payments Team
//	@contact.url	https://github.com/Kylin-001/HKYG-sub002

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Operator token. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		TimeFormat:  "2006-01-02T15:04:05.000Z07:00",
		ServiceName: cfg.Telemetry.ServiceName,
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// OTLP log export is teed next to the console core
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	log, err := logger.New(logCfg, telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		LoggerProvider: logProvider,
		Level:          logger.ParseLevel(cfg.Log.Level),
	}))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = log.Sync()
	}()
	defer shutdownWithTimeout(log, "log exporter", logProvider.Shutdown)

	log.Info("Starting payment core",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdownWithTimeout(log, "tracer provider", tracerProvider.Shutdown)

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer shutdownWithTimeout(log, "meter provider", meterProvider.Shutdown)

	metrics, err := telemetry.NewPaymentMetrics(meterProvider.Meter("paycore"))
	if err != nil {
		log.Fatal("Failed to register payment metrics", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingServerAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		ProfileCPU:        true,
		ProfileAlloc:      true,
		ProfileInuse:      true,
		ProfileGoroutines: true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() && cfg.Telemetry.ProfilingSpanProfiles {
		tracerProvider.EnableSpanProfiles()
	}

	// Database with query spans
	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh

	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithZapLogger(log),
		persistence.WithTracing(telemetry.NewDBTracingPlugin(dbTracing, log)),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Locks and idempotency
	backends, err := cache.NewFactory(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	},
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.Redis.AllowInMemoryFallback && !cfg.App.IsProduction()),
	).Create()
	if err != nil {
		log.Fatal("Failed to initialize lock and idempotency backends", zap.Error(err))
	}
	defer func() {
		if err := backends.Close(); err != nil {
			log.Error("Error closing cache backends", zap.Error(err))
		}
	}()

	var tokenBlacklist auth.TokenBlacklist = auth.NewInMemoryTokenBlacklist()
	if backends.Client != nil {
		tokenBlacklist = auth.NewRedisTokenBlacklist(backends.Client, "")
	}

	// Outbox and broker
	eventSerializer := event.NewEventSerializer()
	event.RegisterAllEvents(eventSerializer)
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	outboxPublisher := event.NewOutboxPublisher(eventSerializer, cfg.Event.MaxRetries)

	broker, err := newBroker(ctx, cfg, backends.Client, metrics, log)
	if err != nil {
		log.Fatal("Failed to create message broker", zap.Error(err))
	}

	// Gateways
	gateways, err := newGatewayRegistry(cfg, db, metrics, log)
	if err != nil {
		log.Fatal("Failed to configure payment gateways", zap.Error(err))
	}

	// Application services
	riskControl := newRiskControl(cfg, backends.Counters, log)
	ledgerStore := persistence.NewGormLedgerStore(db.DB, outboxPublisher)
	ledgerService := paymentapp.NewLedgerService(paymentapp.LedgerServiceConfig{
		Store:               ledgerStore,
		Gateways:            gateways,
		Locker:              backends.Locker,
		Tokens:              cache.NewTokenIssuer(backends.Idempotency, cfg.Security.IdempotencySecret),
		Metrics:             metrics,
		Logger:              log,
		LockTTL:             cfg.Lock.TTL,
		LockWait:            cfg.Lock.Wait,
		IdempotencyWindow:   cfg.Security.IdempotencyWindow,
		GatewayMaxRetries:   cfg.Payment.GatewayMaxRetries,
		GatewayRetryBackoff: cfg.Payment.GatewayRetryBackoff,
		Risk:                riskControl,
	})

	epsilon, err := decimal.NewFromString(cfg.Reconciliation.Epsilon)
	if err != nil {
		log.Fatal("Invalid reconciliation epsilon", zap.String("epsilon", cfg.Reconciliation.Epsilon), zap.Error(err))
	}
	location, err := time.LoadLocation(cfg.Reconciliation.Timezone)
	if err != nil {
		log.Fatal("Invalid reconciliation timezone", zap.String("timezone", cfg.Reconciliation.Timezone), zap.Error(err))
	}
	archive, err := newReportArchive(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to configure report archive", zap.Error(err))
	}
	reconEngine := reconapp.NewEngine(reconapp.EngineConfig{
		Store:    persistence.NewGormReconciliationStore(db.DB, outboxPublisher),
		Payments: ledgerStore.Reader(),
		Gateways: gateways,
		Archive:  archive,
		Metrics:  metrics,
		Logger:   log,
		Epsilon:  epsilon,
		Location: location,
	})

	outboxService := eventapp.NewOutboxService(outboxRepo, log)

	// Consumers
	consumers := []struct {
		name    string
		handler interface {
			shared.MessageHandler
			RoutingKeys() []string
		}
	}{
		{"order-sync", paymentapp.NewOrderStatusSyncHandler(paymentapp.LogOrderSyncer{Logger: log}, log)},
		{"user-notify", paymentapp.NewPaymentNotificationHandler(paymentapp.LogNotifier{Logger: log}, log)},
	}
	if cfg.Balance.Enabled {
		consumers = append(consumers, struct {
			name    string
			handler interface {
				shared.MessageHandler
				RoutingKeys() []string
			}
		}{"recharge-credit", paymentapp.NewRechargeCreditHandler(persistence.NewGormBalanceAccount(db.DB), log)})
	}
	published := make(map[string]bool)
	for _, key := range eventSerializer.RoutingKeys() {
		published[key] = true
	}
	for _, c := range consumers {
		wrapped := event.NewIdempotentHandler(c.handler, backends.Idempotency, log, event.WithConsumerName(c.name))
		for _, key := range c.handler.RoutingKeys() {
			if !published[key] {
				log.Warn("Consumer subscribes to a routing key no event is published on",
					zap.String("consumer", c.name), zap.String("routing_key", key))
			}
			if err := broker.Subscribe(key, wrapped); err != nil {
				log.Fatal("Failed to subscribe consumer",
					zap.String("consumer", c.name), zap.String("routing_key", key), zap.Error(err))
			}
		}
		log.Info("Consumer registered",
			zap.String("consumer", c.name),
			zap.Strings("routing_keys", c.handler.RoutingKeys()),
		)
	}

	if err := broker.Start(ctx); err != nil {
		log.Fatal("Failed to start message broker", zap.Error(err))
	}
	defer func() {
		if err := broker.Stop(context.Background()); err != nil {
			log.Error("Error stopping message broker", zap.Error(err))
		}
	}()

	if cfg.Event.ProcessorEnabled {
		processorConfig := event.DefaultOutboxProcessorConfig()
		processorConfig.BatchSize = cfg.Event.BatchSize
		processorConfig.PollInterval = cfg.Event.PollInterval
		processorConfig.Retry = shared.RetryPolicy{
			MaxRetries:  cfg.Event.MaxRetries,
			BaseBackoff: cfg.Event.BackoffBase,
			MaxBackoff:  cfg.Event.BackoffMax,
		}
		processorConfig.CleanupEnabled = cfg.Event.CleanupEnabled
		processorConfig.CleanupRetention = cfg.Event.CleanupRetention
		processorConfig.ClaimLease = cfg.Event.ClaimLease

		outboxProcessor := event.NewOutboxProcessor(outboxRepo, broker, eventSerializer, processorConfig, log,
			event.WithProcessorMetrics(metrics))
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", processorConfig.BatchSize),
			zap.Duration("poll_interval", processorConfig.PollInterval),
		)
	}

	if cfg.Reconciliation.Enabled {
		triggerConfig := scheduler.DefaultReconciliationTriggerConfig()
		triggerConfig.Hour = cfg.Reconciliation.CronHour
		triggerConfig.Minute = cfg.Reconciliation.CronMinute
		triggerConfig.Location = location

		trigger, err := scheduler.NewReconciliationTrigger(triggerConfig, reconEngine, gateways, log)
		if err != nil {
			log.Fatal("Failed to create reconciliation trigger", zap.Error(err))
		}
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start reconciliation trigger", zap.Error(err))
		}
		defer func() {
			if err := trigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping reconciliation trigger", zap.Error(err))
			}
		}()
		log.Info("Reconciliation trigger started",
			zap.Int("hour", triggerConfig.Hour),
			zap.Int("minute", triggerConfig.Minute),
			zap.String("timezone", location.String()),
		)
	}

	// HTTP
	webhookLists, sharedList, err := webhookAllowLists(cfg)
	if err != nil {
		log.Fatal("Invalid webhook allow list", zap.Error(err))
	}

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
	go rateLimiter.Run(limiterCtx)

	healthChecks := []handler.HealthCheck{{Name: "database", Check: db.Ping}}
	if backends.Client != nil {
		client := backends.Client
		healthChecks = append(healthChecks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}

	engine := router.NewEngine(router.Options{
		HTTP:                   cfg.HTTP,
		Swagger:                cfg.Swagger,
		ServiceName:            cfg.Telemetry.ServiceName,
		TracingEnabled:         tracerProvider.IsEnabled(),
		ProfilingEnabled:       profiler.IsEnabled(),
		MeterProvider:          meterProvider,
		JWTService:             auth.NewJWTService(cfg.JWT),
		TokenBlacklist:         tokenBlacklist,
		RateLimiter:            rateLimiter,
		WebhookAllowLists:      webhookLists,
		WebhookSharedAllowList: sharedList,
		Logger:                 log,
	}, router.Handlers{
		Payment:        handler.NewPaymentHandler(ledgerService),
		Webhook:        handler.NewWebhookHandler(ledgerService),
		Reconciliation: handler.NewReconciliationHandler(reconEngine),
		Outbox:         handler.NewOutboxHandler(outboxService),
		System:         handler.NewSystemHandler(cfg.App.Name, version, healthChecks...),
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newBroker builds the broker named by event.broker
func newBroker(ctx context.Context, cfg *config.Config, client *redis.Client, metrics *telemetry.PaymentMetrics, log *zap.Logger) (shared.Broker, error) {
	base := event.BrokerConfig{
		MaxDeliveries: cfg.Event.MaxDeliveries,
		MessageTTL:    cfg.Event.MessageTTL,
		DLQSuffix:     cfg.Event.DLQSuffix,
	}
	opts := []event.BrokerOption{event.WithBrokerLogger(log), event.WithBrokerMetrics(metrics)}

	switch cfg.Event.Broker {
	case config.BrokerRedis:
		if client == nil {
			return nil, errors.New("redis broker selected but Redis is unavailable")
		}
		hostname, _ := os.Hostname()
		log.Info("Using Redis Streams broker", zap.String("group", cfg.Event.ConsumerGroup))
		return event.NewRedisStreamBroker(client, event.RedisStreamConfig{
			BrokerConfig: base,
			Group:        cfg.Event.ConsumerGroup,
			Consumer:     hostname,
			MaxLen:       cfg.Event.StreamMaxLen,
		}, opts...), nil
	case config.BrokerSQS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Event.SQSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		log.Info("Using SQS broker", zap.String("queue_url_prefix", cfg.Event.SQSQueueURLPrefix))
		return event.NewSQSBroker(event.NewSQSClient(awsCfg, cfg.Event.SQSEndpoint), event.SQSConfig{
			BrokerConfig:   base,
			QueueURLPrefix: cfg.Event.SQSQueueURLPrefix,
		}, opts...), nil
	default:
		log.Info("Using in-process broker")
		return event.NewMemoryBroker(base, opts...), nil
	}
}

// newGatewayRegistry registers every enabled payment channel
func newGatewayRegistry(cfg *config.Config, db *persistence.Database, metrics *telemetry.PaymentMetrics, log *zap.Logger) (*paymentinfra.Registry, error) {
	registry := paymentinfra.NewRegistry()
	opts := []paymentinfra.AdapterOption{paymentinfra.WithMetrics(metrics)}

	if cfg.GatewayA.Enabled {
		adapter, err := paymentinfra.NewGatewayAAdapter(paymentinfra.GatewayAConfigFrom(cfg.GatewayA, cfg.Security), opts...)
		if err != nil {
			return nil, err
		}
		registry.Register(adapter)
	}
	if cfg.GatewayB.Enabled {
		gbConfig, err := paymentinfra.NewGatewayBConfigBuilder().FromSettings(cfg.GatewayB, cfg.Security).Build()
		if err != nil {
			return nil, err
		}
		adapter, err := paymentinfra.NewGatewayBAdapter(gbConfig, opts...)
		if err != nil {
			return nil, err
		}
		registry.Register(adapter)
	}
	if cfg.Balance.Enabled {
		registry.Register(paymentinfra.NewBalanceAdapter(persistence.NewGormBalanceAccount(db.DB)))
	}

	types := registry.Types()
	if len(types) == 0 {
		return nil, errors.New("no payment channel enabled")
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	log.Info("Payment channels registered", zap.Strings("types", names))
	return registry, nil
}

// newReportArchive returns the S3 archive when enabled, otherwise nil so
// exports are only returned inline
func newReportArchive(ctx context.Context, cfg *config.Config, log *zap.Logger) (reconapp.ReportArchive, error) {
	if !cfg.Storage.S3Enabled {
		return nil, nil
	}
	archive, err := storage.NewS3ReportArchive(&cfg.Storage,
		storage.WithLogger(log),
		storage.WithPresignExpiry(cfg.Storage.PresignExpiry),
	)
	if err != nil {
		return nil, err
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	log.Info("Report archive enabled", zap.String("bucket", archive.Bucket()))
	return archive, nil
}

// webhookAllowLists builds the per-gateway source lists keyed by both path
// spellings the webhook routes accept (gateway_a and gateway-a)
func webhookAllowLists(cfg *config.Config) (map[string]*security.IPAllowList, *security.IPAllowList, error) {
	fallback, err := security.NewIPAllowList(cfg.Security.WebhookAllowedIPs)
	if err != nil {
		return nil, nil, fmt.Errorf("security.webhook_allowed_ips: %w", err)
	}
	lists := make(map[string]*security.IPAllowList)
	for t, gw := range map[payment.PaymentType]config.GatewayConfig{
		payment.PaymentTypeGatewayA: cfg.GatewayA,
		payment.PaymentTypeGatewayB: cfg.GatewayB,
	} {
		if !gw.Enabled || len(gw.AllowedIPs) == 0 {
			continue
		}
		list, err := security.NewIPAllowList(gw.AllowedIPs)
		if err != nil {
			return nil, nil, fmt.Errorf("%s allowed_ips: %w", t, err)
		}
		segment := strings.ToLower(string(t))
		lists[segment] = list
		lists[strings.ReplaceAll(segment, "_", "-")] = list
	}
	return lists, fallback, nil
}

func shutdownWithTimeout(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}

// newRiskControl builds risk control from cfg.Risk, or returns nil when it
// is disabled
func newRiskControl(cfg *config.Config, counters shared.CounterStore, log *zap.Logger) *paymentapp.RiskControl {
	if !cfg.Risk.Enabled {
		log.Warn("Risk control is disabled")
		return nil
	}
	rc := paymentapp.DefaultRiskConfig()
	rc.HighAmount = riskAmount(cfg.Risk.HighAmount, rc.HighAmount, log)
	rc.MediumAmount = riskAmount(cfg.Risk.MediumAmount, rc.MediumAmount, log)
	rc.MaxAttemptsPerMinute = cfg.Risk.MaxAttemptsPerMinute
	rc.MaxAttemptsPerHour = cfg.Risk.MaxAttemptsPerHour
	rc.MaxIPAttemptsPerHour = cfg.Risk.MaxIPAttemptsPerHour
	rc.MaxFailures = cfg.Risk.MaxFailures
	rc.FailureWindow = cfg.Risk.FailureWindow
	rc.BlockedIPs = cfg.Risk.BlockedIPs
	return paymentapp.NewRiskControl(counters, rc, log, nil)
}

func riskAmount(raw string, fallback decimal.Decimal, log *zap.Logger) decimal.Decimal {
	if raw == "" {
		return fallback
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		log.Fatal("Invalid risk amount threshold", zap.String("value", raw), zap.Error(err))
	}
	return amount
}
