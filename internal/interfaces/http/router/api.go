package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/auth"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/config"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/logger"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/security"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/telemetry"
	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/handler"
	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/middleware"
)

// Handlers are the HTTP handlers mounted by NewEngine
type Handlers struct {
	Payment        *handler.PaymentHandler
	Webhook        *handler.WebhookHandler
	Reconciliation *handler.ReconciliationHandler
	Outbox         *handler.OutboxHandler
	System         *handler.SystemHandler
}

// Options configure the middleware stack built by NewEngine
type Options struct {
	HTTP    config.HTTPConfig
	Swagger config.SwaggerConfig

	ServiceName      string
	TracingEnabled   bool
	ProfilingEnabled bool
	MeterProvider    *telemetry.MeterProvider

	JWTService     *auth.JWTService
	TokenBlacklist auth.TokenBlacklist
	// RateLimiter is used when HTTP.RateLimitEnabled is set. The caller owns
	// its eviction loop.
	RateLimiter *middleware.RateLimiter

	// WebhookAllowLists restricts callback sources per gateway path segment;
	// WebhookSharedAllowList covers gateways without their own list
	WebhookAllowLists      map[string]*security.IPAllowList
	WebhookSharedAllowList *security.IPAllowList

	Logger *zap.Logger
}

// NewEngine builds the gin engine with the full middleware stack and every
// route of the payment core API
func NewEngine(opts Options, h Handlers) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	middleware.SetupValidator()

	engine := gin.New()
	// an empty list trusts no proxy, so ClientIP is the socket peer
	if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
		log.Warn("Failed to set trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(logger.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: opts.ServiceName,
		Enabled:     opts.TracingEnabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.HTTPMetrics(opts.MeterProvider))

	profilingCfg := middleware.DefaultProfilingConfig()
	profilingCfg.Enabled = opts.ProfilingEnabled
	engine.Use(middleware.Profiling(profilingCfg))

	engine.Use(middleware.Secure())
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = opts.HTTP.CORSAllowOrigins
	engine.Use(middleware.CORSWithConfig(corsCfg))
	if opts.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(opts.HTTP.MaxBodySize))
	}
	if opts.HTTP.RateLimitEnabled && opts.RateLimiter != nil {
		engine.Use(middleware.RateLimit(opts.RateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", opts.HTTP.RateLimitRequests),
			zap.Duration("window", opts.HTTP.RateLimitWindow),
		)
	}

	jwtCfg := middleware.DefaultJWTConfig(opts.JWTService)
	jwtCfg.TokenBlacklist = opts.TokenBlacklist
	jwtCfg.Logger = log
	jwtAuth := middleware.JWTAuthMiddlewareWithConfig(jwtCfg)

	if h.System != nil {
		engine.GET("/health", h.System.Health)
	}
	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:     opts.Swagger.Enabled,
			RequireAuth: opts.Swagger.RequireAuth,
			AllowedIPs:  opts.Swagger.AllowedIPs,
		}, jwtAuth),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	r := NewRouter(engine, WithAPIVersion("v1"))

	if h.Payment != nil {
		payments := NewDomainGroup("payments", "/payments")
		payments.POST("", h.Payment.CreatePayment)
		payments.GET("", h.Payment.ListPayments)
		payments.GET("/:paymentNo", h.Payment.GetPayment)
		payments.POST("/:paymentNo/initiate", h.Payment.InitiatePayment)
		payments.POST("/:paymentNo/sync", h.Payment.SyncPayment)
		payments.POST("/:paymentNo/refunds", h.Payment.RequestRefund)
		r.Register(payments)

		recharges := NewDomainGroup("recharges", "/recharges")
		recharges.POST("", h.Payment.CreateRecharge)
		r.Register(recharges)
	}

	if h.Webhook != nil {
		webhooks := NewDomainGroup("webhooks", "/webhooks/:gateway").
			Use(middleware.WebhookSourceFilter(opts.WebhookAllowLists, opts.WebhookSharedAllowList, log))
		webhooks.POST("/payment", h.Webhook.HandlePaymentNotification)
		webhooks.POST("/refund", h.Webhook.HandleRefundNotification)
		r.Register(webhooks)
	}

	if h.Reconciliation != nil {
		recon := NewDomainGroup("reconciliation", "/reconciliation").
			Use(jwtAuth, middleware.RequireResourceWithConfig("reconciliation", middleware.PermissionConfig{Logger: log}))
		recon.POST("/batches", h.Reconciliation.StartBatch)
		recon.GET("/batches/:batchNo", h.Reconciliation.GetBatch)
		recon.POST("/batches/:batchNo/execute", h.Reconciliation.ExecuteBatch)
		recon.GET("/batches/:batchNo/diffs", h.Reconciliation.ListDiffs)
		recon.GET("/batches/:batchNo/report", h.Reconciliation.GetReport)
		recon.GET("/batches/:batchNo/export", h.Reconciliation.ExportReport)
		recon.GET("/diffs/unresolved", h.Reconciliation.ListUnresolved)
		recon.POST("/diffs/:id/solve", h.Reconciliation.SolveDiff)
		recon.POST("/range", h.Reconciliation.ReconcileRange)
		recon.GET("/statistics", h.Reconciliation.GetStatistics)
		r.Register(recon)
	}

	if h.Outbox != nil {
		outbox := NewDomainGroup("outbox", "/outbox").
			Use(jwtAuth, middleware.RequireAnyPermissionWithConfig(middleware.PermissionConfig{Logger: log}, auth.PermissionOutboxAdmin))
		outbox.GET("/dead", h.Outbox.GetDeadLetterEntries)
		outbox.POST("/dead/retry-all", h.Outbox.RetryAllDeadEntries)
		outbox.GET("/stats", h.Outbox.GetStats)
		outbox.GET("/:id", h.Outbox.GetEntry)
		outbox.POST("/:id/retry", h.Outbox.RetryDeadEntry)
		r.Register(outbox)
	}

	if h.System != nil {
		system := NewDomainGroup("system", "/system")
		system.GET("/info", h.System.GetSystemInfo)
		r.Register(system)
		engine.GET("/api/v1/health", h.System.Health)
	}

	r.Setup()
	return engine
}
