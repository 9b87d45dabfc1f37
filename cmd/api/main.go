package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tixgate/eventchat/core"
	"github.com/tixgate/eventchat/x/access"
	"github.com/tixgate/eventchat/x/agent"
	"github.com/tixgate/eventchat/x/chain"
	"github.com/tixgate/eventchat/x/ratelimit"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/plugin/opentelemetry/tracing"
)

type CustomHandler struct {
	slog.Handler
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {

	r.AddAttrs(slog.String("type", "app"))

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(slog.String("traceID", span.SpanContext().TraceID().String()))
		r.AddAttrs(slog.String("spanID", span.SpanContext().SpanID().String()))
	}

	return h.Handler.Handle(ctx, r)
}

var (
	version = "unknown"
)

func main() {

	config := Config{}
	configPath := os.Getenv("EVENTCHAT_CONFIG")
	if configPath == "" {
		configPath = "/etc/eventchat/config.yaml"
	}

	err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
	}

	var output io.Writer = os.Stdout
	if config.Server.LogPath != "" {
		output = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   config.Server.LogPath,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	handler := &CustomHandler{Handler: slog.NewJSONHandler(output, nil)}
	slogger := slog.New(handler)
	slog.SetDefault(slogger)

	slog.Info(fmt.Sprintf("eventchat %s starting...", version))

	e := echo.New()
	e.HidePort = true
	e.HideBanner = true

	if config.Server.EnableTrace {
		cleanup, err := setupTraceProvider(config.Server.TraceEndpoint, "eventchat", version)
		if err != nil {
			panic(err)
		}
		defer cleanup()

		skipper := otelecho.WithSkipper(
			func(c echo.Context) bool {
				return c.Path() == "/metrics" || c.Path() == "/health"
			},
		)
		e.Use(otelecho.Middleware("api", skipper))
	}

	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace: "eventchat",
		LabelFuncs: map[string]echoprometheus.LabelValueFunc{
			"url": func(c echo.Context, err error) string {
				return "REDACTED"
			},
		},
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health"
		},
	}))

	e.Use(middleware.Recover())

	gormLogger := logger.New(
		log.New(output, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             300 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(config.Server.Dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		panic("failed to connect database")
	}
	sqlDB, err := db.DB() // for pinging
	if err != nil {
		panic("failed to connect database")
	}
	defer sqlDB.Close()

	err = db.Use(tracing.NewPlugin(
		tracing.WithDBSystem("postgres"),
	))
	if err != nil {
		panic("failed to setup tracing plugin")
	}

	// events, tickets and profiles belong to the storefront
	slog.Info("start migrate")
	err = db.AutoMigrate(
		&core.Message{},
		&core.MessageDeletion{},
		&core.ChannelActivity{},
	)
	if err != nil {
		panic("failed to migrate schema")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Server.RedisAddr,
		Password: "", // no password set
		DB:       config.Server.RedisDB,
	})
	err = redisotel.InstrumentTracing(
		rdb,
		redisotel.WithAttributes(
			attribute.KeyValue{
				Key:   "db.name",
				Value: attribute.StringValue("redis"),
			},
		),
	)
	if err != nil {
		panic("failed to setup tracing plugin")
	}

	mc := memcache.New(config.Server.MemcachedAddr)
	defer mc.Close()

	chainReader, err := chain.Dial(context.Background(), config.Chat)
	if err != nil {
		panic(fmt.Sprintf("failed to dial chains: %v", err))
	}

	sweepers := map[string]agent.Sweeper{}

	var cache core.AccessCache
	switch config.Chat.AccessCacheBackend {
	case "memcached":
		cache = access.NewMemcacheCache(mc)
	default:
		cache = access.NewMemoryCache()
	}
	if sweeper, ok := cache.(agent.Sweeper); ok {
		sweepers["access_cache"] = sweeper
	}

	var limiter core.RateLimiter
	switch config.Chat.RateLimitBackend {
	case "redis":
		limiter = ratelimit.NewRedisLimiter(rdb, config.Chat)
	default:
		limiter = ratelimit.NewMemoryLimiter(config.Chat)
	}
	if sweeper, ok := limiter.(agent.Sweeper); ok {
		sweepers["ratelimit"] = sweeper
	}

	slog.Info(
		"backends selected",
		slog.String("accessCache", config.Chat.AccessCacheBackend),
		slog.String("rateLimit", config.Chat.RateLimitBackend),
		slog.Int("chains", len(config.Chat.Chains)),
	)

	accessService := SetupAccessService(chainReader, cache, config.Chat)
	messageService := SetupMessageService(db, config.Chat)

	channelService := SetupChannelService(db, rdb, accessService, limiter, config.Chat)
	channelHandler := SetupChannelHandler(channelService)

	socketHandler := SetupSocketHandler(rdb, channelService, config.Chat)

	sweeper := agent.NewAgent(config.Chat.AccessCacheTTL, sweepers)

	chat := e.Group("/chat")
	chat.GET("/memberships", channelHandler.Memberships)
	chat.GET("/:event/messages", channelHandler.List)
	chat.POST("/:event/messages", channelHandler.Send)
	chat.GET("/:event/socket", socketHandler.Connect)
	chat.PATCH("/messages/:id", channelHandler.Edit)
	chat.DELETE("/messages/:id", channelHandler.Delete)

	e.GET("/health", func(c echo.Context) (err error) {
		ctx := c.Request().Context()

		err = sqlDB.Ping()
		if err != nil {
			return c.String(http.StatusInternalServerError, "db error")
		}

		err = rdb.Ping(ctx).Err()
		if err != nil {
			return c.String(http.StatusInternalServerError, "redis error")
		}

		return c.String(http.StatusOK, "ok")
	})

	var resourceCountMetrics = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventchat_resources_count",
			Help: "resources count",
		},
		[]string{"type"},
	)
	prometheus.MustRegister(resourceCountMetrics)

	var chatMetrics = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventchat_counters",
			Help: "access gate, rate limiter, socket and agent counters",
		},
		[]string{"name"},
	)
	prometheus.MustRegister(chatMetrics)

	go func() {
		for {
			time.Sleep(15 * time.Second)

			for _, metrics := range []map[string]int64{
				accessService.GetMetrics(),
				limiter.GetMetrics(),
				socketHandler.GetMetrics(),
				sweeper.GetMetrics(),
			} {
				for name, value := range metrics {
					chatMetrics.WithLabelValues(name).Set(float64(value))
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			count, err := messageService.Count(ctx)
			cancel()
			if err != nil {
				slog.Error(fmt.Sprintf("failed to count messages: %v", err))
				continue
			}
			resourceCountMetrics.WithLabelValues("message").Set(float64(count))
		}
	}()

	e.GET("/metrics", echoprometheus.NewHandler())

	sweeper.Boot(context.Background())
	e.Logger.Fatal(e.Start(config.Server.Listen))
}

func setupTraceProvider(endpoint string, serviceName string, serviceVersion string) (func(), error) {

	exporter, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)

	if err != nil {
		return nil, err
	}

	resource := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(serviceVersion),
	)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource),
	)
	otel.SetTracerProvider(tracerProvider)

	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(propagator)

	cleanup := func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			slog.Error(fmt.Sprintf("Failed to shutdown tracer provider: %v", err))
		}
	}
	return cleanup, nil
}
