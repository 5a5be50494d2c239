package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agribeta/agribeta/libs/auth"
	"github.com/agribeta/agribeta/libs/config"
	"github.com/agribeta/agribeta/libs/db"
	"github.com/agribeta/agribeta/libs/httpx"
	"github.com/agribeta/agribeta/libs/kafkax"
	"github.com/agribeta/agribeta/libs/natsx"
	otelx "github.com/agribeta/agribeta/libs/otel"
	"github.com/agribeta/agribeta/libs/runtime"
	"github.com/agribeta/agribeta/services/api-service/internal/admin"
	"github.com/agribeta/agribeta/services/api-service/internal/billing"
	"github.com/agribeta/agribeta/services/api-service/internal/cache"
	"github.com/agribeta/agribeta/services/api-service/internal/consultations"
	"github.com/agribeta/agribeta/services/api-service/internal/diagnosis"
	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/handlers"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/networking"
	"github.com/agribeta/agribeta/services/api-service/internal/outbox"
	"github.com/agribeta/agribeta/services/api-service/internal/posts"
	"github.com/agribeta/agribeta/services/api-service/internal/profiles"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
	"github.com/agribeta/agribeta/services/api-service/internal/weather"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "api-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("IDENTITY_JWT_SECRET")
	if err != nil {
		panic(err)
	}
	maxUpload, err := config.Int("MAX_UPLOAD_BYTES", 8<<20)
	if err != nil {
		panic(err)
	}
	ratePerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 20)
	if err != nil {
		panic(err)
	}
	modelTimeout, err := config.Duration("DIAGNOSIS_MODEL_TIMEOUT", 30*time.Second)
	if err != nil {
		panic(err)
	}
	outboxRetain, err := config.Duration("OUTBOX_RETAIN", 7*24*time.Hour)
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()
	store := storage.New(pool)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var (
		rdb      *redis.Client
		dirCache cache.Cache
	)
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			panic(err)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		dirCache = cache.NewRedisCache(rdb, "agribeta:cache:")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb), Optional: true})
	} else {
		lru, err := cache.NewLRUCache(1024)
		if err != nil {
			panic(err)
		}
		dirCache = lru
	}

	sink, sinkCheck, err := newSink(logger)
	if err != nil {
		logger.Error("event sink init failed", "err", err)
		panic(err)
	}
	defer func() { _ = sink.Close() }()
	checks = append(checks, sinkCheck)
	publisher := outbox.NewPublisher(pool, outbox.NewRepository(pool), sink, logger, outbox.PublisherConfig{
		PollEvery: 2 * time.Second,
		BatchSize: 50,
		Retain:    outboxRetain,
	})
	go publisher.Run(ctx)

	var analyzer diagnosis.Analyzer
	if modelURL := config.String("DIAGNOSIS_MODEL_URL", ""); modelURL != "" {
		analyzer = diagnosis.NewHTTPAnalyzer(modelURL, config.String("DIAGNOSIS_MODEL_TOKEN", ""), modelTimeout)
	} else {
		logger.Warn("DIAGNOSIS_MODEL_URL not set; diagnosis requests will return 503")
	}
	images, err := diagnosis.NewLocalImageStore(config.String("IMAGE_DIR", "./data/images"))
	if err != nil {
		panic(err)
	}
	catalog, err := diagnosis.LoadCatalog()
	if err != nil {
		panic(err)
	}

	usage := entitlements.NewService(store, logger)
	billingCfg := billing.Config{
		SecretKey:     config.String("STRIPE_SECRET_KEY", ""),
		WebhookSecret: config.String("STRIPE_WEBHOOK_SECRET", ""),
		PriceIDs: map[model.Tier]string{
			model.TierBasic:   config.String("STRIPE_PRICE_BASIC", ""),
			model.TierPremium: config.String("STRIPE_PRICE_PREMIUM", ""),
		},
		AppURL: config.FirstString("http://localhost:3000", "APP_URL", "NEXT_PUBLIC_APP_URL"),
	}
	if billingCfg.SecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set; checkout returns 503")
	}

	var uploadLimiter httpx.Middleware
	if ratePerMinute > 0 {
		if rdb != nil {
			uploadLimiter = httpx.NewRedisRateLimiter(rdb, ratePerMinute, time.Minute, "agribeta:rl:diagnosis:", handlers.SubjectKey).Middleware(logger, true)
		} else {
			uploadLimiter = httpx.NewRateLimiter(ratePerMinute, time.Minute, handlers.SubjectKey).Middleware()
		}
	}

	api := handlers.New(handlers.Services{
		Profiles:      profiles.NewService(store, logger),
		Usage:         usage,
		Diagnosis:     diagnosis.NewService(store, usage, images, analyzer, catalog, logger),
		Consultations: consultations.NewService(store, usage, logger),
		Directory:     networking.NewDirectory(store, dirCache, networking.DefaultTTL, logger),
		Posts:         posts.NewService(store),
		Weather:       weather.NewService(store),
		Billing:       billing.NewService(billingCfg, store, logger),
		Admin:         admin.NewService(store, logger),
	}, auth.NewVerifier(jwtSecret, config.String("IDENTITY_JWT_ISSUER", "")), logger, handlers.Config{
		MaxUploadBytes: int64(maxUpload),
		UploadLimiter:  uploadLimiter,
	})

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/", api.Routes())

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(func(r *http.Request, v any) {
			logger.Error("panic serving request", "path", r.URL.Path, "panic", v)
		}),
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "api")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// newSink picks the outbox transport from EVENT_TRANSPORT (kafka or nats).
func newSink(logger *slog.Logger) (outbox.Sink, runtime.ReadyCheck, error) {
	switch transport := strings.ToLower(config.String("EVENT_TRANSPORT", "kafka")); transport {
	case "nats":
		conn, err := nats.Connect(config.String("NATS_URL", nats.DefaultURL),
			nats.Name("agribeta-api"),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return nil, runtime.ReadyCheck{}, err
		}
		check := runtime.ReadyCheck{Name: "nats", Check: func(context.Context) error {
			if !conn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}}
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, runtime.ReadyCheck{}, err
		}
		if err := natsx.EnsureStream(js, natsx.ConsultationStream, natsx.ConsultationSubjects); err != nil {
			conn.Close()
			return nil, runtime.ReadyCheck{}, err
		}
		logger.Info("publishing events to nats jetstream", "url", conn.ConnectedUrl(), "stream", natsx.ConsultationStream)
		return outbox.NewNATSSink(conn, js), check, nil
	default:
		brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
		logger.Info("publishing events to kafka", "brokers", brokers, "transport", transport)
		return outbox.NewKafkaSink(brokers), runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)}, nil
	}
}
