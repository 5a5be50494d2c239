package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/agribeta/agribeta/libs/config"
	"github.com/agribeta/agribeta/libs/db"
	"github.com/agribeta/agribeta/libs/httpx"
	"github.com/agribeta/agribeta/libs/kafkax"
	"github.com/agribeta/agribeta/libs/natsx"
	otelx "github.com/agribeta/agribeta/libs/otel"
	"github.com/agribeta/agribeta/libs/runtime"
	"github.com/agribeta/agribeta/services/notification-service/internal/consumer"
	"github.com/agribeta/agribeta/services/notification-service/internal/email"
	"github.com/agribeta/agribeta/services/notification-service/internal/inbox"
	"github.com/agribeta/agribeta/services/notification-service/internal/notify"
	"github.com/agribeta/agribeta/services/notification-service/internal/storage"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	sender, err := email.New(email.Config{
		Service:  config.String("EMAIL_SERVICE", "log"),
		APIKey:   config.String("EMAIL_API_KEY", ""),
		APIURL:   config.String("EMAIL_API_URL", ""),
		From:     config.String("EMAIL_FROM", "no-reply@agribeta.local"),
		SMTPHost: config.String("SMTP_HOST", "mailpit"),
		SMTPPort: config.String("SMTP_PORT", "1025"),
	}, logger)
	if err != nil {
		panic(err)
	}
	renderer, err := notify.NewRenderer(config.FirstString("http://localhost:3000", "APP_URL", "NEXT_PUBLIC_APP_URL"))
	if err != nil {
		panic(err)
	}
	notifier := notify.NewService(renderer, sender, storage.NewRepository(pool), logger)
	inboxRepo := inbox.NewRepository(pool)
	logger.Info("email provider selected", "provider", sender.ProviderID())

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	switch strings.ToLower(config.String("EVENT_TRANSPORT", "kafka")) {
	case "nats":
		conn, err := nats.Connect(config.String("NATS_URL", nats.DefaultURL),
			nats.Name("agribeta-notifications"),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			logger.Error("nats connection failed", "err", err)
			panic(err)
		}
		defer conn.Close()
		checks = append(checks, runtime.ReadyCheck{Name: "nats", Check: func(context.Context) error {
			if !conn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}})
		js, err := conn.JetStream()
		if err != nil {
			panic(err)
		}
		if err := natsx.EnsureStream(js, natsx.ConsultationStream, natsx.ConsultationSubjects); err != nil {
			logger.Error("jetstream stream setup failed", "err", err)
			panic(err)
		}
		sub := consumer.NewNATS(logger, inboxRepo, js, config.String("NATS_QUEUE", service), notify.Topics, notifier.Handle)
		go func() {
			if err := sub.Run(ctx); err != nil {
				logger.Error("nats subscribe failed", "err", err)
				stop()
			}
		}()
	default:
		brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		eventConsumer := consumer.NewKafka(logger, inboxRepo, consumer.KafkaConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topics:  notify.Topics,
		}, notifier.Handle)
		go eventConsumer.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.Handler())
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
