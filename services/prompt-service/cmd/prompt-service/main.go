package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/reviewloop/reviewloop/libs/config"
	"github.com/reviewloop/reviewloop/libs/httpx"
	"github.com/reviewloop/reviewloop/libs/kafkax"
	"github.com/reviewloop/reviewloop/libs/kvs"
	otelx "github.com/reviewloop/reviewloop/libs/otel"
	"github.com/reviewloop/reviewloop/libs/runtime"
	"github.com/reviewloop/reviewloop/services/prompt-service/internal/consumer"
	"github.com/reviewloop/reviewloop/services/prompt-service/internal/dispatch"
	"github.com/reviewloop/reviewloop/services/prompt-service/internal/sms"
	"github.com/reviewloop/reviewloop/services/prompt-service/internal/storage"
)

const promptsTopic = "review-prompts.scheduled"

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "prompt-service")
	port, err := config.Port("PORT", "8081")
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

	redisAddr, err := config.RequiredString("REDIS_ADDR")
	if err != nil {
		panic(err)
	}
	kv, err := kvs.Open(ctx, kvs.Config{
		Addr:     redisAddr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	if err != nil {
		logger.Error("kv store connection failed", "err", err)
		panic(err)
	}
	defer func() { _ = kv.Close() }()

	brokers, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		panic(err)
	}

	store := storage.NewStore(kv)

	var sender sms.Sender
	if url := config.String("SMS_WEBHOOK_URL", ""); url != "" {
		sender = sms.NewWebhookSender(url, config.String("SMS_WEBHOOK_TOKEN", ""))
	} else {
		sender = sms.NewNoopSender()
		logger.Warn("no sms webhook configured, prompts will be dropped silently")
	}
	logger.Info("sms sender ready", "provider", sender.ProviderID())

	cons := consumer.New(logger, store, consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "prompt-service"),
		Topic:   config.String("KAFKA_PROMPTS_TOPIC", promptsTopic),
	})
	go cons.Run(ctx)

	worker := dispatch.NewWorker(store, sender, logger, dispatch.WorkerConfig{
		Interval: config.Duration("DISPATCH_INTERVAL", 30*time.Second),
		LinkBase: config.String("REVIEW_PAGE_BASE_URL", "http://localhost:3000"),
	})
	go worker.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "kv", Check: kvs.ReadyCheck(kv)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
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
