package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/reviewloop/reviewloop/libs/auth"
	"github.com/reviewloop/reviewloop/libs/config"
	"github.com/reviewloop/reviewloop/libs/httpx"
	"github.com/reviewloop/reviewloop/libs/kvs"
	otelx "github.com/reviewloop/reviewloop/libs/otel"
	"github.com/reviewloop/reviewloop/libs/runtime"
	"github.com/reviewloop/reviewloop/services/review-service/internal/business"
	"github.com/reviewloop/reviewloop/services/review-service/internal/calendar"
	"github.com/reviewloop/reviewloop/services/review-service/internal/handlers"
	"github.com/reviewloop/reviewloop/services/review-service/internal/prompts"
	"github.com/reviewloop/reviewloop/services/review-service/internal/review"
	"github.com/reviewloop/reviewloop/services/review-service/internal/stats"
	"github.com/reviewloop/reviewloop/services/review-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "review-service")
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

	records := storage.NewRecords(kv)
	mgr := business.NewManager(records)
	agg := stats.NewAggregator(records)
	engine := review.NewEngine(records)

	var publisher calendar.PromptPublisher
	if p := prompts.NewPublisher(config.String("KAFKA_BROKERS", ""), logger); p != nil {
		defer func() { _ = p.Close() }()
		publisher = p
		logger.Info("prompt scheduling enabled", "topic", prompts.Topic)
	} else {
		logger.Warn("prompt scheduling disabled (no kafka brokers configured)")
	}

	calClient := calendar.NewClient(config.String("CALENDAR_API_BASE_URL", ""))
	importer := calendar.NewImporter(records, calClient, publisher, logger)

	h := handlers.New(mgr, importer, engine, agg, records, logger)
	sessionSecret := config.String("SESSION_SECRET", "dev-secret")

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "kv", Check: kvs.ReadyCheck(kv)},
	)
	mux.Handle("/api/v1/business", requireSession(sessionSecret, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetBusiness(w, r)
		case http.MethodPost:
			h.SetupBusiness(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	mux.Handle("/api/v1/business/appointments", requireSession(sessionSecret, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.ListAppointments(w, r)
	}))
	mux.Handle("/api/v1/business/stats", requireSession(sessionSecret, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.GetStats(w, r)
	}))
	mux.Handle("/api/v1/calendar/sync", requireSession(sessionSecret, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.SyncCalendar(w, r)
	}))
	mux.HandleFunc("/api/v1/review/submit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.SubmitReview(w, r)
	})

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	rl := httpx.NewRedisRateLimiter(kv.Redis(), limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)),
	)
	handler = otelhttp.NewHandler(handler, "review")
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

// requireSession verifies the bearer session token and forwards the owner's
// identity on a trusted header, stripping any client-supplied value first.
func requireSession(secret string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := auth.ParseAndVerifyHS256(token, secret)
		if err != nil || claims.OwnerID() == "" {
			http.Error(w, "invalid session token", http.StatusUnauthorized)
			return
		}
		r.Header.Del(handlers.OwnerHeader)
		r.Header.Set(handlers.OwnerHeader, claims.OwnerID())
		next.ServeHTTP(w, r)
	})
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
