package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	assignmentapp "coaching-fees/internal/assignment/application"
	"coaching-fees/internal/audit"
	"coaching-fees/internal/auth"
	catalogapp "coaching-fees/internal/catalog/application"
	"coaching-fees/internal/eventing"
	eventingrepo "coaching-fees/internal/eventing/infrastructure/postgres"
	"coaching-fees/internal/fees/application/events"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/fees/infrastructure/memory"
	feesrepo "coaching-fees/internal/fees/infrastructure/postgres"
	feeshttp "coaching-fees/internal/fees/interfaces/http"
	ledgerapp "coaching-fees/internal/ledger/application"
	"coaching-fees/internal/locks"
	"coaching-fees/internal/observability/metrics"
	paymentsapp "coaching-fees/internal/payments/application"
	"coaching-fees/internal/reminders"
	settlementapp "coaching-fees/internal/settlement/application"
)

// feeStore is what the services need from a fee store.
type feeStore interface {
	fees.StructureStore
	fees.AssignmentReader
	fees.AssignmentWriter
	fees.RecordReader
	fees.RecordWriter
	fees.HistoryReader
	fees.MemberDirectory
}

type outboxStore interface {
	eventing.OutboxStore
	eventing.OutboxWriter
}

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.AppEnv)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := assignmentapp.LoadConfig(cfg.PolicyFile)
	if err != nil {
		logger.Fatal("policy config error", zap.Error(err))
	}

	var (
		db        *sql.DB
		store     feeStore
		auditLog  audit.Store
		outbox    outboxStore
		processed eventing.ProcessedStore
		dlq       eventing.DLQStore
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db open error", zap.Error(err))
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("db ping error", zap.Error(err))
		}
		pgStore, err := feesrepo.NewStore(db)
		if err != nil {
			logger.Fatal("fee store error", zap.Error(err))
		}
		store = pgStore
		auditLog = audit.NewRepository(db)
		outbox = eventingrepo.NewOutboxStore(db)
		processed = eventingrepo.NewProcessedStore(db)
		dlq = eventingrepo.NewDLQStore(db)
	} else {
		logger.Warn("DATABASE_URL not set, using the in-memory store")
		store = memory.NewStore()
		auditLog = audit.NewMemoryStore()
		outbox = eventing.NewMemoryOutbox()
		processed = eventing.NewMemoryProcessedStore()
		dlq = &eventing.MemoryDLQ{}
	}
	metrics.Init(db, logger)

	locker := newLocker(ctx, cfg, policy.LockTTL, logger)
	clock := fees.SystemClock{}
	recorder := audit.NewRecorder(auditLog, logger.Named("audit"), audit.WithClock(clock))

	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry(events.Samples()...)
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, dlq, eventing.WithDispatchLogger(logger.Named("outbox")))
	publisher := eventing.NewPublisher(outbox, dispatcher, bus, logger.Named("publisher"))
	go dispatcher.Run(ctx, cfg.DispatchInterval, 100)

	eventing.Subscribe(bus, eventing.EventTypeOf[events.BulkAssignCompleted](), "fees.log", func(ctx context.Context, event any) error {
		evt, ok := event.(events.BulkAssignCompleted)
		if !ok {
			return nil
		}
		logger.Info("bulk assignment completed",
			zap.String("coaching_id", evt.CoachingID),
			zap.String("operation_id", evt.OperationID),
			zap.Int("succeeded", evt.Succeeded),
			zap.Int("failed", evt.Failed),
			zap.Int("skipped", evt.Skipped),
			zap.Int("not_attempted", evt.NotAttempted),
		)
		return nil
	}, processed)

	catalog, err := catalogapp.NewService(store, recorder, clock, logger.Named("catalog"))
	if err != nil {
		logger.Fatal("catalog service error", zap.Error(err))
	}
	preview, err := settlementapp.NewService(store, store, store, auditLog, logger.Named("settlement"))
	if err != nil {
		logger.Fatal("settlement service error", zap.Error(err))
	}
	assignments, err := assignmentapp.NewService(store, preview, locker, recorder, policy,
		assignmentapp.WithClock(clock),
		assignmentapp.WithPublisher(publisher),
		assignmentapp.WithLogger(logger.Named("assignment")),
	)
	if err != nil {
		logger.Fatal("assignment service error", zap.Error(err))
	}
	ledger, err := ledgerapp.NewService(store, store, store, store, clock, logger.Named("ledger"))
	if err != nil {
		logger.Fatal("ledger service error", zap.Error(err))
	}
	payments, err := paymentsapp.NewService(store, locker, recorder,
		paymentsapp.WithClock(clock),
		paymentsapp.WithPublisher(publisher),
		paymentsapp.WithLogger(logger.Named("payments")),
	)
	if err != nil {
		logger.Fatal("payments service error", zap.Error(err))
	}

	services := feeshttp.Services{
		Catalog:     catalog,
		Assignments: assignments,
		Settlement:  preview,
		Ledger:      ledger,
		Payments:    payments,
		AuditLog:    auditLog,
	}
	if cfg.ReminderWebhookURL != "" {
		services.Reminders = wireReminders(cfg, store, publisher, recorder, bus, processed, logger)
	}

	handler, err := feeshttp.NewHandler(services,
		feeshttp.WithClock(clock),
		feeshttp.WithCurrency(cfg.CurrencySymbol),
		feeshttp.WithLogger(logger.Named("http")),
	)
	if err != nil {
		logger.Fatal("fees handler error", zap.Error(err))
	}

	go runRollForward(ctx, assignments, cfg.RollForwardInterval, logger)

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil),
		auth.WithDenyLogger(logger.Named("auth")))
	mux := http.NewServeMux()
	mux.Handle("/api/v1/coachings/", handler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger.Named("access")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

func wireReminders(cfg config, store reminders.Store, publisher *eventing.Publisher, recorder *audit.Recorder, bus *eventing.InMemoryBus, processed eventing.ProcessedStore, logger *zap.Logger) *reminders.Service {
	channel, err := reminders.ChannelsFromURLs(cfg.ReminderWebhookURL)
	if err != nil {
		logger.Fatal("reminder channel error", zap.Error(err))
	}
	var template *reminders.Template
	if cfg.ReminderTemplate != "" {
		template, err = reminders.NewTemplate(cfg.ReminderTemplate)
		if err != nil {
			logger.Fatal("reminder template error", zap.Error(err))
		}
	}
	notifier, err := reminders.NewNotifier(channel, template,
		reminders.WithRatePerMinute(cfg.ReminderRatePerMinute),
		reminders.WithCurrency(cfg.CurrencySymbol),
		reminders.WithLogger(logger.Named("reminders")),
	)
	if err != nil {
		logger.Fatal("reminder notifier error", zap.Error(err))
	}
	notifier.Register(bus, processed)
	service, err := reminders.NewService(store, publisher, recorder, fees.SystemClock{}, logger.Named("reminders"))
	if err != nil {
		logger.Fatal("reminder service error", zap.Error(err))
	}
	return service
}

func newLocker(ctx context.Context, cfg config, ttl time.Duration, logger *zap.Logger) locks.Locker {
	if cfg.RedisAddr == "" {
		return locks.NewKeyedMutex()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping error", zap.Error(err))
	}
	locker, err := locks.NewRedisLocker(client, ttl, logger.Named("locks"))
	if err != nil {
		logger.Fatal("redis locker error", zap.Error(err))
	}
	return locker
}

func runRollForward(ctx context.Context, assignments *assignmentapp.Service, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			result, err := assignments.RollForward(ctx, now.UTC())
			if err != nil && ctx.Err() == nil {
				logger.Error("roll forward failed", zap.Int("failed", result.Failed), zap.Error(err))
			}
			if result.Records > 0 {
				logger.Info("roll forward generated records",
					zap.Int("assignments", result.Assignments),
					zap.Int("records", result.Records),
				)
			}
		}
	}
}

type config struct {
	AppEnv                string
	DatabaseURL           string
	HTTPAddr              string
	JWTSecret             string
	PolicyFile            string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReminderWebhookURL    string
	ReminderTemplate      string
	ReminderRatePerMinute int
	CurrencySymbol        string
	RollForwardInterval   time.Duration
	DispatchInterval      time.Duration
}

func loadConfig() config {
	cfg := config{
		AppEnv:                getenvDefault("APP_ENV", "production"),
		DatabaseURL:           getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:              getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:             getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		PolicyFile:            getenvDefault("FEES_POLICY_FILE", ""),
		RedisAddr:             getenvDefault("REDIS_ADDR", ""),
		RedisPassword:         getenvDefault("REDIS_PASSWORD", ""),
		RedisDB:               getenvIntDefault("REDIS_DB", 0),
		ReminderWebhookURL:    getenvDefault("REMINDER_WEBHOOK_URL", ""),
		ReminderTemplate:      getenvDefault("REMINDER_TEMPLATE", ""),
		ReminderRatePerMinute: getenvIntDefault("REMINDER_RATE_PER_MINUTE", 30),
		CurrencySymbol:        getenvDefault("CURRENCY_SYMBOL", audit.DefaultCurrency),
		RollForwardInterval:   getenvDuration("ROLLFORWARD_INTERVAL", time.Hour),
		DispatchInterval:      getenvDuration("OUTBOX_DISPATCH_INTERVAL", 5*time.Second),
	}
	if cfg.JWTSecret == "" {
		// zap is not built yet
		_, _ = os.Stderr.WriteString("AUTH_JWT_SECRET is required\n")
		os.Exit(1)
	}
	return cfg
}

func newLogger(env string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "development" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err = cfg.Build()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	return logger
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
