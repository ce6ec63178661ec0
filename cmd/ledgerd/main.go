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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"github.com/verdantio/carbonledger/internal/api/handler"
	"github.com/verdantio/carbonledger/internal/auditlog"
	"github.com/verdantio/carbonledger/internal/identity"
	"github.com/verdantio/carbonledger/internal/ledger"
	"github.com/verdantio/carbonledger/internal/lifecycle"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("ledgerd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("ledgerd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("database.url", "")
	viper.SetDefault("auth.token_secret", "")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Ledger stores ─────────────────────────────────────────────────────────
	var auditStore, creditStore ledger.Store
	dbURL := viper.GetString("database.url")
	if dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()
		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		auditStore = ledger.NewPostgresStore(db, ledger.SubjectAuditEvent, logger)
		creditStore = ledger.NewPostgresStore(db, ledger.SubjectCreditLifecycle, logger)
	} else {
		logger.Warn("database.url not set — using in-memory ledgers; entries do not survive restarts")
		auditStore = ledger.NewMemoryStore(ledger.SubjectAuditEvent)
		creditStore = ledger.NewMemoryStore(ledger.SubjectCreditLifecycle)
	}
	stores := map[ledger.SubjectType]ledger.Store{
		ledger.SubjectAuditEvent:      auditStore,
		ledger.SubjectCreditLifecycle: creditStore,
	}

	// Integrity check at startup. A failure is loud but not fatal: the chain
	// is evidence and must stay queryable.
	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	for subject, store := range stores {
		result, err := ledger.NewVerifier(store).VerifyRange(startCtx, 1, 0)
		switch {
		case err != nil:
			logger.Warn("startup integrity check errored", zap.String("ledger", string(subject)), zap.Error(err))
		case !result.Valid:
			logger.Warn("ledger integrity check FAILED",
				zap.String("ledger", string(subject)),
				zap.Uint64("broken_at", result.BrokenAt),
				zap.String("reason", string(result.Reason)),
			)
		default:
			logger.Info("ledger verified",
				zap.String("ledger", string(subject)),
				zap.Uint64("entries", result.LastVerified),
			)
		}
	}
	cancelStart()

	// ── Services ─────────────────────────────────────────────────────────────
	auditSvc := auditlog.NewService(auditStore, logger)
	lifecycleSvc := lifecycle.NewService(creditStore, logger)

	var verifier *identity.TokenVerifier
	if secret := viper.GetString("auth.token_secret"); secret != "" {
		verifier = identity.NewTokenVerifier(secret)
	} else {
		logger.Warn("auth.token_secret not set — accepting actor headers; do not use in production")
	}

	auditHandler := handler.NewAuditHandler(auditSvc, verifier, logger)
	creditHandler := handler.NewCreditHandler(lifecycleSvc, verifier, logger)
	ledgerHandler := handler.NewLedgerHandler(stores, logger)
	exportHandler := handler.NewExportHandler(stores, auditSvc, verifier, logger)

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Actor-ID", "X-Actor-Role"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2))
	}

	router.Use(handler.RequestID())
	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	auditHandler.Register(v1)
	creditHandler.Register(v1)
	ledgerHandler.Register(v1)
	exportHandler.Register(v1)

	// ── Serve ─────────────────────────────────────────────────────────────────
	httpPort := viper.GetInt("server.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("ledgerd HTTP listening", zap.Int("port", httpPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down ledgerd...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("ledgerd stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}
