// forestd serves read-only provenance views over a Merkle forest and its
// hash-chain ledger. Fossils are loaded from a JSON-lines snapshot at
// startup; the HTTP surface exposes roots, inclusion proofs, proof
// verification, ledger inspection, and manual branch pruning.
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
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/provenancekit/fossilforest/internal/forest"
	"github.com/provenancekit/fossilforest/internal/forestd/handler"
	"github.com/provenancekit/fossilforest/internal/ledger"
	"github.com/provenancekit/fossilforest/internal/snapshot"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("forestd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("forestd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("forest.stale", "24h")
	viper.SetDefault("forest.max_trees", 128)
	viper.SetDefault("snapshot.path", "")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Forest + Ledger ──────────────────────────────────────────────────────
	stale := viper.GetDuration("forest.stale")
	if stale <= 0 {
		stale = 24 * time.Hour
	}
	cfg := forest.Config{
		Stale:    stale,
		MaxTrees: viper.GetInt("forest.max_trees"),
	}
	fst := forest.New(cfg, logger)
	led := ledger.New(logger)

	startCtx := context.Background()
	if path := viper.GetString("snapshot.path"); path != "" {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open snapshot: %w", err)
		}
		fossils, err := snapshot.Read(file)
		file.Close()
		if err != nil {
			return fmt.Errorf("parse snapshot: %w", err)
		}
		if err := snapshot.Replay(startCtx, fst, led, fossils); err != nil {
			return fmt.Errorf("replay snapshot: %w", err)
		}
		logger.Info("snapshot replayed",
			zap.String("path", path),
			zap.Int("fossils", len(fossils)),
			zap.Int("threads", fst.Len()),
		)
	}

	if err := led.Verify(startCtx); err != nil {
		logger.Warn("ledger integrity check FAILED", zap.Error(err))
	} else {
		n, _ := led.Len(startCtx)
		root, _ := led.Root(startCtx)
		logger.Info("ledger verified",
			zap.Int("entries", n),
			zap.String("root", root),
		)
	}

	forestHandler := handler.NewForestHandler(fst, logger)
	ledgerHandler := handler.NewLedgerHandler(led, logger)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:  corsOrigins,
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	forestHandler.Register(v1)
	ledgerHandler.Register(v1)

	// ── Serve + graceful shutdown ────────────────────────────────────────────
	httpPort := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("forestd HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down forestd...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	return nil
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
			zap.Duration("duration", time.Since(start)),
		)
	}
}
