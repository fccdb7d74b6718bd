package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/api"
	"github.com/banking/compliance-engine/internal/config"
	"github.com/banking/compliance-engine/internal/crypto"
	"github.com/banking/compliance-engine/internal/events"
	"github.com/banking/compliance-engine/internal/metrics"
	"github.com/banking/compliance-engine/internal/repository/elasticsearch"
	"github.com/banking/compliance-engine/internal/repository/postgres"
	redisrepo "github.com/banking/compliance-engine/internal/repository/redis"
	"github.com/banking/compliance-engine/internal/repository/s3"
	"github.com/banking/compliance-engine/internal/service"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Info("Starting Compliance Engine...")

	// 3. Crypto / Security
	signer, err := crypto.NewEvidenceSigner(
		cfg.Encryption.KeysBase64,
		cfg.Encryption.CurrentKeyVersion,
		cfg.Encryption.HMACSecret,
	)
	if err != nil {
		sugar.Fatalf("Failed to initialize evidence signer: %v", err)
	}

	engineMetrics := metrics.New()

	// 4. Repositories
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		sugar.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	riskRepo := postgres.NewRiskRepository(pool)
	consentRepo := postgres.NewConsentRepository(pool)
	requestRepo := postgres.NewRequestRepository(pool)
	gstRepo := postgres.NewGSTRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)

	velocityStore, err := redisrepo.NewVelocityStore(cfg.Redis, cfg.Risk.VelocityWindow)
	if err != nil {
		sugar.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer velocityStore.Close()

	esRepo, err := elasticsearch.NewSearchRepository(cfg.Elasticsearch)
	if err != nil {
		sugar.Warnf("Failed to connect to Elasticsearch: %v (audit search will be limited)", err)
	}

	exportRepo, err := s3.NewExportRepository(ctx, cfg.S3)
	if err != nil {
		sugar.Fatalf("Failed to initialize S3 repository: %v", err)
	}

	// 5. Kafka producer (regulator submissions, operational alerts)
	producer, err := events.NewProducer(cfg.Kafka, logger)
	if err != nil {
		sugar.Fatalf("Failed to create Kafka producer: %v", err)
	}
	defer producer.Close()

	// 6. Services
	var indexer service.SearchIndexer
	if esRepo != nil {
		indexer = esRepo
	}

	auditService := service.NewAuditService(auditRepo, indexer, producer, signer, logger, engineMetrics,
		cfg.Audit.WriteMaxRetries, cfg.Audit.WriteRetryBackoff)

	riskService, err := service.NewRiskService(cfg.Risk, riskRepo, velocityStore, producer, auditService, logger, engineMetrics)
	if err != nil {
		sugar.Fatalf("Failed to build risk service: %v", err)
	}
	defer riskService.Stop()

	consentService := service.NewConsentService(consentRepo, auditService, logger, engineMetrics)
	privacyService := service.NewPrivacyService(requestRepo, exportRepo, consentService, auditService, logger)

	gstService, err := service.NewGSTService(cfg.GST, gstRepo, auditService, logger, engineMetrics)
	if err != nil {
		sugar.Fatalf("Failed to build gst service: %v", err)
	}

	reportService := service.NewReportService(riskRepo, consentRepo, requestRepo, gstRepo, auditRepo,
		exportRepo, auditService, logger, engineMetrics)
	jobRunner := service.NewJobRunner(consentService, reportService, logger)

	// 7. Kafka intake consumer
	consumer, err := events.NewIntakeConsumer(cfg.Kafka, riskService, gstService, consentService, logger)
	if err != nil {
		sugar.Fatalf("Failed to create Kafka consumer: %v", err)
	}

	go func() {
		sugar.Info("Starting Kafka consumer loop...")
		if err := consumer.Start(ctx); err != nil {
			sugar.Errorf("Kafka consumer failed: %v", err)
		}
	}()
	defer consumer.Close()

	// 8. API Server
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	riskHandler := api.NewRiskHandler(riskService)
	consentHandler := api.NewConsentHandler(consentService)
	privacyHandler := api.NewPrivacyHandler(privacyService)
	gstHandler := api.NewGSTHandler(gstService)
	auditHandler := api.NewAuditHandler(auditService, esRepo)
	reportHandler := api.NewReportHandler(reportService, jobRunner)

	v1 := e.Group("/v1")

	// Security: JWT authentication for the whole API surface
	keyData, err := os.ReadFile(cfg.Auth.JWTPublicKeyPath)
	var signingKey interface{}
	if err == nil {
		signingKey, err = jwt.ParseRSAPublicKeyFromPEM(keyData)
		if err != nil {
			sugar.Warnf("Failed to parse JWT public key: %v", err)
		}
	} else {
		sugar.Warnf("JWT public key not found at %s: %v", cfg.Auth.JWTPublicKeyPath, err)
	}

	if signingKey != nil {
		jwtConfig := echojwt.Config{
			SigningKey:    signingKey,
			SigningMethod: "RS256",
			NewClaimsFunc: func(c echo.Context) jwt.Claims {
				return new(jwt.MapClaims)
			},
		}
		v1.Use(echojwt.WithConfig(jwtConfig))
		sugar.Info("JWT Authentication enabled for /v1/*")
	} else {
		sugar.Warn("JWT Authentication DISABLED - Missing Public Key (Security Risk)")
	}

	riskHandler.RegisterRoutes(v1.Group("/risk"))
	consentHandler.RegisterRoutes(v1.Group("/consents"))
	privacyHandler.RegisterRoutes(v1.Group("/privacy"))
	gstHandler.RegisterRoutes(v1.Group("/gst"))
	auditHandler.RegisterRoutes(v1.Group("/audit"))
	reportHandler.RegisterRoutes(v1.Group("/reports"), v1.Group("/jobs"))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Start Server
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Shutting down the server: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sugar.Info("Shutting down service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		sugar.Fatal(err)
	}
}
