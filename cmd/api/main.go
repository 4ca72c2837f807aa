package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"content-api/internal/config"
	"content-api/internal/domain"
	"content-api/internal/handler"
	"content-api/internal/logger"
	"content-api/internal/middleware"
	"content-api/internal/scheduler"
	"content-api/internal/storage"
	"content-api/internal/worker"
)

func main() {
	// Carregar configurações
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Inicializar logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	appLogger.Info("Starting Content API abuse-protection layer", map[string]interface{}{
		"log_level": cfg.LogLevel,
		"port":      cfg.ServerPort,
		"store":     cfg.StoreType,
	})

	// Inicializar counter store (Redis com fallback em memória)
	store, err := storage.NewCounterStore(&storage.StoreConfig{
		Type: storage.StoreType(cfg.StoreType),
		RedisConfig: &storage.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			Database: cfg.RedisDB,
		},
	}, appLogger)
	if err != nil {
		log.Fatalf("Failed to create counter store: %v", err)
	}
	defer store.Close()

	// Inicializar DDoS guard com ciclo de vida explícito
	guard := middleware.NewDDoSGuard(middleware.DDoSGuardConfig{
		BanThreshold:       cfg.BanThreshold,
		BanDuration:        cfg.BanDuration,
		SweepInterval:      cfg.SweepInterval,
		BlockedIPs:         cfg.BlockedIPs,
		MinUserAgentLength: cfg.MinUserAgent,
	}, store, appLogger)
	guard.Start()
	defer guard.Stop()

	// Banco relacional para ingestão e manutenção agendada (opcional)
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Inicializar dispatcher e registrar as tarefas
	dispatcher := worker.NewDispatcher(appLogger)
	dispatcher.Register(domain.TaskOptimizeImages, worker.NewImageOptimizer(appLogger).Task())
	if db != nil {
		dispatcher.Register(domain.TaskImportSpreadsheet, worker.NewSpreadsheetImporter(db, appLogger).Task())
	}

	// Manutenção agendada: reset diário de cotas
	if db != nil {
		resetJob := scheduler.NewQuotaResetJob(
			scheduler.NewPostgresQuotaStore(db),
			appLogger,
			cfg.QuotaResetCron,
			cfg.QuotaResetValue,
		)
		if err := resetJob.Start(); err != nil {
			log.Fatalf("Failed to start quota reset job: %v", err)
		}
		defer resetJob.Stop()
	} else {
		appLogger.Warn("DATABASE_URL not set, spreadsheet import and quota reset disabled", nil)
	}

	// Configurar Gin
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Middleware de logging customizado
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	// Configurar rotas
	handlers := handler.NewHandlers(store, dispatcher, cfg, appLogger)
	handlers.SetupRoutes(router, guard)

	// Configurar servidor HTTP
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Iniciar servidor em goroutine
	go func() {
		appLogger.Info("Starting HTTP server", map[string]interface{}{
			"addr": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Failed to start server", err, nil)
			os.Exit(1)
		}
	}()

	// Aguardar sinais de interrupção
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	appLogger.Info("Content API is running", map[string]interface{}{
		"port": cfg.ServerPort,
		"rate_limits": map[string]interface{}{
			"api":     cfg.APILimiter.MaxRequests,
			"auth":    cfg.AuthLimiter.MaxRequests,
			"upload":  cfg.UploadLimiter.MaxRequests,
			"payment": cfg.PaymentLimiter.MaxRequests,
			"enforce": cfg.RateLimitEnforce,
		},
		"ddos": map[string]interface{}{
			"ban_threshold": cfg.BanThreshold,
			"ban_duration":  cfg.BanDuration.String(),
		},
	})

	<-quit
	appLogger.Info("Shutting down server...", nil)

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", err, nil)
		os.Exit(1)
	}

	appLogger.Info("Server stopped gracefully", nil)
}
