package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/careloop/visit-service/internal/azure"
	"github.com/careloop/visit-service/internal/config"
	"github.com/careloop/visit-service/internal/handler"
	"github.com/careloop/visit-service/internal/identity"
	"github.com/careloop/visit-service/internal/middleware"
	"github.com/careloop/visit-service/internal/pdf"
	"github.com/careloop/visit-service/internal/repository"
	"github.com/careloop/visit-service/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize Zap logger
	var logger *zap.Logger
	if cfg.Server.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize database connection pool with pgx
	pool, err := pgxpool.New(context.Background(), cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// Test database connection
	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Successfully connected to database")

	// Initialize the identity provider client
	var sessions identity.Provider
	if cfg.Identity.BaseURL != "" {
		identityClient, err := identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.APIKey, logger)
		if err != nil {
			logger.Fatal("Failed to initialize identity client", zap.Error(err))
		}
		sessions = identityClient
	} else {
		logger.Warn("Identity provider not configured; visit completion will be blocked")
	}

	// Initialize Azure OpenAI client. Optional: without it the visit summary
	// falls back to a deterministic template.
	var summarizer service.SummaryGenerator
	if cfg.Azure.OpenAI.Endpoint != "" {
		openAIClient, err := azure.NewOpenAIClient(
			cfg.Azure.OpenAI.Endpoint,
			cfg.Azure.OpenAI.APIKey,
			cfg.Azure.OpenAI.Deployment,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Azure OpenAI client", zap.Error(err))
		}
		summarizer = openAIClient
	} else {
		logger.Warn("Azure OpenAI not configured; using deterministic visit summaries")
	}

	// Initialize blob storage: one container for rendered report PDFs, one
	// for signature images and visit photos. The in-memory mock keeps local
	// development working without an Azure account.
	var reportStorage azure.BlobStorage
	var signatureStorage azure.BlobStorage
	if cfg.Azure.Storage.AccountName != "" {
		reportClient, err := azure.NewBlobStorageClient(
			cfg.Azure.Storage.AccountName,
			cfg.Azure.Storage.AccountKey,
			cfg.Azure.Storage.ReportContainer,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize report blob storage client", zap.Error(err))
		}
		reportStorage = reportClient

		signatureClient, err := azure.NewBlobStorageClient(
			cfg.Azure.Storage.AccountName,
			cfg.Azure.Storage.AccountKey,
			cfg.Azure.Storage.SignatureContainer,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize signature blob storage client", zap.Error(err))
		}
		signatureStorage = signatureClient
	} else {
		logger.Warn("Azure Blob Storage not configured; using in-memory storage")
		reportStorage = azure.NewMockBlobStorageClient(logger)
		signatureStorage = azure.NewMockBlobStorageClient(logger)
	}

	// Initialize repositories
	visitRepo := repository.NewVisitRepository(pool, logger)
	reportRepo := repository.NewReportRepository(pool, logger)
	bookingRepo := repository.NewBookingRepository(pool, logger)

	// Initialize PDF generator
	pdfGenerator := pdf.NewPDFGenerator(logger)

	// Initialize the completion pipeline. The write queue is shared between
	// the draft scheduler and the sequencer so writes to one visit never
	// interleave.
	writeQueue := service.NewWriteQueue()

	sequencer := service.NewSequencer(
		visitRepo,
		reportRepo,
		bookingRepo,
		sessions,
		summarizer,
		pdfGenerator,
		reportStorage,
		writeQueue,
		service.SequencerConfig{
			SaveTimeout:      cfg.Completion.SaveTimeout,
			LookupTimeout:    cfg.Completion.LookupTimeout,
			ReportTimeout:    cfg.Completion.ReportTimeout,
			HintTimeout:      cfg.Completion.HintTimeout,
			RefreshThreshold: cfg.Identity.RefreshThreshold,
		},
		logger,
	)

	completionManager := service.NewCompletionManager(
		sequencer,
		service.CompletionConfig{
			MaxAttempts:    cfg.Completion.MaxAttempts,
			InitialBackoff: cfg.Completion.InitialBackoff,
			GlobalTimeout:  cfg.Completion.GlobalTimeout,
		},
		logger,
	)

	visitService := service.NewVisitService(
		visitRepo,
		bookingRepo,
		sessions,
		signatureStorage,
		completionManager,
		writeQueue,
		cfg.Completion.DebounceInterval,
		logger,
	)
	reportService := service.NewReportService(reportRepo, reportStorage, logger)

	// Initialize handlers
	visitHandler := handler.NewVisitHandler(visitService, logger)
	reportHandler := handler.NewReportHandler(reportService, logger)
	healthHandler := handler.NewHealthHandler(pool, logger)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	r := gin.New()

	// Add recovery middleware (must be first)
	r.Use(middleware.RecoveryMiddleware(logger))

	// Add CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Configure appropriately for production
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Add request ID middleware
	r.Use(middleware.RequestIDMiddleware())

	// Add request logging middleware
	r.Use(middleware.RequestLoggingMiddleware(logger))

	// Add error logging middleware
	r.Use(middleware.ErrorLoggingMiddleware(logger))

	// Register routes
	r.GET("/health", healthHandler.GetHealth)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/visits", visitHandler.PostVisit)
		v1.GET("/visits/:id", visitHandler.GetVisit)
		v1.PUT("/visits/:id", visitHandler.PutVisit)
		v1.PUT("/visits/:id/draft", visitHandler.PutVisitDraft)
		v1.POST("/visits/:id/complete", visitHandler.PostVisitComplete)
		v1.GET("/visits/:id/completion", visitHandler.GetVisitCompletion)
		v1.POST("/visits/:id/completion/retry", visitHandler.PostVisitCompletionRetry)
		v1.DELETE("/visits/:id/completion", visitHandler.DeleteVisitCompletion)
		v1.GET("/bookings/:id/report", reportHandler.GetBookingReport)
		v1.GET("/bookings/:id/report/pdf", reportHandler.GetBookingReportPDF)
	}

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Close database connections
	pool.Close()

	logger.Info("Server exited")
}
