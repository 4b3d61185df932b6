package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/gfranca/troca-api/internal/database"
	"github.com/gfranca/troca-api/internal/exchange"
	"github.com/gfranca/troca-api/internal/reporting"
	"github.com/gfranca/troca-api/internal/supplier"
	"github.com/gfranca/troca-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the exchange API server with graceful
// shutdown support
func main() {
	// Initialize database
	db, err := database.NewDatabase(os.Getenv("DB_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	supplierService := supplier.NewService(db)
	supplierHandlers := supplier.NewGinHandlers(supplierService)

	exchangeService := exchange.NewService(db)
	exchangeHandlers := exchange.NewGinHandlers(exchangeService)

	reportingService := reporting.NewService(db)
	reportingHandlers := reporting.NewGinHandlers(reportingService)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, supplierHandlers, exchangeHandlers, reportingHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// Routes are grouped by resource: suppliers, exchanges (the state-machine
// operations) and the read-only dashboard rollups
func setupRoutes(
	router *gin.Engine,
	supplierHandlers *supplier.GinHandlers,
	exchangeHandlers *exchange.GinHandlers,
	reportingHandlers *reporting.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Supplier routes
		suppliers := v1.Group("/suppliers")
		{
			suppliers.POST("", supplierHandlers.CreateSupplierHandler())
			suppliers.GET("", supplierHandlers.ListSuppliersHandler())
		}

		// Exchange routes
		exchanges := v1.Group("/exchanges")
		{
			exchanges.POST("", exchangeHandlers.CreateExchangeHandler())
			exchanges.GET("", exchangeHandlers.ListExchangesHandler())
			exchanges.GET("/:exchange_id", exchangeHandlers.GetExchangeHandler())
			exchanges.PATCH("/:exchange_id", exchangeHandlers.UpdateExchangeHandler())
			exchanges.DELETE("/:exchange_id", exchangeHandlers.DeleteExchangeHandler())

			exchanges.POST("/:exchange_id/budget", exchangeHandlers.SetBudgetHandler())
			exchanges.POST("/:exchange_id/budget/approve", exchangeHandlers.ApproveBudgetHandler())

			exchanges.POST("/:exchange_id/draft-invoice", exchangeHandlers.CreateDraftInvoiceHandler())
			exchanges.POST("/:exchange_id/draft-invoice/approve", exchangeHandlers.ApproveDraftInvoiceHandler())

			exchanges.POST("/:exchange_id/return-invoice", exchangeHandlers.IssueReturnInvoiceHandler())
			exchanges.POST("/:exchange_id/return-invoice/shipped", exchangeHandlers.MarkProductShippedHandler())

			exchanges.POST("/:exchange_id/disposition/collect", exchangeHandlers.SetDestinationCollectHandler())
			exchanges.POST("/:exchange_id/disposition/discard", exchangeHandlers.SetDestinationDiscardHandler())
			exchanges.POST("/:exchange_id/disposition/collected", exchangeHandlers.MarkCollectionDoneHandler())
			exchanges.POST("/:exchange_id/disposition/discarded", exchangeHandlers.MarkDiscardedHandler())

			exchanges.POST("/:exchange_id/restock", exchangeHandlers.RegisterRestockHandler())
			exchanges.PATCH("/:exchange_id/restock", exchangeHandlers.UpdateRestockHandler())

			exchanges.POST("/:exchange_id/discount", exchangeHandlers.RegisterDiscountHandler())
			exchanges.POST("/:exchange_id/discount/apply", exchangeHandlers.ApplyDiscountHandler())

			exchanges.POST("/:exchange_id/finalize", exchangeHandlers.FinalizeExchangeHandler())
			exchanges.POST("/:exchange_id/extend-deadline", exchangeHandlers.ExtendDeadlineHandler())
			exchanges.POST("/:exchange_id/recompute", exchangeHandlers.RecomputeFinancialsHandler())

			exchanges.GET("/:exchange_id/history", exchangeHandlers.HistoryHandler())
			exchanges.GET("/:exchange_id/extensions", exchangeHandlers.ExtensionsHandler())
		}

		// Dashboard routes (read-only rollups)
		dashboard := v1.Group("/dashboard")
		{
			dashboard.GET("/stats", reportingHandlers.StatusCountsHandler())
			dashboard.GET("/financial-stats", reportingHandlers.FinancialSummaryHandler())
			dashboard.GET("/overdue", reportingHandlers.OverdueCountHandler())
		}
	}
}
