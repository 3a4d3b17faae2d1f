package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lendpeer/escrow-engine/internal/config"
	"github.com/lendpeer/escrow-engine/internal/gateway"
	"github.com/lendpeer/escrow-engine/internal/handler"
	"github.com/lendpeer/escrow-engine/internal/repository"
	"github.com/lendpeer/escrow-engine/internal/service"
	"github.com/lendpeer/escrow-engine/pkg/response"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := initLogger(cfg)

	// Initialize database
	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize Redis
	redisClient := initRedis(cfg)
	defer redisClient.Close()

	// Initialize repositories
	accountRepo := repository.NewAccountRepository()
	transactionRepo := repository.NewTransactionRepository()
	payoutRepo := repository.NewPayoutRepository()
	disbursementRepo := repository.NewDisbursementRepository()
	methodRepo := repository.NewPaymentMethodRepository()

	// Initialize gateways
	processor := gateway.NewHTTPProcessor(cfg)
	var notifier gateway.Notifier
	if cfg.Notification.Enabled {
		notifier = gateway.NewEmailNotifier(cfg, log)
	} else {
		notifier = gateway.NewLogNotifier(log)
	}

	// Initialize services
	accountService := service.NewAccountService(db, accountRepo, transactionRepo, notifier, log, cfg)
	ledgerService := service.NewLedgerService(db, transactionRepo, accountRepo, methodRepo, processor, notifier, log, cfg)
	payoutService := service.NewPayoutService(db, payoutRepo, accountService, processor, notifier, log, cfg)
	disbursementService := service.NewDisbursementService(db, disbursementRepo, accountService, notifier, log, cfg)
	methodService := service.NewPaymentMethodService(db, methodRepo, log)
	webhookService := service.NewWebhookService(db, transactionRepo, processor, redisClient, log)
	statsService := service.NewStatsService(db, transactionRepo, redisClient, log)

	// Initialize handlers
	escrowHandler := handler.NewEscrowHandler(accountService, statsService)
	transactionHandler := handler.NewTransactionHandler(ledgerService, webhookService, statsService)
	payoutHandler := handler.NewPayoutHandler(payoutService)
	disbursementHandler := handler.NewDisbursementHandler(disbursementService)
	methodHandler := handler.NewPaymentMethodHandler(methodService)
	healthHandler := handler.NewHealthHandler(db, redisClient, processor)

	// Setup routes
	router := setupRoutes(log, escrowHandler, transactionHandler, payoutHandler, disbursementHandler, methodHandler, healthHandler)

	// Start server
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Infof("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

func initLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return log
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(
	log *logrus.Logger,
	escrowHandler *handler.EscrowHandler,
	transactionHandler *handler.TransactionHandler,
	payoutHandler *handler.PayoutHandler,
	disbursementHandler *handler.DisbursementHandler,
	methodHandler *handler.PaymentMethodHandler,
	healthHandler *handler.HealthHandler,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(log))

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Escrow accounts
	api.HandleFunc("/accounts", escrowHandler.CreateAccount).Methods("POST")
	api.HandleFunc("/accounts/transfer", escrowHandler.Transfer).Methods("POST")
	api.HandleFunc("/accounts/{accountId}", escrowHandler.GetAccount).Methods("GET")
	api.HandleFunc("/accounts/{accountId}/activate", escrowHandler.Activate).Methods("POST")
	api.HandleFunc("/accounts/{accountId}/deposit", escrowHandler.Deposit).Methods("POST")
	api.HandleFunc("/accounts/{accountId}/withdraw", escrowHandler.Withdraw).Methods("POST")
	api.HandleFunc("/accounts/{accountId}/freeze", escrowHandler.Freeze).Methods("POST")
	api.HandleFunc("/accounts/{accountId}/unfreeze", escrowHandler.Unfreeze).Methods("POST")
	api.HandleFunc("/accounts/{accountId}/close", escrowHandler.Close).Methods("POST")
	api.HandleFunc("/accounts/{accountId}/statement", escrowHandler.GetStatement).Methods("GET")
	api.HandleFunc("/accounts/{accountId}/summary", escrowHandler.GetAccountSummary).Methods("GET")

	// Ledger
	api.HandleFunc("/transactions", transactionHandler.CreateTransaction).Methods("POST")
	api.HandleFunc("/transactions/{transactionId}", transactionHandler.GetTransaction).Methods("GET")
	api.HandleFunc("/transactions/{transactionId}/refund", transactionHandler.Refund).Methods("POST")
	api.HandleFunc("/payments", transactionHandler.ProcessPayment).Methods("POST")
	api.HandleFunc("/webhooks/{provider}", transactionHandler.HandleWebhook).Methods("POST")
	api.HandleFunc("/stats/platform", transactionHandler.PlatformSummary).Methods("GET")

	// Payouts
	api.HandleFunc("/payouts", payoutHandler.Create).Methods("POST")
	api.HandleFunc("/payouts/process-pending", payoutHandler.ProcessPending).Methods("POST")
	api.HandleFunc("/payouts/{payoutId}", payoutHandler.Get).Methods("GET")
	api.HandleFunc("/payouts/{payoutId}/approve", payoutHandler.Approve).Methods("POST")
	api.HandleFunc("/payouts/{payoutId}/reject", payoutHandler.Reject).Methods("POST")
	api.HandleFunc("/payouts/{payoutId}/process", payoutHandler.Process).Methods("POST")

	// Disbursements
	api.HandleFunc("/disbursements", disbursementHandler.Create).Methods("POST")
	api.HandleFunc("/disbursements/process-scheduled", disbursementHandler.ProcessScheduled).Methods("POST")
	api.HandleFunc("/disbursements/{disbursementId}", disbursementHandler.Get).Methods("GET")
	api.HandleFunc("/disbursements/{disbursementId}/schedule", disbursementHandler.GetSchedule).Methods("GET")
	api.HandleFunc("/disbursements/{disbursementId}/approve", disbursementHandler.Approve).Methods("POST")
	api.HandleFunc("/disbursements/{disbursementId}/schedule", disbursementHandler.Schedule).Methods("POST")
	api.HandleFunc("/disbursements/{disbursementId}/cancel", disbursementHandler.Cancel).Methods("POST")
	api.HandleFunc("/disbursements/{disbursementId}/process", disbursementHandler.Process).Methods("POST")

	// Payment methods
	api.HandleFunc("/payment-methods", methodHandler.Create).Methods("POST")
	api.HandleFunc("/payment-methods/{methodId}", methodHandler.Get).Methods("GET")
	api.HandleFunc("/payment-methods/{methodId}/verify", methodHandler.Verify).Methods("POST")
	api.HandleFunc("/payment-methods/{methodId}/deactivate", methodHandler.Deactivate).Methods("POST")
	api.HandleFunc("/users/{userId}/payment-methods", methodHandler.ListByUser).Methods("GET")
	api.HandleFunc("/users/{userId}/payment-methods/{methodId}/default", methodHandler.SetDefault).Methods("POST")

	return router
}
