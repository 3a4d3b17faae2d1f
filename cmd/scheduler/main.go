package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/lendpeer/escrow-engine/internal/config"
	"github.com/lendpeer/escrow-engine/internal/gateway"
	"github.com/lendpeer/escrow-engine/internal/repository"
	"github.com/lendpeer/escrow-engine/internal/service"
)

// jobTimeout bounds a single sweep run.
const jobTimeout = 10 * time.Minute

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := initLogger(cfg)
	log.Info("Starting escrow scheduler...")

	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Wiring mirrors the server binary minus the HTTP layer.
	accountRepo := repository.NewAccountRepository()
	transactionRepo := repository.NewTransactionRepository()
	payoutRepo := repository.NewPayoutRepository()
	disbursementRepo := repository.NewDisbursementRepository()

	processor := gateway.NewHTTPProcessor(cfg)
	var notifier gateway.Notifier
	if cfg.Notification.Enabled {
		notifier = gateway.NewEmailNotifier(cfg, log)
	} else {
		notifier = gateway.NewLogNotifier(log)
	}

	accountService := service.NewAccountService(db, accountRepo, transactionRepo, notifier, log, cfg)
	payoutService := service.NewPayoutService(db, payoutRepo, accountService, processor, notifier, log, cfg)
	disbursementService := service.NewDisbursementService(db, disbursementRepo, accountService, notifier, log, cfg)

	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		log.Fatalf("Invalid scheduler timezone %q: %v", cfg.Scheduler.Timezone, err)
	}

	// Initialize cron scheduler
	c := cron.New(cron.WithSeconds(), cron.WithLocation(location))

	setupCronJobs(c, cfg, log, disbursementService, payoutService)

	// Start the scheduler
	c.Start()
	log.Info("Scheduler started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down scheduler...")
	<-c.Stop().Done()
	log.Info("Scheduler stopped")
}

func setupCronJobs(
	c *cron.Cron,
	cfg *config.Config,
	log *logrus.Logger,
	disbursements *service.DisbursementService,
	payouts *service.PayoutService,
) {
	_, err := c.AddFunc(cfg.Scheduler.DisbursementSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		log.Info("Running scheduled disbursement sweep...")
		result, err := disbursements.ProcessScheduled(ctx)
		if err != nil {
			log.WithError(err).Error("scheduled disbursement sweep failed")
			return
		}
		log.WithFields(logrus.Fields{
			"processed": result.Processed,
			"failed":    result.Failed,
		}).Info("scheduled disbursement sweep finished")
	})
	if err != nil {
		log.Fatalf("Error scheduling disbursement sweep: %v", err)
	}

	_, err = c.AddFunc(cfg.Scheduler.PayoutSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		log.Info("Running approved payout sweep...")
		result, err := payouts.ProcessPending(ctx)
		if err != nil {
			log.WithError(err).Error("approved payout sweep failed")
			return
		}
		log.WithFields(logrus.Fields{
			"processed": result.Processed,
			"failed":    result.Failed,
		}).Info("approved payout sweep finished")
	})
	if err != nil {
		log.Fatalf("Error scheduling payout sweep: %v", err)
	}

	log.Info("Cron jobs scheduled successfully")
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
