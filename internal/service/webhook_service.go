package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lendpeer/escrow-engine/internal/domain"
	"github.com/lendpeer/escrow-engine/internal/gateway"
	"github.com/lendpeer/escrow-engine/internal/repository"
	customError "github.com/lendpeer/escrow-engine/pkg/errors"
)

// webhookDedupeTTL bounds how long processed event ids are remembered.
const webhookDedupeTTL = 24 * time.Hour

// WebhookService verifies, parses and idempotently applies processor events.
// Redis remembers processed event ids so redeliveries are acknowledged
// without reapplying state changes.
type WebhookService struct {
	db           *sqlx.DB
	Transactions repository.TransactionRepository
	processor    gateway.PaymentProcessor
	redis        *redis.Client
	log          *logrus.Logger
}

func NewWebhookService(
	db *sqlx.DB,
	transactions repository.TransactionRepository,
	processor gateway.PaymentProcessor,
	redisClient *redis.Client,
	log *logrus.Logger,
) *WebhookService {
	return &WebhookService{
		db:           db,
		Transactions: transactions,
		processor:    processor,
		redis:        redisClient,
		log:          log,
	}
}

// Handle verifies the signature, parses the event and applies it. Unknown
// references and replayed events are acknowledged without effect.
func (s *WebhookService) Handle(ctx context.Context, provider string, payload []byte, signature string) error {
	event, err := s.processor.ParseWebhookEvent(payload, signature)
	if err != nil {
		if errors.Is(err, customError.ErrWebhookSignature) {
			return customError.WrapValidation("webhook signature verification failed", err)
		}
		return customError.WrapValidation("malformed webhook payload", err)
	}

	dedupeKey := fmt.Sprintf("webhook:%s:%s", provider, event.ID)
	fresh, err := s.redis.SetNX(ctx, dedupeKey, 1, webhookDedupeTTL).Result()
	if err != nil {
		// Redis being down degrades to at-least-once; the status transition
		// check below keeps the apply idempotent anyway.
		s.log.WithError(err).Warn("webhook dedupe check failed")
	} else if !fresh {
		s.log.WithField("event_id", event.ID).Debug("duplicate webhook event acknowledged")
		return nil
	}

	if applyErr := s.apply(ctx, event); applyErr != nil {
		// Release the dedupe claim so the provider's retry is not swallowed
		// as a duplicate of a delivery that never took effect.
		if fresh {
			if delErr := s.redis.Del(ctx, dedupeKey).Err(); delErr != nil {
				s.log.WithError(delErr).WithField("event_id", event.ID).Warn("failed to release webhook dedupe key")
			}
		}
		return applyErr
	}

	return nil
}

func (s *WebhookService) apply(ctx context.Context, event *gateway.WebhookEvent) error {
	return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		entry, err := s.Transactions.GetByNumber(ctx, tx, event.Reference)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.log.WithFields(logrus.Fields{
					"event_id":  event.ID,
					"reference": event.Reference,
				}).Warn("webhook references unknown transaction")
				return nil
			}
			return customError.WrapDatabaseError(err)
		}

		locked, err := s.Transactions.GetForUpdate(ctx, tx, entry.ID)
		if err != nil {
			return customError.WrapDatabaseError(err)
		}

		var target string
		switch event.Status {
		case "succeeded", "completed":
			target = domain.TransactionStatusCompleted
		case "failed":
			target = domain.TransactionStatusFailed
		default:
			s.log.WithFields(logrus.Fields{
				"event_id": event.ID,
				"status":   event.Status,
			}).Debug("ignoring webhook status")
			return nil
		}

		if !domain.TransactionCanTransition(locked.Status, target) {
			// Already settled locally; nothing to apply.
			return nil
		}

		now := time.Now()
		locked.Status = target
		if target == domain.TransactionStatusCompleted {
			locked.ProcessedAt = &now
			if locked.Metadata == nil {
				locked.Metadata = domain.Metadata{}
			}
			locked.Metadata[metadataProviderRef] = event.ProviderRef
		} else if event.Reason != "" {
			reason := event.Reason
			locked.FailureReason = &reason
		}

		if err := s.Transactions.Update(ctx, tx, locked); err != nil {
			return customError.WrapDatabaseError(err)
		}

		s.log.WithFields(logrus.Fields{
			"event_id":       event.ID,
			"transaction_id": locked.ID,
			"status":         target,
		}).Info("webhook applied")
		return nil
	})
}
