package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lendpeer/escrow-engine/internal/repository"
	customError "github.com/lendpeer/escrow-engine/pkg/errors"
)

const statsCacheTTL = 5 * time.Minute

// StatsService serves read-only aggregates over the ledger, cached briefly in
// Redis since statements tolerate slight staleness.
type StatsService struct {
	db           *sqlx.DB
	Transactions repository.TransactionRepository
	redis        *redis.Client
	log          *logrus.Logger
}

func NewStatsService(db *sqlx.DB, transactions repository.TransactionRepository, redisClient *redis.Client, log *logrus.Logger) *StatsService {
	return &StatsService{db: db, Transactions: transactions, redis: redisClient, log: log}
}

// PlatformSummary aggregates completed amounts per transaction type across
// the whole ledger.
func (s *StatsService) PlatformSummary(ctx context.Context) ([]*repository.TypeTotal, error) {
	return s.summary(ctx, "stats:platform", nil)
}

// AccountSummary aggregates completed amounts per transaction type for one
// escrow account.
func (s *StatsService) AccountSummary(ctx context.Context, accountID uuid.UUID) ([]*repository.TypeTotal, error) {
	return s.summary(ctx, fmt.Sprintf("stats:account:%s", accountID), &accountID)
}

func (s *StatsService) summary(ctx context.Context, cacheKey string, accountID *uuid.UUID) ([]*repository.TypeTotal, error) {
	if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
		var totals []*repository.TypeTotal
		if err := json.Unmarshal([]byte(cached), &totals); err == nil {
			return totals, nil
		}
	}

	totals, err := s.Transactions.SummarizeByType(ctx, s.db, accountID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	if payload, err := json.Marshal(totals); err == nil {
		if err := s.redis.Set(ctx, cacheKey, payload, statsCacheTTL).Err(); err != nil {
			s.log.WithError(err).Debug("stats cache write failed")
		}
	}

	return totals, nil
}
