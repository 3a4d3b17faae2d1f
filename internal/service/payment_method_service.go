package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lendpeer/escrow-engine/internal/domain"
	"github.com/lendpeer/escrow-engine/internal/repository"
	customError "github.com/lendpeer/escrow-engine/pkg/errors"
)

// PaymentMethodService manages tokenized payment instruments. A user always
// has exactly one default method once they have any.
type PaymentMethodService struct {
	db      *sqlx.DB
	Methods repository.PaymentMethodRepository
	log     *logrus.Logger
}

func NewPaymentMethodService(db *sqlx.DB, methods repository.PaymentMethodRepository, log *logrus.Logger) *PaymentMethodService {
	return &PaymentMethodService{db: db, Methods: methods, log: log}
}

// Create registers a new payment method. The user's first method becomes the
// default automatically; new methods start pending and unverified.
func (s *PaymentMethodService) Create(ctx context.Context, req *domain.CreatePaymentMethodRequest) (*domain.PaymentMethod, error) {
	var method *domain.PaymentMethod
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		count, err := s.Methods.CountByUser(ctx, tx, req.UserID)
		if err != nil {
			return customError.WrapDatabaseError(err)
		}

		now := time.Now()
		method = &domain.PaymentMethod{
			ID:             uuid.New(),
			UserID:         req.UserID,
			MethodType:     req.MethodType,
			LastFour:       req.LastFour,
			HolderName:     req.HolderName,
			ProcessorToken: req.ProcessorToken,
			IsDefault:      count == 0,
			IsVerified:     false,
			Status:         domain.PaymentMethodStatusPending,
			ExpiryMonth:    req.ExpiryMonth,
			ExpiryYear:     req.ExpiryYear,
			TotalUsed:      decimal.Zero,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.Methods.Create(ctx, tx, method)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"payment_method_id": method.ID,
		"user_id":           method.UserID,
		"is_default":        method.IsDefault,
	}).Info("payment method registered")

	return method, nil
}

// Get retrieves a payment method by id.
func (s *PaymentMethodService) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	method, err := s.Methods.GetByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapNotFound("payment method", id.String(), customError.ErrPaymentMethodNotFound)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return method, nil
}

// ListByUser returns a user's methods, default first.
func (s *PaymentMethodService) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.PaymentMethod, error) {
	methods, err := s.Methods.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return methods, nil
}

// SetDefault atomically clears the previous default and promotes the target,
// which must be active or verified.
func (s *PaymentMethodService) SetDefault(ctx context.Context, userID, id uuid.UUID) (*domain.PaymentMethod, error) {
	var method *domain.PaymentMethod
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		method, err = s.lockMethod(ctx, tx, id)
		if err != nil {
			return err
		}
		if method.UserID != userID {
			return customError.WrapNotFound("payment method", id.String(), customError.ErrPaymentMethodNotFound)
		}
		if !domain.IsPaymentMethodUsable(method) {
			return customError.WrapInvariant("payment method is not active or verified", customError.ErrPaymentMethodNotUsable)
		}

		if err := s.Methods.ClearDefault(ctx, tx, userID); err != nil {
			return customError.WrapDatabaseError(err)
		}
		method.IsDefault = true
		return s.Methods.Update(ctx, tx, method)
	})
	if err != nil {
		return nil, err
	}
	return method, nil
}

// Verify marks a method as verified and usable.
func (s *PaymentMethodService) Verify(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	var method *domain.PaymentMethod
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		method, err = s.lockMethod(ctx, tx, id)
		if err != nil {
			return err
		}
		method.Status = domain.PaymentMethodStatusVerified
		method.IsVerified = true
		return s.Methods.Update(ctx, tx, method)
	})
	if err != nil {
		return nil, err
	}
	return method, nil
}

// Deactivate disables a non-default method.
func (s *PaymentMethodService) Deactivate(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	var method *domain.PaymentMethod
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		method, err = s.lockMethod(ctx, tx, id)
		if err != nil {
			return err
		}
		if method.IsDefault {
			return customError.WrapInvariant("default payment method cannot be deactivated", customError.ErrDefaultMethodDeactivation)
		}
		method.Status = domain.PaymentMethodStatusInactive
		return s.Methods.Update(ctx, tx, method)
	})
	if err != nil {
		return nil, err
	}
	return method, nil
}

// RecordUsage updates the last-used timestamp and running usage statistics.
func (s *PaymentMethodService) RecordUsage(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		method, err := s.lockMethod(ctx, tx, id)
		if err != nil {
			return err
		}
		now := time.Now()
		method.UsageCount++
		method.TotalUsed = method.TotalUsed.Add(amount)
		method.LastUsedAt = &now
		return s.Methods.Update(ctx, tx, method)
	})
}

func (s *PaymentMethodService) lockMethod(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.PaymentMethod, error) {
	method, err := s.Methods.GetForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapNotFound("payment method", id.String(), customError.ErrPaymentMethodNotFound)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return method, nil
}
