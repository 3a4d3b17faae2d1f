package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lendpeer/escrow-engine/internal/config"
	"github.com/lendpeer/escrow-engine/internal/domain"
	"github.com/lendpeer/escrow-engine/internal/gateway"
	"github.com/lendpeer/escrow-engine/internal/repository"
	customError "github.com/lendpeer/escrow-engine/pkg/errors"
	"github.com/lendpeer/escrow-engine/pkg/utils"
)

// metadata key holding the processor's settlement reference
const metadataProviderRef = "provider_ref"

// LedgerService records every money movement as an immutable, uniquely
// numbered entry and drives refunds. The local ledger is the source of
// truth: processor-side refund failures are logged for out-of-band
// reconciliation, never rolled back.
type LedgerService struct {
	db             *sqlx.DB
	Transactions   repository.TransactionRepository
	Accounts       repository.AccountRepository
	PaymentMethods repository.PaymentMethodRepository
	processor      gateway.PaymentProcessor
	notifier       gateway.Notifier
	log            *logrus.Logger
	config         *config.Config
}

func NewLedgerService(
	db *sqlx.DB,
	transactions repository.TransactionRepository,
	accounts repository.AccountRepository,
	paymentMethods repository.PaymentMethodRepository,
	processor gateway.PaymentProcessor,
	notifier gateway.Notifier,
	log *logrus.Logger,
	cfg *config.Config,
) *LedgerService {
	return &LedgerService{
		db:             db,
		Transactions:   transactions,
		Accounts:       accounts,
		PaymentMethods: paymentMethods,
		processor:      processor,
		notifier:       notifier,
		log:            log,
		config:         cfg,
	}
}

// CreateTransaction records a new pending ledger entry.
func (s *LedgerService) CreateTransaction(ctx context.Context, req *domain.CreateTransactionRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, customError.WrapValidation("transaction amount must be positive", customError.ErrInvalidAmount)
	}

	now := time.Now()
	entry := &domain.Transaction{
		ID:              uuid.New(),
		TransactionType: req.TransactionType,
		Status:          domain.TransactionStatusPending,
		Amount:          req.Amount,
		Currency:        req.Currency,
		LoanID:          req.LoanID,
		EscrowAccountID: req.EscrowAccountID,
		PaymentMethodID: req.PaymentMethodID,
		UserID:          req.UserID,
		Description:     req.Description,
		Metadata:        req.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := withNumberRetry(s.config.Business.NumberRetries, func() error {
		entry.TransactionNumber = utils.GenerateBusinessNumber(utils.PrefixTransaction, time.Now())
		return s.Transactions.Create(ctx, s.db, entry)
	})
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return entry, nil
}

// GetTransaction retrieves a ledger entry by id.
func (s *LedgerService) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	entry, err := s.Transactions.GetByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapNotFound("transaction", id.String(), customError.ErrTransactionNotFound)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return entry, nil
}

// ProcessPayment charges a payment method through the processor and records
// the outcome. The pending entry commits before the processor call so a
// crash mid-charge leaves a reconcilable record.
func (s *LedgerService) ProcessPayment(ctx context.Context, req *domain.ProcessPaymentRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, customError.WrapValidation("payment amount must be positive", customError.ErrInvalidAmount)
	}

	method, err := s.PaymentMethods.GetByID(ctx, s.db, req.PaymentMethodID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapNotFound("payment method", req.PaymentMethodID.String(), customError.ErrPaymentMethodNotFound)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	if !domain.IsPaymentMethodUsable(method) {
		return nil, customError.WrapInvariant("payment method is not active or verified", customError.ErrPaymentMethodNotUsable)
	}

	entry, err := s.CreateTransaction(ctx, &domain.CreateTransactionRequest{
		TransactionType: domain.TransactionTypeLoanPayment,
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaymentMethodID: &method.ID,
		UserID:          &method.UserID,
		Description:     req.Description,
	})
	if err != nil {
		return nil, err
	}

	result, chargeErr := s.processor.Charge(ctx, &gateway.ChargeRequest{
		Token:       method.ProcessorToken,
		CustomerID:  method.ProcessorCustomerID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Reference:   entry.TransactionNumber,
	})

	now := time.Now()
	if chargeErr != nil {
		reason := chargeErr.Error()
		entry.Status = domain.TransactionStatusFailed
		entry.FailureReason = &reason
		if err := s.Transactions.Update(ctx, s.db, entry); err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		return entry, customError.WrapProcessorError("charge", chargeErr)
	}

	entry.Status = domain.TransactionStatusCompleted
	entry.ProcessedAt = &now
	if entry.Metadata == nil {
		entry.Metadata = domain.Metadata{}
	}
	entry.Metadata[metadataProviderRef] = result.ProviderRef
	if err := s.Transactions.Update(ctx, s.db, entry); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	if err := s.recordMethodUsage(ctx, method.ID, req.Amount); err != nil {
		s.log.WithError(err).WithField("payment_method_id", method.ID).Warn("failed to record payment method usage")
	}

	return entry, nil
}

// Refund reverses a completed ledger entry. It creates a new refund entry
// linked to the original, flips the original to refunded, and reverses the
// escrow balance effect when the original touched an account. A processor
// refund, if needed, runs only after the local unit of work commits.
func (s *LedgerService) Refund(ctx context.Context, transactionID uuid.UUID, req *domain.RefundRequest) (*domain.Transaction, error) {
	var refund *domain.Transaction
	var original *domain.Transaction

	err := withNumberRetry(s.config.Business.NumberRetries, func() error {
		return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
			var err error
			original, err = s.Transactions.GetForUpdate(ctx, tx, transactionID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return customError.WrapNotFound("transaction", transactionID.String(), customError.ErrTransactionNotFound)
				}
				return customError.WrapDatabaseError(err)
			}

			if !domain.TransactionCanTransition(original.Status, domain.TransactionStatusRefunded) {
				return customError.WrapInvariant("only completed transactions can be refunded", customError.ErrTransactionNotRefundable)
			}

			amount := original.Amount
			if req.Amount != nil {
				amount = *req.Amount
			}
			if !amount.IsPositive() {
				return customError.WrapValidation("refund amount must be positive", customError.ErrInvalidAmount)
			}
			if amount.GreaterThan(original.Amount) {
				return customError.WrapInvariant("refund amount exceeds original amount", customError.ErrRefundExceedsOriginal)
			}

			if domain.IsBalanceReversible(original) {
				if err := s.reverseBalance(ctx, tx, original, amount); err != nil {
					return err
				}
			}

			now := time.Now()
			refund = &domain.Transaction{
				ID:                   uuid.New(),
				TransactionNumber:    utils.GenerateBusinessNumber(utils.PrefixTransaction, now),
				TransactionType:      domain.TransactionTypeRefund,
				Status:               domain.TransactionStatusCompleted,
				Amount:               amount,
				Currency:             original.Currency,
				LoanID:               original.LoanID,
				EscrowAccountID:      original.EscrowAccountID,
				PaymentMethodID:      original.PaymentMethodID,
				UserID:               original.UserID,
				RelatedTransactionID: &original.ID,
				Description:          fmt.Sprintf("refund of %s: %s", original.TransactionNumber, req.Reason),
				ProcessedAt:          &now,
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			if err := s.Transactions.Create(ctx, tx, refund); err != nil {
				return err
			}

			original.Status = domain.TransactionStatusRefunded
			original.RelatedTransactionID = &refund.ID
			return s.Transactions.Update(ctx, tx, original)
		})
	})
	if err != nil {
		return nil, err
	}

	// The local reversal is already committed. A processor failure here is
	// reconciled out of band, not rolled back.
	if providerRef, ok := original.Metadata[metadataProviderRef]; ok && providerRef != "" {
		if _, procErr := s.processor.Refund(ctx, providerRef, refund.Amount, refund.Currency); procErr != nil {
			s.log.WithError(procErr).WithFields(logrus.Fields{
				"transaction_id": original.ID,
				"provider_ref":   providerRef,
			}).Error("processor refund failed, manual reconciliation required")
		}
	}

	s.notifier.Notify(gateway.EventRefundIssued,
		fmt.Sprintf("refund %s of %s %s for %s", refund.TransactionNumber, refund.Amount, refund.Currency, original.TransactionNumber))
	return refund, nil
}

// reverseBalance undoes the account effect of the original entry: refunding
// a withdrawal credits the account back, refunding a deposit debits it. The
// account must still be active, so a closed account keeps its zero balance.
func (s *LedgerService) reverseBalance(ctx context.Context, q repository.Querier, original *domain.Transaction, amount decimal.Decimal) error {
	account, err := s.Accounts.GetForUpdate(ctx, q, *original.EscrowAccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return customError.WrapNotFound("escrow account", original.EscrowAccountID.String(), customError.ErrAccountNotFound)
		}
		return customError.WrapDatabaseError(err)
	}

	if !domain.IsAccountUsable(account) {
		return customError.WrapInvariant("cannot reverse balances on an inactive account", customError.ErrAccountNotActive)
	}

	switch original.TransactionType {
	case domain.TransactionTypeWithdrawal, domain.TransactionTypeEscrowRelease:
		account.CurrentBalance = account.CurrentBalance.Add(amount)
		account.AvailableBalance = account.AvailableBalance.Add(amount)
	case domain.TransactionTypeDeposit, domain.TransactionTypeEscrowDeposit:
		if amount.GreaterThan(account.AvailableBalance) {
			return customError.WrapInsufficientFunds(account.ID.String())
		}
		account.CurrentBalance = account.CurrentBalance.Sub(amount)
		account.AvailableBalance = account.AvailableBalance.Sub(amount)
	}

	if err := s.Accounts.Update(ctx, q, account); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

func (s *LedgerService) recordMethodUsage(ctx context.Context, methodID uuid.UUID, amount decimal.Decimal) error {
	return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		method, err := s.PaymentMethods.GetForUpdate(ctx, tx, methodID)
		if err != nil {
			return err
		}
		now := time.Now()
		method.UsageCount++
		method.TotalUsed = method.TotalUsed.Add(amount)
		method.LastUsedAt = &now
		return s.PaymentMethods.Update(ctx, tx, method)
	})
}
