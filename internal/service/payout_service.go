package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/lendpeer/escrow-engine/internal/config"
	"github.com/lendpeer/escrow-engine/internal/domain"
	"github.com/lendpeer/escrow-engine/internal/gateway"
	"github.com/lendpeer/escrow-engine/internal/repository"
	customError "github.com/lendpeer/escrow-engine/pkg/errors"
	"github.com/lendpeer/escrow-engine/pkg/utils"
)

// PayoutService drives the pending -> approved -> processing -> completed
// workflow that releases funds to external recipients. Approval reserves the
// amount on the source escrow account; processing releases the hold,
// withdraws, and settles externally. A processor failure after the local
// debit marks the request failed without re-crediting: funds already left
// the internal ledger and are reconciled manually.
type PayoutService struct {
	db        *sqlx.DB
	Payouts   repository.PayoutRepository
	accounts  *AccountService
	processor gateway.PaymentProcessor
	notifier  gateway.Notifier
	log       *logrus.Logger
	config    *config.Config
}

func NewPayoutService(
	db *sqlx.DB,
	payouts repository.PayoutRepository,
	accounts *AccountService,
	processor gateway.PaymentProcessor,
	notifier gateway.Notifier,
	log *logrus.Logger,
	cfg *config.Config,
) *PayoutService {
	return &PayoutService{
		db:        db,
		Payouts:   payouts,
		accounts:  accounts,
		processor: processor,
		notifier:  notifier,
		log:       log,
		config:    cfg,
	}
}

// Create registers a new payout request in pending status.
func (s *PayoutService) Create(ctx context.Context, req *domain.CreatePayoutRequest) (*domain.PayoutRequest, error) {
	if !req.Amount.IsPositive() {
		return nil, customError.WrapValidation("payout amount must be positive", customError.ErrInvalidAmount)
	}

	fee := utils.CalculateFee(req.Amount, s.config.GetPayoutFeeRate())
	now := time.Now()
	payout := &domain.PayoutRequest{
		ID:              uuid.New(),
		UserID:          req.UserID,
		EscrowAccountID: req.EscrowAccountID,
		PayoutType:      req.PayoutType,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Fee:             fee,
		NetAmount:       utils.NetAmount(req.Amount, fee),
		PayoutMethod:    req.PayoutMethod,
		RecipientName:   req.RecipientName,
		RecipientEmail:  req.RecipientEmail,
		RecipientPhone:  req.RecipientPhone,
		PaymentDetails:  req.PaymentDetails,
		Status:          domain.PayoutStatusPending,
		Priority:        req.Priority,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := withNumberRetry(s.config.Business.NumberRetries, func() error {
		payout.RequestNumber = utils.GenerateBusinessNumber(utils.PrefixPayout, time.Now())
		return s.Payouts.Create(ctx, s.db, payout)
	})
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.log.WithFields(logrus.Fields{
		"payout_id":      payout.ID,
		"request_number": payout.RequestNumber,
		"amount":         payout.Amount,
	}).Info("payout request created")

	return payout, nil
}

// Get retrieves a payout request by id.
func (s *PayoutService) Get(ctx context.Context, id uuid.UUID) (*domain.PayoutRequest, error) {
	payout, err := s.Payouts.GetByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapNotFound("payout request", id.String(), customError.ErrPayoutNotFound)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return payout, nil
}

// Approve moves a pending request to approved, reserving the amount on the
// source escrow account. Any violation fails the approval with no side
// effects.
func (s *PayoutService) Approve(ctx context.Context, id uuid.UUID, req *domain.ApprovePayoutRequest) (*domain.PayoutRequest, error) {
	var payout *domain.PayoutRequest
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		payout, err = s.lockPayout(ctx, tx, id)
		if err != nil {
			return err
		}
		if !domain.PayoutCanTransition(payout.Status, domain.PayoutStatusApproved) {
			return customError.WrapInvalidTransition("payout request", payout.Status, domain.PayoutStatusApproved)
		}

		if payout.EscrowAccountID != nil {
			if err := s.accounts.ReserveFundsTx(ctx, tx, *payout.EscrowAccountID, payout.Amount); err != nil {
				return err
			}
		}

		now := time.Now()
		payout.Status = domain.PayoutStatusApproved
		payout.ApprovedBy = &req.ApprovedBy
		payout.ApprovedAt = &now
		payout.ApprovalNotes = req.Notes
		return s.Payouts.Update(ctx, tx, payout)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(gateway.EventPayoutApproved,
		fmt.Sprintf("payout %s for %s %s approved", payout.RequestNumber, payout.Amount, payout.Currency))
	return payout, nil
}

// Reject declines a payout request. Only valid from pending.
func (s *PayoutService) Reject(ctx context.Context, id uuid.UUID, reason string) (*domain.PayoutRequest, error) {
	var payout *domain.PayoutRequest
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		payout, err = s.lockPayout(ctx, tx, id)
		if err != nil {
			return err
		}
		if !domain.PayoutCanTransition(payout.Status, domain.PayoutStatusRejected) {
			return customError.WrapInvalidTransition("payout request", payout.Status, domain.PayoutStatusRejected)
		}
		payout.Status = domain.PayoutStatusRejected
		payout.RejectionReason = &reason
		return s.Payouts.Update(ctx, tx, payout)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(gateway.EventPayoutRejected,
		fmt.Sprintf("payout %s rejected: %s", payout.RequestNumber, reason))
	return payout, nil
}

// Process executes an approved payout. The local debit commits first; the
// external settlement runs outside the lock and a failure there only marks
// the request failed.
func (s *PayoutService) Process(ctx context.Context, id uuid.UUID) (*domain.PayoutRequest, error) {
	var payout *domain.PayoutRequest

	err := withNumberRetry(s.config.Business.NumberRetries, func() error {
		return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
			var err error
			payout, err = s.lockPayout(ctx, tx, id)
			if err != nil {
				return err
			}
			if !domain.PayoutCanTransition(payout.Status, domain.PayoutStatusProcessing) {
				return customError.WrapInvalidTransition("payout request", payout.Status, domain.PayoutStatusProcessing)
			}

			if payout.EscrowAccountID != nil {
				accountID := *payout.EscrowAccountID
				if err := s.accounts.ReleaseReservedFundsTx(ctx, tx, accountID, payout.Amount); err != nil {
					return err
				}
				entry, err := s.accounts.WithdrawTx(ctx, tx, accountID, payout.Amount,
					domain.TransactionTypeEscrowRelease,
					fmt.Sprintf("payout %s to %s", payout.RequestNumber, payout.RecipientName))
				if err != nil {
					return err
				}
				entry.PayoutRequestID = &payout.ID
				if err := s.accounts.Transactions.Update(ctx, tx, entry); err != nil {
					return customError.WrapDatabaseError(err)
				}
			}

			payout.Status = domain.PayoutStatusProcessing
			return s.Payouts.Update(ctx, tx, payout)
		})
	})
	if err != nil {
		return nil, err
	}

	if domain.RequiresExternalSettlement(payout) {
		details := ""
		if payout.PaymentDetails != nil {
			details = *payout.PaymentDetails
		}
		_, settleErr := s.processor.Payout(ctx, &gateway.PayoutInstruction{
			Method:         payout.PayoutMethod,
			Amount:         payout.NetAmount,
			Currency:       payout.Currency,
			RecipientName:  payout.RecipientName,
			RecipientEmail: payout.RecipientEmail,
			PaymentDetails: details,
			Reference:      payout.RequestNumber,
		})
		if settleErr != nil {
			// Funds already left the internal ledger; no re-credit.
			if failErr := s.markFailed(ctx, payout, settleErr.Error()); failErr != nil {
				return nil, failErr
			}
			s.notifier.Notify(gateway.EventPayoutFailed,
				fmt.Sprintf("payout %s failed: %v", payout.RequestNumber, settleErr))
			return payout, customError.WrapProcessorError("payout", settleErr)
		}
	}

	err = repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		locked, err := s.lockPayout(ctx, tx, payout.ID)
		if err != nil {
			return err
		}
		if !domain.PayoutCanTransition(locked.Status, domain.PayoutStatusCompleted) {
			return customError.WrapInvalidTransition("payout request", locked.Status, domain.PayoutStatusCompleted)
		}
		now := time.Now()
		locked.Status = domain.PayoutStatusCompleted
		locked.ProcessedAt = &now
		payout = locked
		return s.Payouts.Update(ctx, tx, locked)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(gateway.EventPayoutCompleted,
		fmt.Sprintf("payout %s for %s %s completed", payout.RequestNumber, payout.Amount, payout.Currency))
	return payout, nil
}

// ProcessPending sweeps approved payout requests, processing each one
// independently so a single failure cannot block the batch.
func (s *PayoutService) ProcessPending(ctx context.Context) (*domain.SweepResult, error) {
	payouts, err := s.Payouts.ListByStatus(ctx, s.db, domain.PayoutStatusApproved, 100)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	result := &domain.SweepResult{}
	for _, payout := range payouts {
		if _, err := s.Process(ctx, payout.ID); err != nil {
			result.Failed++
			s.log.WithError(err).WithFields(logrus.Fields{
				"payout_id":      payout.ID,
				"request_number": payout.RequestNumber,
			}).Error("payout sweep item failed")
			continue
		}
		result.Processed++
	}

	s.log.WithFields(logrus.Fields{
		"processed": result.Processed,
		"failed":    result.Failed,
	}).Info("payout sweep finished")
	return result, nil
}

func (s *PayoutService) markFailed(ctx context.Context, payout *domain.PayoutRequest, reason string) error {
	return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		locked, err := s.lockPayout(ctx, tx, payout.ID)
		if err != nil {
			return err
		}
		if !domain.PayoutCanTransition(locked.Status, domain.PayoutStatusFailed) {
			return customError.WrapInvalidTransition("payout request", locked.Status, domain.PayoutStatusFailed)
		}
		locked.Status = domain.PayoutStatusFailed
		locked.FailureReason = &reason
		payout.Status = locked.Status
		payout.FailureReason = locked.FailureReason
		return s.Payouts.Update(ctx, tx, locked)
	})
}

func (s *PayoutService) lockPayout(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.PayoutRequest, error) {
	payout, err := s.Payouts.GetForUpdate(ctx, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapNotFound("payout request", id.String(), customError.ErrPayoutNotFound)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return payout, nil
}
