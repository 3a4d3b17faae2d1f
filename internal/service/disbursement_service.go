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

// DisbursementService releases escrowed loan funds to borrowers, possibly in
// installments. DisbursedAmount only grows; processing an amount larger than
// what remains pending is rejected.
type DisbursementService struct {
	db            *sqlx.DB
	Disbursements repository.DisbursementRepository
	accounts      *AccountService
	notifier      gateway.Notifier
	log           *logrus.Logger
	config        *config.Config
}

func NewDisbursementService(
	db *sqlx.DB,
	disbursements repository.DisbursementRepository,
	accounts *AccountService,
	notifier gateway.Notifier,
	log *logrus.Logger,
	cfg *config.Config,
) *DisbursementService {
	return &DisbursementService{
		db:            db,
		Disbursements: disbursements,
		accounts:      accounts,
		notifier:      notifier,
		log:           log,
		config:        cfg,
	}
}

// Create registers a new disbursement with an optional installment schedule.
func (s *DisbursementService) Create(ctx context.Context, req *domain.CreateDisbursementRequest) (*domain.Disbursement, error) {
	if !req.Amount.IsPositive() {
		return nil, customError.WrapValidation("disbursement amount must be positive", customError.ErrInvalidAmount)
	}
	for _, entry := range req.Schedule {
		if !entry.Amount.IsPositive() {
			return nil, customError.WrapValidation("installment amounts must be positive", customError.ErrInvalidAmount)
		}
	}

	now := time.Now()
	d := &domain.Disbursement{
		ID:              uuid.New(),
		LoanID:          req.LoanID,
		EscrowAccountID: req.EscrowAccountID,
		Amount:          req.Amount,
		DisbursedAmount: decimal.Zero,
		Currency:        req.Currency,
		Status:          domain.DisbursementStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	installments := make([]*domain.DisbursementInstallment, 0, len(req.Schedule))
	for i, entry := range req.Schedule {
		installments = append(installments, &domain.DisbursementInstallment{
			ID:             uuid.New(),
			DisbursementID: d.ID,
			Sequence:       i + 1,
			Amount:         entry.Amount,
			DueDate:        entry.DueDate,
			Status:         domain.InstallmentStatusPending,
			CreatedAt:      now,
		})
	}

	err := withNumberRetry(s.config.Business.NumberRetries, func() error {
		return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
			d.DisbursementNumber = utils.GenerateBusinessNumber(utils.PrefixDisbursement, time.Now())
			if err := s.Disbursements.Create(ctx, tx, d); err != nil {
				return err
			}
			if len(installments) > 0 {
				return s.Disbursements.CreateInstallments(ctx, tx, installments)
			}
			return nil
		})
	})
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.log.WithFields(logrus.Fields{
		"disbursement_id":     d.ID,
		"disbursement_number": d.DisbursementNumber,
		"amount":              d.Amount,
	}).Info("disbursement created")

	return d, nil
}

// Get retrieves a disbursement by id.
func (s *DisbursementService) Get(ctx context.Context, id uuid.UUID) (*domain.Disbursement, error) {
	d, err := s.Disbursements.GetByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapNotFound("disbursement", id.String(), customError.ErrDisbursementNotFound)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return d, nil
}

// GetSchedule returns the installment schedule ordered by sequence.
func (s *DisbursementService) GetSchedule(ctx context.Context, id uuid.UUID) ([]*domain.DisbursementInstallment, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	installments, err := s.Disbursements.ListInstallments(ctx, s.db, id)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return installments, nil
}

// Approve moves a pending disbursement to approved.
func (s *DisbursementService) Approve(ctx context.Context, id uuid.UUID, req *domain.ApproveDisbursementRequest) (*domain.Disbursement, error) {
	var d *domain.Disbursement
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		d, err = s.lockDisbursement(ctx, tx, id)
		if err != nil {
			return err
		}
		if !domain.DisbursementCanTransition(d.Status, domain.DisbursementStatusApproved) {
			return customError.WrapInvalidTransition("disbursement", d.Status, domain.DisbursementStatusApproved)
		}
		now := time.Now()
		d.Status = domain.DisbursementStatusApproved
		d.ApprovedBy = &req.ApprovedBy
		d.ApprovedAt = &now
		d.ApprovalNotes = req.Notes
		return s.Disbursements.Update(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Schedule sets the date an approved disbursement should be picked up by the
// daily sweep.
func (s *DisbursementService) Schedule(ctx context.Context, id uuid.UUID, scheduledDate time.Time) (*domain.Disbursement, error) {
	var d *domain.Disbursement
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		d, err = s.lockDisbursement(ctx, tx, id)
		if err != nil {
			return err
		}
		if !domain.DisbursementCanTransition(d.Status, domain.DisbursementStatusScheduled) {
			return customError.WrapInvalidTransition("disbursement", d.Status, domain.DisbursementStatusScheduled)
		}
		d.Status = domain.DisbursementStatusScheduled
		d.ScheduledDate = &scheduledDate
		return s.Disbursements.Update(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Cancel aborts a disbursement that has not completed.
func (s *DisbursementService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Disbursement, error) {
	var d *domain.Disbursement
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		d, err = s.lockDisbursement(ctx, tx, id)
		if err != nil {
			return err
		}
		if !domain.DisbursementCanTransition(d.Status, domain.DisbursementStatusCancelled) {
			return customError.WrapInvalidTransition("disbursement", d.Status, domain.DisbursementStatusCancelled)
		}
		d.Status = domain.DisbursementStatusCancelled
		d.CancelledReason = &reason
		return s.Disbursements.Update(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Process releases funds, either the full pending amount or a caller-supplied
// partial amount. On success the processed amount is withdrawn from the
// attached escrow account and DisbursedAmount grows; the status becomes
// completed once everything is out, partial otherwise.
func (s *DisbursementService) Process(ctx context.Context, id uuid.UUID, req *domain.ProcessDisbursementRequest) (*domain.Disbursement, error) {
	var d *domain.Disbursement

	err := withNumberRetry(s.config.Business.NumberRetries, func() error {
		return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
			var err error
			d, err = s.lockDisbursement(ctx, tx, id)
			if err != nil {
				return err
			}
			if !domain.IsDisbursementProcessable(d) {
				return customError.WrapInvalidTransition("disbursement", d.Status, domain.DisbursementStatusProcessing)
			}
			d.Status = domain.DisbursementStatusProcessing

			pending := domain.PendingAmount(d)
			amount := pending
			if req != nil && req.Amount != nil {
				amount = *req.Amount
			}
			if !amount.IsPositive() {
				return customError.WrapValidation("process amount must be positive", customError.ErrInvalidAmount)
			}
			if amount.GreaterThan(pending) {
				return customError.WrapInvariant("amount exceeds pending disbursement amount", customError.ErrOverdisbursement)
			}

			if d.EscrowAccountID != nil {
				entry, err := s.accounts.WithdrawTx(ctx, tx, *d.EscrowAccountID, amount,
					domain.TransactionTypeLoanDisbursement,
					fmt.Sprintf("disbursement %s", d.DisbursementNumber))
				if err != nil {
					return err
				}
				entry.LoanID = &d.LoanID
				if err := s.accounts.Transactions.Update(ctx, tx, entry); err != nil {
					return customError.WrapDatabaseError(err)
				}
			}

			now := time.Now()
			d.DisbursedAmount = d.DisbursedAmount.Add(amount)
			d.ProcessedAt = &now

			if err := s.markCoveredInstallments(ctx, tx, d); err != nil {
				return err
			}

			target := domain.DisbursementStatusPartial
			if d.DisbursedAmount.GreaterThanOrEqual(d.Amount) {
				target = domain.DisbursementStatusCompleted
			}
			if !domain.DisbursementCanTransition(d.Status, target) {
				return customError.WrapInvalidTransition("disbursement", d.Status, target)
			}
			d.Status = target
			return s.Disbursements.Update(ctx, tx, d)
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(gateway.EventDisbursementProcessed,
		fmt.Sprintf("disbursement %s: %s of %s %s released", d.DisbursementNumber, d.DisbursedAmount, d.Amount, d.Currency))
	return d, nil
}

// ProcessScheduled finds scheduled disbursements due today and processes each
// independently, so one failure never aborts the batch.
func (s *DisbursementService) ProcessScheduled(ctx context.Context) (*domain.SweepResult, error) {
	start, end := utils.DayBounds(time.Now())
	due, err := s.Disbursements.ListScheduledBetween(ctx, s.db, start, end)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	result := &domain.SweepResult{}
	for _, d := range due {
		if _, err := s.Process(ctx, d.ID, nil); err != nil {
			result.Failed++
			s.log.WithError(err).WithFields(logrus.Fields{
				"disbursement_id":     d.ID,
				"disbursement_number": d.DisbursementNumber,
			}).Error("disbursement sweep item failed")
			continue
		}
		result.Processed++
	}

	s.log.WithFields(logrus.Fields{
		"processed": result.Processed,
		"failed":    result.Failed,
	}).Info("disbursement sweep finished")
	return result, nil
}

// markCoveredInstallments flips pending installments to processed once the
// cumulative scheduled amount is covered by what has been disbursed.
func (s *DisbursementService) markCoveredInstallments(ctx context.Context, q repository.Querier, d *domain.Disbursement) error {
	installments, err := s.Disbursements.ListInstallments(ctx, q, d.ID)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	cumulative := decimal.Zero
	for _, inst := range installments {
		cumulative = cumulative.Add(inst.Amount)
		if inst.Status != domain.InstallmentStatusPending {
			continue
		}
		if cumulative.GreaterThan(d.DisbursedAmount) {
			break
		}
		inst.Status = domain.InstallmentStatusProcessed
		if err := s.Disbursements.UpdateInstallment(ctx, q, inst); err != nil {
			return customError.WrapDatabaseError(err)
		}
	}
	return nil
}

func (s *DisbursementService) lockDisbursement(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Disbursement, error) {
	d, err := s.Disbursements.GetForUpdate(ctx, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapNotFound("disbursement", id.String(), customError.ErrDisbursementNotFound)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return d, nil
}
