package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lendpeer/escrow-engine/internal/domain"
)

type disbursementRepository struct{}

func NewDisbursementRepository() DisbursementRepository {
	return &disbursementRepository{}
}

const disbursementColumns = `
	id, disbursement_number, loan_id, escrow_account_id, amount,
	disbursed_amount, currency, status, scheduled_date,
	approved_by, approved_at, approval_notes, cancelled_reason,
	failure_reason, processed_at, created_at, updated_at
`

func (r *disbursementRepository) Create(ctx context.Context, q Querier, d *domain.Disbursement) error {
	query := `
		INSERT INTO disbursements (` + disbursementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := q.ExecContext(ctx, query,
		d.ID,
		d.DisbursementNumber,
		d.LoanID,
		d.EscrowAccountID,
		d.Amount,
		d.DisbursedAmount,
		d.Currency,
		d.Status,
		d.ScheduledDate,
		d.ApprovedBy,
		d.ApprovedAt,
		d.ApprovalNotes,
		d.CancelledReason,
		d.FailureReason,
		d.ProcessedAt,
		d.CreatedAt,
		d.UpdatedAt,
	)

	return err
}

func (r *disbursementRepository) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.Disbursement, error) {
	query := `SELECT ` + disbursementColumns + ` FROM disbursements WHERE id = $1`

	var d domain.Disbursement
	if err := sqlx.GetContext(ctx, q, &d, query, id); err != nil {
		return nil, err
	}

	return &d, nil
}

func (r *disbursementRepository) GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.Disbursement, error) {
	query := `SELECT ` + disbursementColumns + ` FROM disbursements WHERE id = $1 FOR UPDATE`

	var d domain.Disbursement
	if err := sqlx.GetContext(ctx, q, &d, query, id); err != nil {
		return nil, err
	}

	return &d, nil
}

func (r *disbursementRepository) Update(ctx context.Context, q Querier, d *domain.Disbursement) error {
	query := `
		UPDATE disbursements
		SET disbursed_amount = $2, status = $3, scheduled_date = $4,
		    approved_by = $5, approved_at = $6, approval_notes = $7,
		    cancelled_reason = $8, failure_reason = $9, processed_at = $10,
		    updated_at = $11
		WHERE id = $1
	`

	_, err := q.ExecContext(ctx, query,
		d.ID,
		d.DisbursedAmount,
		d.Status,
		d.ScheduledDate,
		d.ApprovedBy,
		d.ApprovedAt,
		d.ApprovalNotes,
		d.CancelledReason,
		d.FailureReason,
		d.ProcessedAt,
		time.Now(),
	)

	return err
}

func (r *disbursementRepository) CreateInstallments(ctx context.Context, q Querier, installments []*domain.DisbursementInstallment) error {
	query := `
		INSERT INTO disbursement_installments (id, disbursement_id, sequence, amount, due_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, inst := range installments {
		_, err := q.ExecContext(ctx, query,
			inst.ID,
			inst.DisbursementID,
			inst.Sequence,
			inst.Amount,
			inst.DueDate,
			inst.Status,
			inst.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *disbursementRepository) ListInstallments(ctx context.Context, q Querier, disbursementID uuid.UUID) ([]*domain.DisbursementInstallment, error) {
	query := `
		SELECT id, disbursement_id, sequence, amount, due_date, status, created_at
		FROM disbursement_installments
		WHERE disbursement_id = $1
		ORDER BY sequence
	`

	var installments []*domain.DisbursementInstallment
	if err := sqlx.SelectContext(ctx, q, &installments, query, disbursementID); err != nil {
		return nil, err
	}

	return installments, nil
}

func (r *disbursementRepository) UpdateInstallment(ctx context.Context, q Querier, inst *domain.DisbursementInstallment) error {
	query := `UPDATE disbursement_installments SET status = $2 WHERE id = $1`

	_, err := q.ExecContext(ctx, query, inst.ID, inst.Status)

	return err
}

func (r *disbursementRepository) ListScheduledBetween(ctx context.Context, q Querier, start, end time.Time) ([]*domain.Disbursement, error) {
	query := `
		SELECT ` + disbursementColumns + `
		FROM disbursements
		WHERE status = 'scheduled' AND scheduled_date >= $1 AND scheduled_date < $2
		ORDER BY scheduled_date
	`

	var ds []*domain.Disbursement
	if err := sqlx.SelectContext(ctx, q, &ds, query, start, end); err != nil {
		return nil, err
	}

	return ds, nil
}
