package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lendpeer/escrow-engine/internal/domain"
)

type payoutRepository struct{}

func NewPayoutRepository() PayoutRepository {
	return &payoutRepository{}
}

const payoutColumns = `
	id, request_number, user_id, escrow_account_id, payout_type,
	amount, currency, fee, net_amount, payout_method,
	recipient_name, recipient_email, recipient_phone, payment_details,
	status, priority, approved_by, approved_at, approval_notes,
	rejection_reason, failure_reason, processed_at, created_at, updated_at
`

func (r *payoutRepository) Create(ctx context.Context, q Querier, payout *domain.PayoutRequest) error {
	query := `
		INSERT INTO payout_requests (` + payoutColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err := q.ExecContext(ctx, query,
		payout.ID,
		payout.RequestNumber,
		payout.UserID,
		payout.EscrowAccountID,
		payout.PayoutType,
		payout.Amount,
		payout.Currency,
		payout.Fee,
		payout.NetAmount,
		payout.PayoutMethod,
		payout.RecipientName,
		payout.RecipientEmail,
		payout.RecipientPhone,
		payout.PaymentDetails,
		payout.Status,
		payout.Priority,
		payout.ApprovedBy,
		payout.ApprovedAt,
		payout.ApprovalNotes,
		payout.RejectionReason,
		payout.FailureReason,
		payout.ProcessedAt,
		payout.CreatedAt,
		payout.UpdatedAt,
	)

	return err
}

func (r *payoutRepository) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.PayoutRequest, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_requests WHERE id = $1`

	var payout domain.PayoutRequest
	if err := sqlx.GetContext(ctx, q, &payout, query, id); err != nil {
		return nil, err
	}

	return &payout, nil
}

func (r *payoutRepository) GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.PayoutRequest, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_requests WHERE id = $1 FOR UPDATE`

	var payout domain.PayoutRequest
	if err := sqlx.GetContext(ctx, q, &payout, query, id); err != nil {
		return nil, err
	}

	return &payout, nil
}

func (r *payoutRepository) Update(ctx context.Context, q Querier, payout *domain.PayoutRequest) error {
	query := `
		UPDATE payout_requests
		SET status = $2, approved_by = $3, approved_at = $4, approval_notes = $5,
		    rejection_reason = $6, failure_reason = $7, processed_at = $8,
		    updated_at = $9
		WHERE id = $1
	`

	_, err := q.ExecContext(ctx, query,
		payout.ID,
		payout.Status,
		payout.ApprovedBy,
		payout.ApprovedAt,
		payout.ApprovalNotes,
		payout.RejectionReason,
		payout.FailureReason,
		payout.ProcessedAt,
		time.Now(),
	)

	return err
}

func (r *payoutRepository) ListByStatus(ctx context.Context, q Querier, status string, limit int) ([]*domain.PayoutRequest, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payout_requests
		WHERE status = $1
		ORDER BY priority DESC, created_at
		LIMIT $2
	`

	var payouts []*domain.PayoutRequest
	if err := sqlx.SelectContext(ctx, q, &payouts, query, status, limit); err != nil {
		return nil, err
	}

	return payouts, nil
}
