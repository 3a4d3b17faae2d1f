package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lendpeer/escrow-engine/internal/domain"
)

type transactionRepository struct{}

func NewTransactionRepository() TransactionRepository {
	return &transactionRepository{}
}

const transactionColumns = `
	id, transaction_number, transaction_type, status, amount, currency,
	fee, processing_fee, tax, net_amount,
	loan_id, escrow_account_id, payment_method_id, payout_request_id, user_id,
	related_transaction_id, transfer_direction, description, metadata,
	failure_reason, processed_at, created_at, updated_at
`

func (r *transactionRepository) Create(ctx context.Context, q Querier, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	_, err := q.ExecContext(ctx, query,
		txn.ID,
		txn.TransactionNumber,
		txn.TransactionType,
		txn.Status,
		txn.Amount,
		txn.Currency,
		txn.Fee,
		txn.ProcessingFee,
		txn.Tax,
		txn.NetAmount,
		txn.LoanID,
		txn.EscrowAccountID,
		txn.PaymentMethodID,
		txn.PayoutRequestID,
		txn.UserID,
		txn.RelatedTransactionID,
		txn.TransferDirection,
		txn.Description,
		txn.Metadata,
		txn.FailureReason,
		txn.ProcessedAt,
		txn.CreatedAt,
		txn.UpdatedAt,
	)

	return err
}

func (r *transactionRepository) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	var txn domain.Transaction
	if err := sqlx.GetContext(ctx, q, &txn, query, id); err != nil {
		return nil, err
	}

	return &txn, nil
}

func (r *transactionRepository) GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	var txn domain.Transaction
	if err := sqlx.GetContext(ctx, q, &txn, query, id); err != nil {
		return nil, err
	}

	return &txn, nil
}

func (r *transactionRepository) Update(ctx context.Context, q Querier, txn *domain.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $2, metadata = $3, failure_reason = $4, processed_at = $5,
		    related_transaction_id = $6, payout_request_id = $7, loan_id = $8,
		    updated_at = $9
		WHERE id = $1
	`

	_, err := q.ExecContext(ctx, query,
		txn.ID,
		txn.Status,
		txn.Metadata,
		txn.FailureReason,
		txn.ProcessedAt,
		txn.RelatedTransactionID,
		txn.PayoutRequestID,
		txn.LoanID,
		time.Now(),
	)

	return err
}

func (r *transactionRepository) GetByNumber(ctx context.Context, q Querier, number string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_number = $1`

	var txn domain.Transaction
	if err := sqlx.GetContext(ctx, q, &txn, query, number); err != nil {
		return nil, err
	}

	return &txn, nil
}

func (r *transactionRepository) ListByAccount(ctx context.Context, q Querier, accountID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE escrow_account_id = $1
		ORDER BY created_at, transaction_number
		LIMIT $2
	`

	var txns []*domain.Transaction
	if err := sqlx.SelectContext(ctx, q, &txns, query, accountID, limit); err != nil {
		return nil, err
	}

	return txns, nil
}

func (r *transactionRepository) SummarizeByType(ctx context.Context, q Querier, accountID *uuid.UUID) ([]*TypeTotal, error) {
	query := `
		SELECT transaction_type, COUNT(*) AS count, COALESCE(SUM(amount), 0)::text AS total
		FROM transactions
		WHERE status = 'completed' AND ($1::uuid IS NULL OR escrow_account_id = $1)
		GROUP BY transaction_type
		ORDER BY transaction_type
	`

	var totals []*TypeTotal
	if err := sqlx.SelectContext(ctx, q, &totals, query, accountID); err != nil {
		return nil, err
	}

	return totals, nil
}
