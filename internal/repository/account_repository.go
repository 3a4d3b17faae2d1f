package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lendpeer/escrow-engine/internal/domain"
)

type accountRepository struct{}

func NewAccountRepository() AccountRepository {
	return &accountRepository{}
}

const accountColumns = `
	id, account_number, account_type, loan_id, currency,
	current_balance, available_balance, minimum_balance, maximum_balance,
	status, frozen_reason, closed_reason, closed_at, released_at, released_to,
	created_at, updated_at
`

func (r *accountRepository) Create(ctx context.Context, q Querier, account *domain.EscrowAccount) error {
	query := `
		INSERT INTO escrow_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := q.ExecContext(ctx, query,
		account.ID,
		account.AccountNumber,
		account.AccountType,
		account.LoanID,
		account.Currency,
		account.CurrentBalance,
		account.AvailableBalance,
		account.MinimumBalance,
		account.MaximumBalance,
		account.Status,
		account.FrozenReason,
		account.ClosedReason,
		account.ClosedAt,
		account.ReleasedAt,
		account.ReleasedTo,
		account.CreatedAt,
		account.UpdatedAt,
	)

	return err
}

func (r *accountRepository) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.EscrowAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM escrow_accounts WHERE id = $1`

	var account domain.EscrowAccount
	if err := sqlx.GetContext(ctx, q, &account, query, id); err != nil {
		return nil, err
	}

	return &account, nil
}

func (r *accountRepository) GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.EscrowAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM escrow_accounts WHERE id = $1 FOR UPDATE`

	var account domain.EscrowAccount
	if err := sqlx.GetContext(ctx, q, &account, query, id); err != nil {
		return nil, err
	}

	return &account, nil
}

func (r *accountRepository) Update(ctx context.Context, q Querier, account *domain.EscrowAccount) error {
	query := `
		UPDATE escrow_accounts
		SET current_balance = $2, available_balance = $3, status = $4,
		    frozen_reason = $5, closed_reason = $6, closed_at = $7,
		    released_at = $8, released_to = $9, updated_at = $10
		WHERE id = $1
	`

	_, err := q.ExecContext(ctx, query,
		account.ID,
		account.CurrentBalance,
		account.AvailableBalance,
		account.Status,
		account.FrozenReason,
		account.ClosedReason,
		account.ClosedAt,
		account.ReleasedAt,
		account.ReleasedTo,
		time.Now(),
	)

	return err
}
