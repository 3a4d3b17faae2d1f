package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lendpeer/escrow-engine/internal/domain"
)

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx so every repository
// method takes an explicit unit-of-work handle. Balance-mutating call
// sequences pass a *sqlx.Tx obtained through Transact; plain reads may pass
// the *sqlx.DB directly.
type Querier interface {
	sqlx.ExtContext
}

// Transact runs fn inside a database transaction, rolling back on error or
// panic and committing otherwise. Row locks taken via the GetForUpdate
// methods are held until this returns.
func Transact(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, used to retry business-number collisions.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// AccountRepository defines the interface for escrow account data operations
type AccountRepository interface {
	// Create inserts a new escrow account
	Create(ctx context.Context, q Querier, account *domain.EscrowAccount) error

	// GetByID retrieves an account by id
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.EscrowAccount, error)

	// GetForUpdate retrieves an account holding an exclusive row lock
	GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.EscrowAccount, error)

	// Update persists balances, status and lifecycle metadata
	Update(ctx context.Context, q Querier, account *domain.EscrowAccount) error
}

// TransactionRepository defines the interface for ledger entry operations
type TransactionRepository interface {
	// Create inserts a new ledger entry
	Create(ctx context.Context, q Querier, txn *domain.Transaction) error

	// GetByID retrieves a ledger entry by id
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.Transaction, error)

	// GetForUpdate retrieves a ledger entry holding an exclusive row lock
	GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.Transaction, error)

	// Update persists status, failure reason and processing metadata
	Update(ctx context.Context, q Querier, txn *domain.Transaction) error

	// GetByNumber retrieves a ledger entry by its transaction number
	GetByNumber(ctx context.Context, q Querier, number string) (*domain.Transaction, error)

	// ListByAccount returns entries for an account in creation order
	ListByAccount(ctx context.Context, q Querier, accountID uuid.UUID, limit int) ([]*domain.Transaction, error)

	// SummarizeByType aggregates completed amounts per transaction type
	SummarizeByType(ctx context.Context, q Querier, accountID *uuid.UUID) ([]*TypeTotal, error)
}

// TypeTotal is a per-type aggregate over completed ledger entries.
type TypeTotal struct {
	TransactionType string `db:"transaction_type" json:"transaction_type"`
	Count           int    `db:"count" json:"count"`
	Total           string `db:"total" json:"total"`
}

// PayoutRepository defines the interface for payout request operations
type PayoutRepository interface {
	Create(ctx context.Context, q Querier, payout *domain.PayoutRequest) error
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.PayoutRequest, error)
	GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.PayoutRequest, error)
	Update(ctx context.Context, q Querier, payout *domain.PayoutRequest) error

	// ListByStatus returns payout requests in a status, oldest first
	ListByStatus(ctx context.Context, q Querier, status string, limit int) ([]*domain.PayoutRequest, error)
}

// DisbursementRepository defines the interface for disbursement operations
type DisbursementRepository interface {
	Create(ctx context.Context, q Querier, d *domain.Disbursement) error
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.Disbursement, error)
	GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.Disbursement, error)
	Update(ctx context.Context, q Querier, d *domain.Disbursement) error

	// CreateInstallments inserts the optional installment schedule
	CreateInstallments(ctx context.Context, q Querier, installments []*domain.DisbursementInstallment) error

	// ListInstallments returns the schedule ordered by sequence
	ListInstallments(ctx context.Context, q Querier, disbursementID uuid.UUID) ([]*domain.DisbursementInstallment, error)

	// UpdateInstallment persists an installment's status
	UpdateInstallment(ctx context.Context, q Querier, inst *domain.DisbursementInstallment) error

	// ListScheduledBetween returns scheduled disbursements due in [start, end)
	ListScheduledBetween(ctx context.Context, q Querier, start, end time.Time) ([]*domain.Disbursement, error)
}

// PaymentMethodRepository defines the interface for payment method operations
type PaymentMethodRepository interface {
	Create(ctx context.Context, q Querier, m *domain.PaymentMethod) error
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.PaymentMethod, error)
	GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.PaymentMethod, error)
	Update(ctx context.Context, q Querier, m *domain.PaymentMethod) error

	// CountByUser returns how many methods a user has registered
	CountByUser(ctx context.Context, q Querier, userID uuid.UUID) (int, error)

	// ClearDefault unsets the default flag on all of a user's methods
	ClearDefault(ctx context.Context, q Querier, userID uuid.UUID) error

	// ListByUser returns a user's methods, default first
	ListByUser(ctx context.Context, q Querier, userID uuid.UUID) ([]*domain.PaymentMethod, error)
}
