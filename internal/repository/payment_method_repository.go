package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lendpeer/escrow-engine/internal/domain"
)

type paymentMethodRepository struct{}

func NewPaymentMethodRepository() PaymentMethodRepository {
	return &paymentMethodRepository{}
}

const paymentMethodColumns = `
	id, user_id, method_type, last_four, holder_name,
	processor_token, processor_customer_id, is_default, is_verified, status,
	expiry_month, expiry_year, usage_count, total_used, last_used_at,
	created_at, updated_at
`

func (r *paymentMethodRepository) Create(ctx context.Context, q Querier, m *domain.PaymentMethod) error {
	query := `
		INSERT INTO payment_methods (` + paymentMethodColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := q.ExecContext(ctx, query,
		m.ID,
		m.UserID,
		m.MethodType,
		m.LastFour,
		m.HolderName,
		m.ProcessorToken,
		m.ProcessorCustomerID,
		m.IsDefault,
		m.IsVerified,
		m.Status,
		m.ExpiryMonth,
		m.ExpiryYear,
		m.UsageCount,
		m.TotalUsed,
		m.LastUsedAt,
		m.CreatedAt,
		m.UpdatedAt,
	)

	return err
}

func (r *paymentMethodRepository) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.PaymentMethod, error) {
	query := `SELECT ` + paymentMethodColumns + ` FROM payment_methods WHERE id = $1`

	var m domain.PaymentMethod
	if err := sqlx.GetContext(ctx, q, &m, query, id); err != nil {
		return nil, err
	}

	return &m, nil
}

func (r *paymentMethodRepository) GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.PaymentMethod, error) {
	query := `SELECT ` + paymentMethodColumns + ` FROM payment_methods WHERE id = $1 FOR UPDATE`

	var m domain.PaymentMethod
	if err := sqlx.GetContext(ctx, q, &m, query, id); err != nil {
		return nil, err
	}

	return &m, nil
}

func (r *paymentMethodRepository) Update(ctx context.Context, q Querier, m *domain.PaymentMethod) error {
	query := `
		UPDATE payment_methods
		SET is_default = $2, is_verified = $3, status = $4,
		    usage_count = $5, total_used = $6, last_used_at = $7, updated_at = $8
		WHERE id = $1
	`

	_, err := q.ExecContext(ctx, query,
		m.ID,
		m.IsDefault,
		m.IsVerified,
		m.Status,
		m.UsageCount,
		m.TotalUsed,
		m.LastUsedAt,
		time.Now(),
	)

	return err
}

func (r *paymentMethodRepository) CountByUser(ctx context.Context, q Querier, userID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM payment_methods WHERE user_id = $1`

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, userID); err != nil {
		return 0, err
	}

	return count, nil
}

func (r *paymentMethodRepository) ClearDefault(ctx context.Context, q Querier, userID uuid.UUID) error {
	query := `UPDATE payment_methods SET is_default = FALSE, updated_at = $2 WHERE user_id = $1 AND is_default`

	_, err := q.ExecContext(ctx, query, userID, time.Now())
	return err
}

func (r *paymentMethodRepository) ListByUser(ctx context.Context, q Querier, userID uuid.UUID) ([]*domain.PaymentMethod, error) {
	query := `
		SELECT ` + paymentMethodColumns + `
		FROM payment_methods
		WHERE user_id = $1
		ORDER BY is_default DESC, created_at
	`

	var methods []*domain.PaymentMethod
	if err := sqlx.SelectContext(ctx, q, &methods, query, userID); err != nil {
		return nil, err
	}

	return methods, nil
}
