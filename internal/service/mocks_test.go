package service

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lendpeer/escrow-engine/internal/domain"
	"github.com/lendpeer/escrow-engine/internal/gateway"
	"github.com/lendpeer/escrow-engine/internal/repository"
)

// newMockDB returns an sqlx handle backed by sqlmock so transactional flows
// can run without a live database. Queries go to the mocked repositories;
// only Begin, Commit and Rollback reach the driver.
func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), dbMock
}

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, q repository.Querier, account *domain.EscrowAccount) error {
	args := m.Called(ctx, q, account)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.EscrowAccount, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EscrowAccount), args.Error(1)
}

func (m *MockAccountRepository) GetForUpdate(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.EscrowAccount, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EscrowAccount), args.Error(1)
}

func (m *MockAccountRepository) Update(ctx context.Context, q repository.Querier, account *domain.EscrowAccount) error {
	args := m.Called(ctx, q, account)
	return args.Error(0)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, q repository.Querier, txn *domain.Transaction) error {
	args := m.Called(ctx, q, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Transaction, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetForUpdate(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Transaction, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Update(ctx context.Context, q repository.Querier, txn *domain.Transaction) error {
	args := m.Called(ctx, q, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByNumber(ctx context.Context, q repository.Querier, number string) (*domain.Transaction, error) {
	args := m.Called(ctx, q, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListByAccount(ctx context.Context, q repository.Querier, accountID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	args := m.Called(ctx, q, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) SummarizeByType(ctx context.Context, q repository.Querier, accountID *uuid.UUID) ([]*repository.TypeTotal, error) {
	args := m.Called(ctx, q, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.TypeTotal), args.Error(1)
}

type MockPayoutRepository struct {
	mock.Mock
}

func (m *MockPayoutRepository) Create(ctx context.Context, q repository.Querier, payout *domain.PayoutRequest) error {
	args := m.Called(ctx, q, payout)
	return args.Error(0)
}

func (m *MockPayoutRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.PayoutRequest, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PayoutRequest), args.Error(1)
}

func (m *MockPayoutRepository) GetForUpdate(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.PayoutRequest, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PayoutRequest), args.Error(1)
}

func (m *MockPayoutRepository) Update(ctx context.Context, q repository.Querier, payout *domain.PayoutRequest) error {
	args := m.Called(ctx, q, payout)
	return args.Error(0)
}

func (m *MockPayoutRepository) ListByStatus(ctx context.Context, q repository.Querier, status string, limit int) ([]*domain.PayoutRequest, error) {
	args := m.Called(ctx, q, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PayoutRequest), args.Error(1)
}

type MockDisbursementRepository struct {
	mock.Mock
}

func (m *MockDisbursementRepository) Create(ctx context.Context, q repository.Querier, d *domain.Disbursement) error {
	args := m.Called(ctx, q, d)
	return args.Error(0)
}

func (m *MockDisbursementRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Disbursement, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Disbursement), args.Error(1)
}

func (m *MockDisbursementRepository) GetForUpdate(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Disbursement, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Disbursement), args.Error(1)
}

func (m *MockDisbursementRepository) Update(ctx context.Context, q repository.Querier, d *domain.Disbursement) error {
	args := m.Called(ctx, q, d)
	return args.Error(0)
}

func (m *MockDisbursementRepository) CreateInstallments(ctx context.Context, q repository.Querier, installments []*domain.DisbursementInstallment) error {
	args := m.Called(ctx, q, installments)
	return args.Error(0)
}

func (m *MockDisbursementRepository) ListInstallments(ctx context.Context, q repository.Querier, disbursementID uuid.UUID) ([]*domain.DisbursementInstallment, error) {
	args := m.Called(ctx, q, disbursementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DisbursementInstallment), args.Error(1)
}

func (m *MockDisbursementRepository) UpdateInstallment(ctx context.Context, q repository.Querier, inst *domain.DisbursementInstallment) error {
	args := m.Called(ctx, q, inst)
	return args.Error(0)
}

func (m *MockDisbursementRepository) ListScheduledBetween(ctx context.Context, q repository.Querier, start, end time.Time) ([]*domain.Disbursement, error) {
	args := m.Called(ctx, q, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Disbursement), args.Error(1)
}

type MockPaymentMethodRepository struct {
	mock.Mock
}

func (m *MockPaymentMethodRepository) Create(ctx context.Context, q repository.Querier, pm *domain.PaymentMethod) error {
	args := m.Called(ctx, q, pm)
	return args.Error(0)
}

func (m *MockPaymentMethodRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.PaymentMethod, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentMethod), args.Error(1)
}

func (m *MockPaymentMethodRepository) GetForUpdate(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.PaymentMethod, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentMethod), args.Error(1)
}

func (m *MockPaymentMethodRepository) Update(ctx context.Context, q repository.Querier, pm *domain.PaymentMethod) error {
	args := m.Called(ctx, q, pm)
	return args.Error(0)
}

func (m *MockPaymentMethodRepository) CountByUser(ctx context.Context, q repository.Querier, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, q, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockPaymentMethodRepository) ClearDefault(ctx context.Context, q repository.Querier, userID uuid.UUID) error {
	args := m.Called(ctx, q, userID)
	return args.Error(0)
}

func (m *MockPaymentMethodRepository) ListByUser(ctx context.Context, q repository.Querier, userID uuid.UUID) ([]*domain.PaymentMethod, error) {
	args := m.Called(ctx, q, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PaymentMethod), args.Error(1)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Charge(ctx context.Context, req *gateway.ChargeRequest) (*gateway.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Result), args.Error(1)
}

func (m *MockProcessor) Refund(ctx context.Context, providerRef string, amount decimal.Decimal, currency string) (*gateway.Result, error) {
	args := m.Called(ctx, providerRef, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Result), args.Error(1)
}

func (m *MockProcessor) Payout(ctx context.Context, inst *gateway.PayoutInstruction) (*gateway.Result, error) {
	args := m.Called(ctx, inst)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Result), args.Error(1)
}

func (m *MockProcessor) ParseWebhookEvent(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.WebhookEvent), args.Error(1)
}

func (m *MockProcessor) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockNotifier records events without delivering anything.
type MockNotifier struct {
	Events []string
}

func (m *MockNotifier) Notify(event string, subject string) {
	m.Events = append(m.Events, event)
}
