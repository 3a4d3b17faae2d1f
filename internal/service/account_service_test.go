package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/lendpeer/escrow-engine/internal/config"
	"github.com/lendpeer/escrow-engine/internal/domain"
	customError "github.com/lendpeer/escrow-engine/pkg/errors"
)

func testConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{
			DefaultCurrency: "USD",
			PayoutFeeRate:   "0.01",
			NumberRetries:   3,
		},
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestAccountService(accounts *MockAccountRepository, transactions *MockTransactionRepository) (*AccountService, *MockNotifier) {
	notifier := &MockNotifier{}
	svc := &AccountService{
		Accounts:     accounts,
		Transactions: transactions,
		notifier:     notifier,
		log:          testLogger(),
		config:       testConfig(),
	}
	return svc, notifier
}

func TestCreateAccount_Success(t *testing.T) {
	mockAccounts := &MockAccountRepository{}
	mockTransactions := &MockTransactionRepository{}
	svc, _ := newTestAccountService(mockAccounts, mockTransactions)

	mockAccounts.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(a *domain.EscrowAccount) bool {
		return strings.HasPrefix(a.AccountNumber, "ESC-")
	})).Return(nil)

	account, err := svc.CreateAccount(context.Background(), &domain.CreateAccountRequest{
		AccountType:   domain.AccountTypeLoan,
		Currency:      "USD",
		InitialAmount: decimal.NewFromInt(500),
		Activate:      true,
	})

	assert.NoError(t, err)
	assert.Equal(t, domain.AccountStatusActive, account.Status)
	assert.True(t, account.CurrentBalance.Equal(decimal.NewFromInt(500)))
	assert.True(t, account.AvailableBalance.Equal(account.CurrentBalance))

	mockAccounts.AssertExpectations(t)
}

func TestCreateAccount_StartsPendingByDefault(t *testing.T) {
	mockAccounts := &MockAccountRepository{}
	mockTransactions := &MockTransactionRepository{}
	svc, _ := newTestAccountService(mockAccounts, mockTransactions)

	mockAccounts.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	account, err := svc.CreateAccount(context.Background(), &domain.CreateAccountRequest{
		AccountType: domain.AccountTypeReserve,
		Currency:    "USD",
	})

	assert.NoError(t, err)
	assert.Equal(t, domain.AccountStatusPending, account.Status)
	assert.True(t, account.CurrentBalance.IsZero())
}

func TestCreateAccount_NegativeInitialAmount(t *testing.T) {
	mockAccounts := &MockAccountRepository{}
	mockTransactions := &MockTransactionRepository{}
	svc, _ := newTestAccountService(mockAccounts, mockTransactions)

	_, err := svc.CreateAccount(context.Background(), &domain.CreateAccountRequest{
		AccountType:   domain.AccountTypeLoan,
		Currency:      "USD",
		InitialAmount: decimal.NewFromInt(-10),
	})

	assert.Error(t, err)
	assert.True(t, customError.IsCode(err, customError.ErrCodeValidation))
	mockAccounts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAccount_InitialAmountAboveMaximum(t *testing.T) {
	mockAccounts := &MockAccountRepository{}
	mockTransactions := &MockTransactionRepository{}
	svc, _ := newTestAccountService(mockAccounts, mockTransactions)

	maximum := decimal.NewFromInt(100)
	_, err := svc.CreateAccount(context.Background(), &domain.CreateAccountRequest{
		AccountType:    domain.AccountTypeLoan,
		Currency:       "USD",
		InitialAmount:  decimal.NewFromInt(200),
		MaximumBalance: &maximum,
	})

	assert.True(t, customError.IsCode(err, customError.ErrCodeInvariantViolation))
}

func TestCreateAccount_RetriesOnNumberCollision(t *testing.T) {
	mockAccounts := &MockAccountRepository{}
	mockTransactions := &MockTransactionRepository{}
	svc, _ := newTestAccountService(mockAccounts, mockTransactions)

	collision := &pq.Error{Code: "23505"}
	mockAccounts.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(collision).Once()
	mockAccounts.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	account, err := svc.CreateAccount(context.Background(), &domain.CreateAccountRequest{
		AccountType: domain.AccountTypeLoan,
		Currency:    "USD",
	})

	assert.NoError(t, err)
	assert.NotEmpty(t, account.AccountNumber)
	mockAccounts.AssertNumberOfCalls(t, "Create", 2)
}

func TestGetAccount_NotFound(t *testing.T) {
	mockAccounts := &MockAccountRepository{}
	mockTransactions := &MockTransactionRepository{}
	svc, _ := newTestAccountService(mockAccounts, mockTransactions)

	id := uuid.New()
	mockAccounts.On("GetByID", mock.Anything, mock.Anything, id).Return(nil, sql.ErrNoRows)

	_, err := svc.GetAccount(context.Background(), id)

	assert.True(t, customError.IsCode(err, customError.ErrCodeNotFound))
	assert.ErrorIs(t, err, customError.ErrAccountNotFound)
}

func TestGetStatement_ClampsLimit(t *testing.T) {
	mockAccounts := &MockAccountRepository{}
	mockTransactions := &MockTransactionRepository{}
	svc, _ := newTestAccountService(mockAccounts, mockTransactions)

	id := uuid.New()
	account := &domain.EscrowAccount{ID: id, Status: domain.AccountStatusActive}
	mockAccounts.On("GetByID", mock.Anything, mock.Anything, id).Return(account, nil)
	mockTransactions.On("ListByAccount", mock.Anything, mock.Anything, id, 100).
		Return([]*domain.Transaction{}, nil)

	_, err := svc.GetStatement(context.Background(), id, 0)
	assert.NoError(t, err)

	_, err = svc.GetStatement(context.Background(), id, 9999)
	assert.NoError(t, err)

	mockTransactions.AssertNumberOfCalls(t, "ListByAccount", 2)
}

func TestWithdraw_InsufficientFundsLeavesAccountUnchanged(t *testing.T) {
	mockAccounts := &MockAccountRepository{}
	mockTransactions := &MockTransactionRepository{}
	svc, _ := newTestAccountService(mockAccounts, mockTransactions)

	db, dbMock := newMockDB(t)
	svc.db = db
	dbMock.ExpectBegin()
	dbMock.ExpectRollback()

	account := &domain.EscrowAccount{
		ID:               uuid.New(),
		Status:           domain.AccountStatusActive,
		Currency:         "USD",
		CurrentBalance:   decimal.NewFromInt(100),
		AvailableBalance: decimal.NewFromInt(40),
	}
	mockAccounts.On("GetForUpdate", mock.Anything, mock.Anything, account.ID).Return(account, nil)

	_, err := svc.Withdraw(context.Background(), account.ID, &domain.BalanceChangeRequest{
		Amount: decimal.NewFromInt(50),
	})

	assert.True(t, customError.IsCode(err, customError.ErrCodeInsufficientFunds))
	assert.True(t, account.CurrentBalance.Equal(decimal.NewFromInt(100)))
	assert.True(t, account.AvailableBalance.Equal(decimal.NewFromInt(40)))
	mockAccounts.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	mockTransactions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestTransfer_MovesBalancesAndLinksEntries(t *testing.T) {
	mockAccounts := &MockAccountRepository{}
	mockTransactions := &MockTransactionRepository{}
	svc, notifier := newTestAccountService(mockAccounts, mockTransactions)

	db, dbMock := newMockDB(t)
	svc.db = db
	dbMock.ExpectBegin()
	dbMock.ExpectCommit()

	source := &domain.EscrowAccount{
		ID:               uuid.New(),
		Status:           domain.AccountStatusActive,
		Currency:         "USD",
		CurrentBalance:   decimal.NewFromInt(200),
		AvailableBalance: decimal.NewFromInt(200),
	}
	dest := &domain.EscrowAccount{
		ID:               uuid.New(),
		Status:           domain.AccountStatusActive,
		Currency:         "USD",
		CurrentBalance:   decimal.NewFromInt(50),
		AvailableBalance: decimal.NewFromInt(50),
	}
	mockAccounts.On("GetForUpdate", mock.Anything, mock.Anything, source.ID).Return(source, nil)
	mockAccounts.On("GetForUpdate", mock.Anything, mock.Anything, dest.ID).Return(dest, nil)
	mockAccounts.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mockTransactions.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	entries, err := svc.Transfer(context.Background(), &domain.TransferRequest{
		FromAccountID: source.ID,
		ToAccountID:   dest.ID,
		Amount:        decimal.NewFromInt(80),
	})

	assert.NoError(t, err)
	assert.True(t, source.CurrentBalance.Equal(decimal.NewFromInt(120)))
	assert.True(t, source.AvailableBalance.Equal(decimal.NewFromInt(120)))
	assert.True(t, dest.CurrentBalance.Equal(decimal.NewFromInt(130)))
	assert.True(t, dest.AvailableBalance.Equal(decimal.NewFromInt(130)))

	assert.Len(t, entries, 2)
	out, in := entries[0], entries[1]
	assert.Equal(t, domain.TransferDirectionOut, *out.TransferDirection)
	assert.Equal(t, domain.TransferDirectionIn, *in.TransferDirection)
	assert.Equal(t, in.ID, *out.RelatedTransactionID)
	assert.Equal(t, out.ID, *in.RelatedTransactionID)

	assert.Contains(t, notifier.Events, "transfer.completed")
	mockTransactions.AssertNumberOfCalls(t, "Create", 2)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestTransfer_InsufficientFundsNoPartialDebit(t *testing.T) {
	mockAccounts := &MockAccountRepository{}
	mockTransactions := &MockTransactionRepository{}
	svc, _ := newTestAccountService(mockAccounts, mockTransactions)

	db, dbMock := newMockDB(t)
	svc.db = db
	dbMock.ExpectBegin()
	dbMock.ExpectRollback()

	source := &domain.EscrowAccount{
		ID:               uuid.New(),
		Status:           domain.AccountStatusActive,
		Currency:         "USD",
		CurrentBalance:   decimal.NewFromInt(100),
		AvailableBalance: decimal.NewFromInt(10),
	}
	dest := &domain.EscrowAccount{
		ID:               uuid.New(),
		Status:           domain.AccountStatusActive,
		Currency:         "USD",
		CurrentBalance:   decimal.NewFromInt(50),
		AvailableBalance: decimal.NewFromInt(50),
	}
	mockAccounts.On("GetForUpdate", mock.Anything, mock.Anything, source.ID).Return(source, nil)
	mockAccounts.On("GetForUpdate", mock.Anything, mock.Anything, dest.ID).Return(dest, nil)

	_, err := svc.Transfer(context.Background(), &domain.TransferRequest{
		FromAccountID: source.ID,
		ToAccountID:   dest.ID,
		Amount:        decimal.NewFromInt(50),
	})

	assert.True(t, customError.IsCode(err, customError.ErrCodeInsufficientFunds))
	assert.True(t, source.CurrentBalance.Equal(decimal.NewFromInt(100)))
	assert.True(t, dest.CurrentBalance.Equal(decimal.NewFromInt(50)))
	mockAccounts.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	mockTransactions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestTransfer_CurrencyMismatch(t *testing.T) {
	mockAccounts := &MockAccountRepository{}
	mockTransactions := &MockTransactionRepository{}
	svc, _ := newTestAccountService(mockAccounts, mockTransactions)

	db, dbMock := newMockDB(t)
	svc.db = db
	dbMock.ExpectBegin()
	dbMock.ExpectRollback()

	source := &domain.EscrowAccount{
		ID:               uuid.New(),
		Status:           domain.AccountStatusActive,
		Currency:         "USD",
		CurrentBalance:   decimal.NewFromInt(100),
		AvailableBalance: decimal.NewFromInt(100),
	}
	dest := &domain.EscrowAccount{
		ID:               uuid.New(),
		Status:           domain.AccountStatusActive,
		Currency:         "EUR",
		CurrentBalance:   decimal.NewFromInt(50),
		AvailableBalance: decimal.NewFromInt(50),
	}
	mockAccounts.On("GetForUpdate", mock.Anything, mock.Anything, source.ID).Return(source, nil)
	mockAccounts.On("GetForUpdate", mock.Anything, mock.Anything, dest.ID).Return(dest, nil)

	_, err := svc.Transfer(context.Background(), &domain.TransferRequest{
		FromAccountID: source.ID,
		ToAccountID:   dest.ID,
		Amount:        decimal.NewFromInt(10),
	})

	assert.True(t, customError.IsCode(err, customError.ErrCodeInvariantViolation))
	assert.ErrorIs(t, err, customError.ErrCurrencyMismatch)
	mockAccounts.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestWithNumberRetry_GivesUpAfterRetries(t *testing.T) {
	collision := &pq.Error{Code: "23505"}
	calls := 0

	err := withNumberRetry(3, func() error {
		calls++
		return collision
	})

	assert.Equal(t, 3, calls)
	assert.True(t, customError.IsCode(err, customError.ErrCodeDatabaseError))
	assert.ErrorIs(t, err, customError.ErrDuplicateNumber)
}

func TestWithNumberRetry_PassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	calls := 0

	err := withNumberRetry(3, func() error {
		calls++
		return boom
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, boom, err)
}
