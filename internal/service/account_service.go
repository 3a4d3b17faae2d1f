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

// AccountService owns escrow account balance invariants. Every mutation runs
// inside a unit of work and takes the account row lock before reading the
// balance, so concurrent withdrawals cannot overdraw.
type AccountService struct {
	db           *sqlx.DB
	Accounts     repository.AccountRepository
	Transactions repository.TransactionRepository
	notifier     gateway.Notifier
	log          *logrus.Logger
	config       *config.Config
}

func NewAccountService(
	db *sqlx.DB,
	accounts repository.AccountRepository,
	transactions repository.TransactionRepository,
	notifier gateway.Notifier,
	log *logrus.Logger,
	cfg *config.Config,
) *AccountService {
	return &AccountService{
		db:           db,
		Accounts:     accounts,
		Transactions: transactions,
		notifier:     notifier,
		log:          log,
		config:       cfg,
	}
}

// withNumberRetry re-runs a unit of work while the insert keeps colliding on
// a generated business number.
func withNumberRetry(retries int, fn func() error) error {
	var err error
	for attempt := 0; attempt < retries; attempt++ {
		err = fn()
		if err == nil || !repository.IsUniqueViolation(err) {
			return err
		}
	}
	return customError.WrapDatabaseError(customError.ErrDuplicateNumber)
}

// CreateAccount creates a new escrow account, optionally seeded and activated.
func (s *AccountService) CreateAccount(ctx context.Context, req *domain.CreateAccountRequest) (*domain.EscrowAccount, error) {
	if req.InitialAmount.IsNegative() {
		return nil, customError.WrapValidation("initial amount cannot be negative", customError.ErrInvalidAmount)
	}
	if req.MaximumBalance != nil && req.InitialAmount.GreaterThan(*req.MaximumBalance) {
		return nil, customError.WrapInvariant("initial amount exceeds maximum balance", customError.ErrMaximumBalanceExceeded)
	}

	status := domain.AccountStatusPending
	if req.Activate {
		status = domain.AccountStatusActive
	}

	now := time.Now()
	account := &domain.EscrowAccount{
		ID:               uuid.New(),
		AccountType:      req.AccountType,
		LoanID:           req.LoanID,
		Currency:         req.Currency,
		CurrentBalance:   req.InitialAmount,
		AvailableBalance: req.InitialAmount,
		MinimumBalance:   req.MinimumBalance,
		MaximumBalance:   req.MaximumBalance,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := withNumberRetry(s.config.Business.NumberRetries, func() error {
		account.AccountNumber = utils.GenerateBusinessNumber(utils.PrefixAccount, time.Now())
		return s.Accounts.Create(ctx, s.db, account)
	})
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.log.WithFields(logrus.Fields{
		"account_id":     account.ID,
		"account_number": account.AccountNumber,
		"status":         account.Status,
	}).Info("escrow account created")

	return account, nil
}

// GetAccount retrieves an account by id.
func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.EscrowAccount, error) {
	account, err := s.Accounts.GetByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapNotFound("escrow account", id.String(), customError.ErrAccountNotFound)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return account, nil
}

// Activate moves a pending account to active.
func (s *AccountService) Activate(ctx context.Context, id uuid.UUID) (*domain.EscrowAccount, error) {
	var account *domain.EscrowAccount
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.lockAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		if !domain.AccountCanTransition(account.Status, domain.AccountStatusActive) {
			return customError.WrapInvalidTransition("escrow account", account.Status, domain.AccountStatusActive)
		}
		account.Status = domain.AccountStatusActive
		return s.Accounts.Update(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Deposit credits an active account, producing a completed ledger entry.
func (s *AccountService) Deposit(ctx context.Context, id uuid.UUID, req *domain.BalanceChangeRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, customError.WrapValidation("deposit amount must be positive", customError.ErrInvalidAmount)
	}

	var entry *domain.Transaction
	err := withNumberRetry(s.config.Business.NumberRetries, func() error {
		return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
			var err error
			entry, err = s.DepositTx(ctx, tx, id, req.Amount, req.Description)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(gateway.EventDepositCompleted,
		fmt.Sprintf("deposit of %s %s to account %s", entry.Amount, entry.Currency, id))
	return entry, nil
}

// DepositTx applies a deposit inside the caller's unit of work.
func (s *AccountService) DepositTx(ctx context.Context, q repository.Querier, id uuid.UUID, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	account, err := s.lockAccount(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if !domain.IsAccountUsable(account) {
		return nil, customError.WrapInvariant("account is not active", customError.ErrAccountNotActive)
	}
	newBalance := account.CurrentBalance.Add(amount)
	if account.MaximumBalance != nil && newBalance.GreaterThan(*account.MaximumBalance) {
		return nil, customError.WrapInvariant("deposit would exceed maximum balance", customError.ErrMaximumBalanceExceeded)
	}

	account.CurrentBalance = newBalance
	account.AvailableBalance = account.AvailableBalance.Add(amount)
	if err := s.Accounts.Update(ctx, q, account); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	entry := s.newEntry(domain.TransactionTypeDeposit, amount, account.Currency, description)
	entry.EscrowAccountID = &account.ID
	entry.LoanID = account.LoanID
	if err := s.Transactions.Create(ctx, q, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// Withdraw debits an active account, rejecting anything over the available
// balance at lock-acquisition time.
func (s *AccountService) Withdraw(ctx context.Context, id uuid.UUID, req *domain.BalanceChangeRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, customError.WrapValidation("withdrawal amount must be positive", customError.ErrInvalidAmount)
	}

	var entry *domain.Transaction
	err := withNumberRetry(s.config.Business.NumberRetries, func() error {
		return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
			var err error
			entry, err = s.WithdrawTx(ctx, tx, id, req.Amount, domain.TransactionTypeWithdrawal, req.Description)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(gateway.EventWithdrawalCompleted,
		fmt.Sprintf("withdrawal of %s %s from account %s", entry.Amount, entry.Currency, id))
	return entry, nil
}

// WithdrawTx applies a withdrawal inside the caller's unit of work. The
// ledger entry type is caller-supplied so payouts and disbursements record
// their own movement kinds.
func (s *AccountService) WithdrawTx(ctx context.Context, q repository.Querier, id uuid.UUID, amount decimal.Decimal, entryType, description string) (*domain.Transaction, error) {
	account, err := s.lockAccount(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if !domain.IsAccountUsable(account) {
		return nil, customError.WrapInvariant("account is not active", customError.ErrAccountNotActive)
	}
	if amount.GreaterThan(account.AvailableBalance) {
		return nil, customError.WrapInsufficientFunds(account.ID.String())
	}
	newBalance := account.CurrentBalance.Sub(amount)
	if account.MinimumBalance != nil && newBalance.LessThan(*account.MinimumBalance) {
		return nil, customError.WrapInvariant("withdrawal would breach minimum balance", customError.ErrInsufficientFunds)
	}

	account.CurrentBalance = newBalance
	account.AvailableBalance = account.AvailableBalance.Sub(amount)
	if err := s.Accounts.Update(ctx, q, account); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	entry := s.newEntry(entryType, amount, account.Currency, description)
	entry.EscrowAccountID = &account.ID
	entry.LoanID = account.LoanID
	if err := s.Transactions.Create(ctx, q, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// Transfer atomically moves funds between two active accounts, producing two
// linked ledger entries. Accounts are locked in id order to avoid deadlocks.
func (s *AccountService) Transfer(ctx context.Context, req *domain.TransferRequest) ([]*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, customError.WrapValidation("transfer amount must be positive", customError.ErrInvalidAmount)
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, customError.WrapValidation("cannot transfer to the same account", nil)
	}

	var entries []*domain.Transaction
	err := withNumberRetry(s.config.Business.NumberRetries, func() error {
		entries = nil
		return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
			first, second := req.FromAccountID, req.ToAccountID
			if second.String() < first.String() {
				first, second = second, first
			}
			locked := map[uuid.UUID]*domain.EscrowAccount{}
			for _, id := range []uuid.UUID{first, second} {
				account, err := s.lockAccount(ctx, tx, id)
				if err != nil {
					return err
				}
				locked[id] = account
			}

			source, dest := locked[req.FromAccountID], locked[req.ToAccountID]
			if !domain.IsAccountUsable(source) || !domain.IsAccountUsable(dest) {
				return customError.WrapInvariant("both accounts must be active", customError.ErrAccountNotActive)
			}
			if source.Currency != dest.Currency {
				return customError.WrapInvariant("source and destination accounts use different currencies", customError.ErrCurrencyMismatch)
			}
			if req.Amount.GreaterThan(source.AvailableBalance) {
				return customError.WrapInsufficientFunds(source.ID.String())
			}
			if dest.MaximumBalance != nil && dest.CurrentBalance.Add(req.Amount).GreaterThan(*dest.MaximumBalance) {
				return customError.WrapInvariant("transfer would exceed destination maximum balance", customError.ErrMaximumBalanceExceeded)
			}

			source.CurrentBalance = source.CurrentBalance.Sub(req.Amount)
			source.AvailableBalance = source.AvailableBalance.Sub(req.Amount)
			dest.CurrentBalance = dest.CurrentBalance.Add(req.Amount)
			dest.AvailableBalance = dest.AvailableBalance.Add(req.Amount)
			if err := s.Accounts.Update(ctx, tx, source); err != nil {
				return customError.WrapDatabaseError(err)
			}
			if err := s.Accounts.Update(ctx, tx, dest); err != nil {
				return customError.WrapDatabaseError(err)
			}

			out := s.newEntry(domain.TransactionTypeTransfer, req.Amount, source.Currency, req.Description)
			out.EscrowAccountID = &source.ID
			direction := domain.TransferDirectionOut
			out.TransferDirection = &direction

			in := s.newEntry(domain.TransactionTypeTransfer, req.Amount, dest.Currency, req.Description)
			in.EscrowAccountID = &dest.ID
			inDirection := domain.TransferDirectionIn
			in.TransferDirection = &inDirection

			out.RelatedTransactionID = &in.ID
			in.RelatedTransactionID = &out.ID

			if err := s.Transactions.Create(ctx, tx, out); err != nil {
				return err
			}
			if err := s.Transactions.Create(ctx, tx, in); err != nil {
				return err
			}

			entries = []*domain.Transaction{out, in}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(gateway.EventTransferCompleted,
		fmt.Sprintf("transfer of %s from %s to %s", req.Amount, req.FromAccountID, req.ToAccountID))
	return entries, nil
}

// ReserveFunds holds part of the available balance for a pending outbound
// operation without touching the current balance.
func (s *AccountService) ReserveFunds(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		return s.ReserveFundsTx(ctx, tx, id, amount)
	})
}

// ReserveFundsTx holds funds inside the caller's unit of work.
func (s *AccountService) ReserveFundsTx(ctx context.Context, q repository.Querier, id uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return customError.WrapValidation("reserve amount must be positive", customError.ErrInvalidAmount)
	}
	account, err := s.lockAccount(ctx, q, id)
	if err != nil {
		return err
	}
	if !domain.IsAccountUsable(account) {
		return customError.WrapInvariant("account is not active", customError.ErrAccountNotActive)
	}
	if amount.GreaterThan(account.AvailableBalance) {
		return customError.WrapInsufficientFunds(account.ID.String())
	}

	account.AvailableBalance = account.AvailableBalance.Sub(amount)
	if err := s.Accounts.Update(ctx, q, account); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

// ReleaseReservedFunds returns a previously reserved amount to the available
// balance.
func (s *AccountService) ReleaseReservedFunds(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		return s.ReleaseReservedFundsTx(ctx, tx, id, amount)
	})
}

// ReleaseReservedFundsTx releases a hold inside the caller's unit of work.
// The release is capped so available never exceeds current.
func (s *AccountService) ReleaseReservedFundsTx(ctx context.Context, q repository.Querier, id uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return customError.WrapValidation("release amount must be positive", customError.ErrInvalidAmount)
	}
	account, err := s.lockAccount(ctx, q, id)
	if err != nil {
		return err
	}

	released := account.AvailableBalance.Add(amount)
	if released.GreaterThan(account.CurrentBalance) {
		released = account.CurrentBalance
	}
	account.AvailableBalance = released
	if err := s.Accounts.Update(ctx, q, account); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

// Freeze blocks all balance-mutating operations on the account.
func (s *AccountService) Freeze(ctx context.Context, id uuid.UUID, reason string) (*domain.EscrowAccount, error) {
	var account *domain.EscrowAccount
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.lockAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		if !domain.AccountCanTransition(account.Status, domain.AccountStatusFrozen) {
			return customError.WrapInvalidTransition("escrow account", account.Status, domain.AccountStatusFrozen)
		}
		account.Status = domain.AccountStatusFrozen
		account.FrozenReason = &reason
		return s.Accounts.Update(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"account_id": id, "reason": reason}).Warn("escrow account frozen")
	return account, nil
}

// Unfreeze reactivates a frozen account.
func (s *AccountService) Unfreeze(ctx context.Context, id uuid.UUID) (*domain.EscrowAccount, error) {
	var account *domain.EscrowAccount
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.lockAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		if account.Status != domain.AccountStatusFrozen {
			return customError.WrapInvalidTransition("escrow account", account.Status, domain.AccountStatusActive)
		}
		account.Status = domain.AccountStatusActive
		account.FrozenReason = nil
		return s.Accounts.Update(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Close terminally closes an account. The balance must already be zero.
func (s *AccountService) Close(ctx context.Context, id uuid.UUID, reason string) (*domain.EscrowAccount, error) {
	var account *domain.EscrowAccount
	err := repository.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.lockAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		if !domain.AccountCanTransition(account.Status, domain.AccountStatusClosed) {
			return customError.WrapInvalidTransition("escrow account", account.Status, domain.AccountStatusClosed)
		}
		if !account.CurrentBalance.IsZero() {
			return customError.WrapInvariant("account balance must be zero to close", customError.ErrNonZeroBalance)
		}
		now := time.Now()
		account.Status = domain.AccountStatusClosed
		account.ClosedAt = &now
		if reason != "" {
			account.ClosedReason = &reason
		}
		return s.Accounts.Update(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("account_id", id).Info("escrow account closed")
	return account, nil
}

// GetStatement returns an account's ledger entries in creation order.
func (s *AccountService) GetStatement(ctx context.Context, id uuid.UUID, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if _, err := s.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.Transactions.ListByAccount(ctx, s.db, id, limit)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return entries, nil
}

func (s *AccountService) lockAccount(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.EscrowAccount, error) {
	account, err := s.Accounts.GetForUpdate(ctx, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapNotFound("escrow account", id.String(), customError.ErrAccountNotFound)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return account, nil
}

func (s *AccountService) newEntry(entryType string, amount decimal.Decimal, currency, description string) *domain.Transaction {
	now := time.Now()
	return &domain.Transaction{
		ID:                uuid.New(),
		TransactionNumber: utils.GenerateBusinessNumber(utils.PrefixTransaction, now),
		TransactionType:   entryType,
		Status:            domain.TransactionStatusCompleted,
		Amount:            amount,
		Currency:          currency,
		Description:       description,
		ProcessedAt:       &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
