package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AccountStatusPending = "pending"
	AccountStatusActive  = "active"
	AccountStatusFrozen  = "frozen"
	AccountStatusClosed  = "closed"
)

const (
	AccountTypeLoan       = "loan"
	AccountTypeInterest   = "interest"
	AccountTypeFee        = "fee"
	AccountTypeCollateral = "collateral"
	AccountTypeReserve    = "reserve"
)

// EscrowAccount holds funds tied to a loan. AvailableBalance is
// CurrentBalance minus amounts reserved for in-flight outbound operations.
type EscrowAccount struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	AccountNumber    string           `json:"account_number" db:"account_number"`
	AccountType      string           `json:"account_type" db:"account_type"`
	LoanID           *uuid.UUID       `json:"loan_id,omitempty" db:"loan_id"`
	Currency         string           `json:"currency" db:"currency"`
	CurrentBalance   decimal.Decimal  `json:"current_balance" db:"current_balance"`
	AvailableBalance decimal.Decimal  `json:"available_balance" db:"available_balance"`
	MinimumBalance   *decimal.Decimal `json:"minimum_balance,omitempty" db:"minimum_balance"`
	MaximumBalance   *decimal.Decimal `json:"maximum_balance,omitempty" db:"maximum_balance"`
	Status           string           `json:"status" db:"status"`
	FrozenReason     *string          `json:"frozen_reason,omitempty" db:"frozen_reason"`
	ClosedReason     *string          `json:"closed_reason,omitempty" db:"closed_reason"`
	ClosedAt         *time.Time       `json:"closed_at,omitempty" db:"closed_at"`
	ReleasedAt       *time.Time       `json:"released_at,omitempty" db:"released_at"`
	ReleasedTo       *string          `json:"released_to,omitempty" db:"released_to"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// accountTransitions is the single authority on legal status changes.
var accountTransitions = map[string][]string{
	AccountStatusPending: {AccountStatusActive, AccountStatusClosed},
	AccountStatusActive:  {AccountStatusFrozen, AccountStatusClosed},
	AccountStatusFrozen:  {AccountStatusActive, AccountStatusClosed},
	AccountStatusClosed:  {},
}

// AccountCanTransition reports whether an escrow account may move between
// the two statuses.
func AccountCanTransition(from, to string) bool {
	for _, next := range accountTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsAccountUsable reports whether balance-mutating operations are allowed.
func IsAccountUsable(a *EscrowAccount) bool {
	return a.Status == AccountStatusActive
}

// ReservedAmount is the portion of the balance held for pending payouts.
func ReservedAmount(a *EscrowAccount) decimal.Decimal {
	return a.CurrentBalance.Sub(a.AvailableBalance)
}

type CreateAccountRequest struct {
	AccountType    string           `json:"account_type" validate:"required,oneof=loan interest fee collateral reserve"`
	LoanID         *uuid.UUID       `json:"loan_id,omitempty"`
	Currency       string           `json:"currency" validate:"required,len=3"`
	InitialAmount  decimal.Decimal  `json:"initial_amount"`
	MinimumBalance *decimal.Decimal `json:"minimum_balance,omitempty"`
	MaximumBalance *decimal.Decimal `json:"maximum_balance,omitempty"`
	Activate       bool             `json:"activate"`
}

type BalanceChangeRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description,omitempty"`
}

type TransferRequest struct {
	FromAccountID uuid.UUID       `json:"from_account_id" validate:"required"`
	ToAccountID   uuid.UUID       `json:"to_account_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Description   string          `json:"description,omitempty"`
}

type FreezeRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type CloseRequest struct {
	Reason string `json:"reason,omitempty"`
}
