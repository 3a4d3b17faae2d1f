package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Metadata stores audit fields and processor responses as JSONB.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("metadata: cannot scan %T", src)
	}
	return json.Unmarshal(b, m)
}

const (
	TransactionStatusPending    = "pending"
	TransactionStatusProcessing = "processing"
	TransactionStatusCompleted  = "completed"
	TransactionStatusFailed     = "failed"
	TransactionStatusCancelled  = "cancelled"
	TransactionStatusRefunded   = "refunded"
)

const (
	TransactionTypeDeposit          = "deposit"
	TransactionTypeWithdrawal       = "withdrawal"
	TransactionTypeTransfer         = "transfer"
	TransactionTypeLoanPayment      = "loan_payment"
	TransactionTypeLoanDisbursement = "loan_disbursement"
	TransactionTypeEscrowDeposit    = "escrow_deposit"
	TransactionTypeEscrowRelease    = "escrow_release"
	TransactionTypeFee              = "fee"
	TransactionTypeRefund           = "refund"
)

const (
	TransferDirectionOut = "OUT"
	TransferDirectionIn  = "IN"
)

// Transaction is an immutable ledger entry. Once completed the only legal
// change is the flip to refunded, which always goes together with a new
// refund-type entry linked through RelatedTransactionID.
type Transaction struct {
	ID                   uuid.UUID         `json:"id" db:"id"`
	TransactionNumber    string            `json:"transaction_number" db:"transaction_number"`
	TransactionType      string            `json:"transaction_type" db:"transaction_type"`
	Status               string            `json:"status" db:"status"`
	Amount               decimal.Decimal   `json:"amount" db:"amount"`
	Currency             string            `json:"currency" db:"currency"`
	Fee                  *decimal.Decimal  `json:"fee,omitempty" db:"fee"`
	ProcessingFee        *decimal.Decimal  `json:"processing_fee,omitempty" db:"processing_fee"`
	Tax                  *decimal.Decimal  `json:"tax,omitempty" db:"tax"`
	NetAmount            *decimal.Decimal  `json:"net_amount,omitempty" db:"net_amount"`
	LoanID               *uuid.UUID        `json:"loan_id,omitempty" db:"loan_id"`
	EscrowAccountID      *uuid.UUID        `json:"escrow_account_id,omitempty" db:"escrow_account_id"`
	PaymentMethodID      *uuid.UUID        `json:"payment_method_id,omitempty" db:"payment_method_id"`
	PayoutRequestID      *uuid.UUID        `json:"payout_request_id,omitempty" db:"payout_request_id"`
	UserID               *uuid.UUID        `json:"user_id,omitempty" db:"user_id"`
	RelatedTransactionID *uuid.UUID        `json:"related_transaction_id,omitempty" db:"related_transaction_id"`
	TransferDirection    *string           `json:"transfer_direction,omitempty" db:"transfer_direction"`
	Description          string            `json:"description" db:"description"`
	Metadata             Metadata          `json:"metadata,omitempty" db:"metadata"`
	FailureReason        *string           `json:"failure_reason,omitempty" db:"failure_reason"`
	ProcessedAt          *time.Time        `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
}

var transactionTransitions = map[string][]string{
	TransactionStatusPending:    {TransactionStatusProcessing, TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusProcessing: {TransactionStatusCompleted, TransactionStatusFailed},
	TransactionStatusCompleted:  {TransactionStatusRefunded},
	TransactionStatusFailed:     {},
	TransactionStatusCancelled:  {},
	TransactionStatusRefunded:   {},
}

// TransactionCanTransition reports whether a ledger entry may move between
// the two statuses.
func TransactionCanTransition(from, to string) bool {
	for _, next := range transactionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTransactionCompleted reports whether the entry has settled.
func IsTransactionCompleted(t *Transaction) bool {
	return t.Status == TransactionStatusCompleted
}

// IsTransactionFinal reports whether the entry can never change again.
func IsTransactionFinal(t *Transaction) bool {
	return t.Status == TransactionStatusFailed ||
		t.Status == TransactionStatusCancelled ||
		t.Status == TransactionStatusRefunded
}

// IsBalanceReversible reports whether refunding the entry must reverse an
// escrow account balance effect.
func IsBalanceReversible(t *Transaction) bool {
	return t.EscrowAccountID != nil &&
		(t.TransactionType == TransactionTypeDeposit ||
			t.TransactionType == TransactionTypeWithdrawal ||
			t.TransactionType == TransactionTypeEscrowDeposit ||
			t.TransactionType == TransactionTypeEscrowRelease)
}

type CreateTransactionRequest struct {
	TransactionType string            `json:"transaction_type" validate:"required"`
	Amount          decimal.Decimal   `json:"amount" validate:"required"`
	Currency        string            `json:"currency" validate:"required,len=3"`
	LoanID          *uuid.UUID        `json:"loan_id,omitempty"`
	EscrowAccountID *uuid.UUID        `json:"escrow_account_id,omitempty"`
	PaymentMethodID *uuid.UUID        `json:"payment_method_id,omitempty"`
	UserID          *uuid.UUID        `json:"user_id,omitempty"`
	Description     string            `json:"description,omitempty"`
	Metadata        Metadata          `json:"metadata,omitempty"`
}

type ProcessPaymentRequest struct {
	PaymentMethodID uuid.UUID       `json:"payment_method_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount" validate:"required"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	Description     string          `json:"description,omitempty"`
}

type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason" validate:"required"`
}
