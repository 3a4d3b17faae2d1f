package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PayoutStatusPending    = "pending"
	PayoutStatusApproved   = "approved"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusRejected   = "rejected"
	PayoutStatusCancelled  = "cancelled"
	PayoutStatusFailed     = "failed"
)

const (
	PayoutMethodBankTransfer  = "bank_transfer"
	PayoutMethodDigitalWallet = "digital_wallet"
	PayoutMethodCheck         = "check"
	PayoutMethodCash          = "cash"
)

// PayoutRequest asks to move funds out of the platform to an external
// recipient, optionally funded from an escrow account.
type PayoutRequest struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	RequestNumber    string           `json:"request_number" db:"request_number"`
	UserID           uuid.UUID        `json:"user_id" db:"user_id"`
	EscrowAccountID  *uuid.UUID       `json:"escrow_account_id,omitempty" db:"escrow_account_id"`
	PayoutType       string           `json:"payout_type" db:"payout_type"`
	Amount           decimal.Decimal  `json:"amount" db:"amount"`
	Currency         string           `json:"currency" db:"currency"`
	Fee              decimal.Decimal  `json:"fee" db:"fee"`
	NetAmount        decimal.Decimal  `json:"net_amount" db:"net_amount"`
	PayoutMethod     string           `json:"payout_method" db:"payout_method"`
	RecipientName    string           `json:"recipient_name" db:"recipient_name"`
	RecipientEmail   string           `json:"recipient_email" db:"recipient_email"`
	RecipientPhone   *string          `json:"recipient_phone,omitempty" db:"recipient_phone"`
	PaymentDetails   *string          `json:"payment_details,omitempty" db:"payment_details"`
	Status           string           `json:"status" db:"status"`
	Priority         int              `json:"priority" db:"priority"`
	ApprovedBy       *uuid.UUID       `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty" db:"approved_at"`
	ApprovalNotes    *string          `json:"approval_notes,omitempty" db:"approval_notes"`
	RejectionReason  *string          `json:"rejection_reason,omitempty" db:"rejection_reason"`
	FailureReason    *string          `json:"failure_reason,omitempty" db:"failure_reason"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

var payoutTransitions = map[string][]string{
	PayoutStatusPending:    {PayoutStatusApproved, PayoutStatusRejected, PayoutStatusCancelled},
	PayoutStatusApproved:   {PayoutStatusProcessing},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
	PayoutStatusCompleted:  {},
	PayoutStatusRejected:   {},
	PayoutStatusCancelled:  {},
	PayoutStatusFailed:     {},
}

// PayoutCanTransition reports whether a payout request may move between the
// two statuses.
func PayoutCanTransition(from, to string) bool {
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RequiresExternalSettlement reports whether processing the payout must call
// the payment processor. Cash payouts are settled at a counter, off-rails.
func RequiresExternalSettlement(p *PayoutRequest) bool {
	return p.PayoutMethod != PayoutMethodCash
}

type CreatePayoutRequest struct {
	UserID          uuid.UUID       `json:"user_id" validate:"required"`
	EscrowAccountID *uuid.UUID      `json:"escrow_account_id,omitempty"`
	PayoutType      string          `json:"payout_type" validate:"required"`
	Amount          decimal.Decimal `json:"amount" validate:"required"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	PayoutMethod    string          `json:"payout_method" validate:"required,oneof=bank_transfer digital_wallet check cash"`
	RecipientName   string          `json:"recipient_name" validate:"required"`
	RecipientEmail  string          `json:"recipient_email" validate:"required,email"`
	RecipientPhone  *string         `json:"recipient_phone,omitempty"`
	PaymentDetails  *string         `json:"payment_details,omitempty"`
	Priority        int             `json:"priority" validate:"min=0,max=10"`
}

type ApprovePayoutRequest struct {
	ApprovedBy uuid.UUID `json:"approved_by" validate:"required"`
	Notes      *string   `json:"notes,omitempty"`
}

type RejectPayoutRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// SweepResult reports the outcome of a batch sweep.
type SweepResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}
