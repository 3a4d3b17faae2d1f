package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DisbursementStatusPending    = "pending"
	DisbursementStatusApproved   = "approved"
	DisbursementStatusScheduled  = "scheduled"
	DisbursementStatusProcessing = "processing"
	DisbursementStatusPartial    = "partial"
	DisbursementStatusCompleted  = "completed"
	DisbursementStatusFailed     = "failed"
	DisbursementStatusCancelled  = "cancelled"
	DisbursementStatusRejected   = "rejected"
)

const (
	InstallmentStatusPending   = "pending"
	InstallmentStatusProcessed = "processed"
	InstallmentStatusSkipped   = "skipped"
)

// Disbursement releases escrowed loan funds to a borrower, possibly across
// several installments. DisbursedAmount only ever grows and never exceeds
// Amount.
type Disbursement struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	DisbursementNumber string          `json:"disbursement_number" db:"disbursement_number"`
	LoanID             uuid.UUID       `json:"loan_id" db:"loan_id"`
	EscrowAccountID    *uuid.UUID      `json:"escrow_account_id,omitempty" db:"escrow_account_id"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	DisbursedAmount    decimal.Decimal `json:"disbursed_amount" db:"disbursed_amount"`
	Currency           string          `json:"currency" db:"currency"`
	Status             string          `json:"status" db:"status"`
	ScheduledDate      *time.Time      `json:"scheduled_date,omitempty" db:"scheduled_date"`
	ApprovedBy         *uuid.UUID      `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt         *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	ApprovalNotes      *string         `json:"approval_notes,omitempty" db:"approval_notes"`
	CancelledReason    *string         `json:"cancelled_reason,omitempty" db:"cancelled_reason"`
	FailureReason      *string         `json:"failure_reason,omitempty" db:"failure_reason"`
	ProcessedAt        *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// DisbursementInstallment is one entry of an optional disbursement schedule.
type DisbursementInstallment struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	DisbursementID uuid.UUID       `json:"disbursement_id" db:"disbursement_id"`
	Sequence       int             `json:"sequence" db:"sequence"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	DueDate        time.Time       `json:"due_date" db:"due_date"`
	Status         string          `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

var disbursementTransitions = map[string][]string{
	DisbursementStatusPending:    {DisbursementStatusApproved, DisbursementStatusRejected, DisbursementStatusCancelled},
	DisbursementStatusApproved:   {DisbursementStatusScheduled, DisbursementStatusProcessing, DisbursementStatusCancelled},
	DisbursementStatusScheduled:  {DisbursementStatusProcessing, DisbursementStatusCancelled},
	DisbursementStatusProcessing: {DisbursementStatusPartial, DisbursementStatusCompleted, DisbursementStatusFailed},
	DisbursementStatusPartial:    {DisbursementStatusProcessing, DisbursementStatusCancelled},
	DisbursementStatusCompleted:  {},
	DisbursementStatusFailed:     {},
	DisbursementStatusCancelled:  {},
	DisbursementStatusRejected:   {},
}

// DisbursementCanTransition reports whether a disbursement may move between
// the two statuses.
func DisbursementCanTransition(from, to string) bool {
	for _, next := range disbursementTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsDisbursementProcessable reports whether a process call may start.
func IsDisbursementProcessable(d *Disbursement) bool {
	return d.Status == DisbursementStatusApproved ||
		d.Status == DisbursementStatusScheduled ||
		d.Status == DisbursementStatusPartial
}

// PendingAmount is what remains to be released.
func PendingAmount(d *Disbursement) decimal.Decimal {
	return d.Amount.Sub(d.DisbursedAmount)
}

type CreateDisbursementRequest struct {
	LoanID          uuid.UUID                  `json:"loan_id" validate:"required"`
	EscrowAccountID *uuid.UUID                 `json:"escrow_account_id,omitempty"`
	Amount          decimal.Decimal            `json:"amount" validate:"required"`
	Currency        string                     `json:"currency" validate:"required,len=3"`
	Schedule        []InstallmentScheduleEntry `json:"schedule,omitempty" validate:"omitempty,dive"`
}

type InstallmentScheduleEntry struct {
	Amount  decimal.Decimal `json:"amount" validate:"required"`
	DueDate time.Time       `json:"due_date" validate:"required"`
}

type ScheduleDisbursementRequest struct {
	ScheduledDate time.Time `json:"scheduled_date" validate:"required"`
}

type ApproveDisbursementRequest struct {
	ApprovedBy uuid.UUID `json:"approved_by" validate:"required"`
	Notes      *string   `json:"notes,omitempty"`
}

type CancelDisbursementRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type ProcessDisbursementRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}
