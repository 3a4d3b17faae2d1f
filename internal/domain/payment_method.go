package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentMethodStatusPending  = "pending"
	PaymentMethodStatusActive   = "active"
	PaymentMethodStatusInactive = "inactive"
	PaymentMethodStatusVerified = "verified"
	PaymentMethodStatusExpired  = "expired"
	PaymentMethodStatusFailed   = "failed"
)

const (
	PaymentMethodTypeCreditCard    = "credit_card"
	PaymentMethodTypeDebitCard     = "debit_card"
	PaymentMethodTypeBankAccount   = "bank_account"
	PaymentMethodTypeDigitalWallet = "digital_wallet"
	PaymentMethodTypeCash          = "cash"
)

// PaymentMethod is a tokenized reference to an external payment instrument.
// The processor token is opaque; no PAN data is stored here.
type PaymentMethod struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	UserID              uuid.UUID       `json:"user_id" db:"user_id"`
	MethodType          string          `json:"method_type" db:"method_type"`
	LastFour            string          `json:"last_four" db:"last_four"`
	HolderName          string          `json:"holder_name" db:"holder_name"`
	ProcessorToken      string          `json:"-" db:"processor_token"`
	ProcessorCustomerID string          `json:"-" db:"processor_customer_id"`
	IsDefault           bool            `json:"is_default" db:"is_default"`
	IsVerified          bool            `json:"is_verified" db:"is_verified"`
	Status              string          `json:"status" db:"status"`
	ExpiryMonth         *int            `json:"expiry_month,omitempty" db:"expiry_month"`
	ExpiryYear          *int            `json:"expiry_year,omitempty" db:"expiry_year"`
	UsageCount          int             `json:"usage_count" db:"usage_count"`
	TotalUsed           decimal.Decimal `json:"total_used" db:"total_used"`
	LastUsedAt          *time.Time      `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// IsPaymentMethodUsable reports whether the method may settle charges or be
// made the default.
func IsPaymentMethodUsable(m *PaymentMethod) bool {
	return m.Status == PaymentMethodStatusActive || m.Status == PaymentMethodStatusVerified
}

type CreatePaymentMethodRequest struct {
	UserID         uuid.UUID `json:"user_id" validate:"required"`
	MethodType     string    `json:"method_type" validate:"required,oneof=credit_card debit_card bank_account digital_wallet cash"`
	LastFour       string    `json:"last_four" validate:"omitempty,len=4,numeric"`
	HolderName     string    `json:"holder_name" validate:"required"`
	ProcessorToken string    `json:"processor_token" validate:"required"`
	ExpiryMonth    *int      `json:"expiry_month,omitempty" validate:"omitempty,min=1,max=12"`
	ExpiryYear     *int      `json:"expiry_year,omitempty" validate:"omitempty,min=2024"`
}
