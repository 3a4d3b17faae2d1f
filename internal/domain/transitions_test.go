package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAccountCanTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{AccountStatusPending, AccountStatusActive, true},
		{AccountStatusPending, AccountStatusClosed, true},
		{AccountStatusPending, AccountStatusFrozen, false},
		{AccountStatusActive, AccountStatusFrozen, true},
		{AccountStatusActive, AccountStatusClosed, true},
		{AccountStatusFrozen, AccountStatusActive, true},
		{AccountStatusFrozen, AccountStatusClosed, true},
		{AccountStatusClosed, AccountStatusActive, false},
		{AccountStatusClosed, AccountStatusFrozen, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, AccountCanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTransactionCanTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{TransactionStatusPending, TransactionStatusCompleted, true},
		{TransactionStatusPending, TransactionStatusFailed, true},
		{TransactionStatusPending, TransactionStatusCancelled, true},
		{TransactionStatusProcessing, TransactionStatusCompleted, true},
		{TransactionStatusCompleted, TransactionStatusRefunded, true},
		{TransactionStatusCompleted, TransactionStatusPending, false},
		{TransactionStatusRefunded, TransactionStatusCompleted, false},
		{TransactionStatusFailed, TransactionStatusCompleted, false},
		{TransactionStatusCancelled, TransactionStatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TransactionCanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestPayoutCanTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{PayoutStatusPending, PayoutStatusApproved, true},
		{PayoutStatusPending, PayoutStatusRejected, true},
		{PayoutStatusPending, PayoutStatusCancelled, true},
		{PayoutStatusPending, PayoutStatusProcessing, false},
		{PayoutStatusApproved, PayoutStatusProcessing, true},
		{PayoutStatusApproved, PayoutStatusRejected, false},
		{PayoutStatusProcessing, PayoutStatusCompleted, true},
		{PayoutStatusProcessing, PayoutStatusFailed, true},
		{PayoutStatusCompleted, PayoutStatusProcessing, false},
		{PayoutStatusFailed, PayoutStatusProcessing, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PayoutCanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestDisbursementCanTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{DisbursementStatusPending, DisbursementStatusApproved, true},
		{DisbursementStatusPending, DisbursementStatusRejected, true},
		{DisbursementStatusApproved, DisbursementStatusScheduled, true},
		{DisbursementStatusApproved, DisbursementStatusProcessing, true},
		{DisbursementStatusScheduled, DisbursementStatusProcessing, true},
		{DisbursementStatusProcessing, DisbursementStatusPartial, true},
		{DisbursementStatusProcessing, DisbursementStatusCompleted, true},
		// Partial disbursements can resume processing.
		{DisbursementStatusPartial, DisbursementStatusProcessing, true},
		{DisbursementStatusCompleted, DisbursementStatusProcessing, false},
		{DisbursementStatusCancelled, DisbursementStatusProcessing, false},
		{DisbursementStatusRejected, DisbursementStatusApproved, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DisbursementCanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestIsDisbursementProcessable(t *testing.T) {
	processable := []string{DisbursementStatusApproved, DisbursementStatusScheduled, DisbursementStatusPartial}
	for _, status := range processable {
		assert.True(t, IsDisbursementProcessable(&Disbursement{Status: status}), status)
	}

	blocked := []string{DisbursementStatusPending, DisbursementStatusCompleted, DisbursementStatusCancelled, DisbursementStatusFailed}
	for _, status := range blocked {
		assert.False(t, IsDisbursementProcessable(&Disbursement{Status: status}), status)
	}
}

func TestIsBalanceReversible(t *testing.T) {
	accountID := uuid.New()

	tests := []struct {
		name string
		txn  *Transaction
		want bool
	}{
		{"deposit with account", &Transaction{TransactionType: TransactionTypeDeposit, EscrowAccountID: &accountID}, true},
		{"withdrawal with account", &Transaction{TransactionType: TransactionTypeWithdrawal, EscrowAccountID: &accountID}, true},
		{"escrow release with account", &Transaction{TransactionType: TransactionTypeEscrowRelease, EscrowAccountID: &accountID}, true},
		{"deposit without account", &Transaction{TransactionType: TransactionTypeDeposit}, false},
		{"loan payment with account", &Transaction{TransactionType: TransactionTypeLoanPayment, EscrowAccountID: &accountID}, false},
		{"fee with account", &Transaction{TransactionType: TransactionTypeFee, EscrowAccountID: &accountID}, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsBalanceReversible(tt.txn), tt.name)
	}
}

func TestReservedAmount(t *testing.T) {
	account := &EscrowAccount{
		CurrentBalance:   decimal.NewFromInt(1000),
		AvailableBalance: decimal.NewFromInt(700),
	}
	assert.True(t, ReservedAmount(account).Equal(decimal.NewFromInt(300)))
}

func TestMetadataScanRoundTrip(t *testing.T) {
	m := Metadata{"provider_ref": "ch_123"}

	value, err := m.Value()
	assert.NoError(t, err)

	var scanned Metadata
	assert.NoError(t, scanned.Scan(value))
	assert.Equal(t, m, scanned)

	var nilScan Metadata
	assert.NoError(t, nilScan.Scan(nil))
	assert.Nil(t, nilScan)
}
