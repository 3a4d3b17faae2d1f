package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/lendpeer/escrow-engine/internal/domain"
	customError "github.com/lendpeer/escrow-engine/pkg/errors"
)

func newTestPaymentMethodService(methods *MockPaymentMethodRepository) *PaymentMethodService {
	return &PaymentMethodService{
		Methods: methods,
		log:     testLogger(),
	}
}

func TestGetPaymentMethod_NotFound(t *testing.T) {
	mockMethods := &MockPaymentMethodRepository{}
	svc := newTestPaymentMethodService(mockMethods)

	id := uuid.New()
	mockMethods.On("GetByID", mock.Anything, mock.Anything, id).Return(nil, sql.ErrNoRows)

	_, err := svc.Get(context.Background(), id)

	assert.True(t, customError.IsCode(err, customError.ErrCodeNotFound))
	assert.ErrorIs(t, err, customError.ErrPaymentMethodNotFound)
}

func TestListPaymentMethods_DefaultFirst(t *testing.T) {
	mockMethods := &MockPaymentMethodRepository{}
	svc := newTestPaymentMethodService(mockMethods)

	userID := uuid.New()
	methods := []*domain.PaymentMethod{
		{UserID: userID, IsDefault: true, Status: domain.PaymentMethodStatusVerified},
		{UserID: userID, IsDefault: false, Status: domain.PaymentMethodStatusActive},
	}
	mockMethods.On("ListByUser", mock.Anything, mock.Anything, userID).Return(methods, nil)

	got, err := svc.ListByUser(context.Background(), userID)

	assert.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, got[0].IsDefault)
}

func TestIsPaymentMethodUsable(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{domain.PaymentMethodStatusActive, true},
		{domain.PaymentMethodStatusVerified, true},
		{domain.PaymentMethodStatusPending, false},
		{domain.PaymentMethodStatusInactive, false},
		{domain.PaymentMethodStatusExpired, false},
		{domain.PaymentMethodStatusFailed, false},
	}

	for _, tt := range tests {
		method := &domain.PaymentMethod{Status: tt.status}
		assert.Equal(t, tt.want, domain.IsPaymentMethodUsable(method), tt.status)
	}
}
