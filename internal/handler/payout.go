package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/lendpeer/escrow-engine/internal/domain"
	"github.com/lendpeer/escrow-engine/internal/service"
	"github.com/lendpeer/escrow-engine/pkg/response"
)

type PayoutHandler struct {
	payouts   *service.PayoutService
	validator *validator.Validate
}

func NewPayoutHandler(payouts *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{
		payouts:   payouts,
		validator: validator.New(),
	}
}

func (h *PayoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePayoutRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	payout, err := h.payouts.Create(r.Context(), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Created(w, payout)
}

func (h *PayoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "payoutId")
	if !ok {
		return
	}

	payout, err := h.payouts.Get(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, payout)
}

func (h *PayoutHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "payoutId")
	if !ok {
		return
	}
	var req domain.ApprovePayoutRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	payout, err := h.payouts.Approve(r.Context(), id, &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, payout)
}

func (h *PayoutHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "payoutId")
	if !ok {
		return
	}
	var req domain.RejectPayoutRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	payout, err := h.payouts.Reject(r.Context(), id, req.Reason)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, payout)
}

func (h *PayoutHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "payoutId")
	if !ok {
		return
	}

	payout, err := h.payouts.Process(r.Context(), id)
	if err != nil {
		// The payout may carry a failed status worth returning alongside.
		response.BusinessError(w, err)
		return
	}
	response.Success(w, payout)
}

func (h *PayoutHandler) ProcessPending(w http.ResponseWriter, r *http.Request) {
	result, err := h.payouts.ProcessPending(r.Context())
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, result)
}
