package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/lendpeer/escrow-engine/internal/domain"
	"github.com/lendpeer/escrow-engine/internal/service"
	"github.com/lendpeer/escrow-engine/pkg/response"
)

type PaymentMethodHandler struct {
	methods   *service.PaymentMethodService
	validator *validator.Validate
}

func NewPaymentMethodHandler(methods *service.PaymentMethodService) *PaymentMethodHandler {
	return &PaymentMethodHandler{
		methods:   methods,
		validator: validator.New(),
	}
}

func (h *PaymentMethodHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePaymentMethodRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	method, err := h.methods.Create(r.Context(), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Created(w, method)
}

func (h *PaymentMethodHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "methodId")
	if !ok {
		return
	}

	method, err := h.methods.Get(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, method)
}

func (h *PaymentMethodHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	methods, err := h.methods.ListByUser(r.Context(), userID)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, methods)
}

func (h *PaymentMethodHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "methodId")
	if !ok {
		return
	}

	method, err := h.methods.SetDefault(r.Context(), userID, id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, method)
}

func (h *PaymentMethodHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "methodId")
	if !ok {
		return
	}

	method, err := h.methods.Verify(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, method)
}

func (h *PaymentMethodHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "methodId")
	if !ok {
		return
	}

	method, err := h.methods.Deactivate(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, method)
}
