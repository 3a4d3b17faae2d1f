package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/lendpeer/escrow-engine/internal/domain"
	"github.com/lendpeer/escrow-engine/internal/service"
	"github.com/lendpeer/escrow-engine/pkg/response"
)

type DisbursementHandler struct {
	disbursements *service.DisbursementService
	validator     *validator.Validate
}

func NewDisbursementHandler(disbursements *service.DisbursementService) *DisbursementHandler {
	return &DisbursementHandler{
		disbursements: disbursements,
		validator:     validator.New(),
	}
}

func (h *DisbursementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateDisbursementRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	d, err := h.disbursements.Create(r.Context(), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Created(w, d)
}

func (h *DisbursementHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "disbursementId")
	if !ok {
		return
	}

	d, err := h.disbursements.Get(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, d)
}

func (h *DisbursementHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "disbursementId")
	if !ok {
		return
	}

	installments, err := h.disbursements.GetSchedule(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, installments)
}

func (h *DisbursementHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "disbursementId")
	if !ok {
		return
	}
	var req domain.ApproveDisbursementRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	d, err := h.disbursements.Approve(r.Context(), id, &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, d)
}

func (h *DisbursementHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "disbursementId")
	if !ok {
		return
	}
	var req domain.ScheduleDisbursementRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	d, err := h.disbursements.Schedule(r.Context(), id, req.ScheduledDate)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, d)
}

func (h *DisbursementHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "disbursementId")
	if !ok {
		return
	}
	var req domain.CancelDisbursementRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	d, err := h.disbursements.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, d)
}

func (h *DisbursementHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "disbursementId")
	if !ok {
		return
	}
	var req domain.ProcessDisbursementRequest
	if r.ContentLength > 0 {
		if !decodeAndValidate(w, r, h.validator, &req) {
			return
		}
	}

	d, err := h.disbursements.Process(r.Context(), id, &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, d)
}

func (h *DisbursementHandler) ProcessScheduled(w http.ResponseWriter, r *http.Request) {
	result, err := h.disbursements.ProcessScheduled(r.Context())
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, result)
}
