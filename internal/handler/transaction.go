package handler

import (
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/lendpeer/escrow-engine/internal/domain"
	"github.com/lendpeer/escrow-engine/internal/service"
	"github.com/lendpeer/escrow-engine/pkg/response"
)

// maxWebhookBody caps inbound webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

type TransactionHandler struct {
	ledger    *service.LedgerService
	webhooks  *service.WebhookService
	stats     *service.StatsService
	validator *validator.Validate
}

func NewTransactionHandler(ledger *service.LedgerService, webhooks *service.WebhookService, stats *service.StatsService) *TransactionHandler {
	return &TransactionHandler{
		ledger:    ledger,
		webhooks:  webhooks,
		stats:     stats,
		validator: validator.New(),
	}
}

func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTransactionRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	entry, err := h.ledger.CreateTransaction(r.Context(), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Created(w, entry)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transactionId")
	if !ok {
		return
	}

	entry, err := h.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, entry)
}

func (h *TransactionHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.ProcessPaymentRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	entry, err := h.ledger.ProcessPayment(r.Context(), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Created(w, entry)
}

func (h *TransactionHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transactionId")
	if !ok {
		return
	}
	var req domain.RefundRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	refund, err := h.ledger.Refund(r.Context(), id, &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Created(w, refund)
}

func (h *TransactionHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	signature := r.Header.Get("X-Signature")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "failed to read webhook body", err)
		return
	}

	if err := h.webhooks.Handle(r.Context(), provider, payload, signature); err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, map[string]string{"status": "acknowledged"})
}

func (h *TransactionHandler) PlatformSummary(w http.ResponseWriter, r *http.Request) {
	totals, err := h.stats.PlatformSummary(r.Context())
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, totals)
}
