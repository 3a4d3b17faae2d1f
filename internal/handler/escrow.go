package handler

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/lendpeer/escrow-engine/internal/domain"
	"github.com/lendpeer/escrow-engine/internal/service"
	"github.com/lendpeer/escrow-engine/pkg/response"
)

type EscrowHandler struct {
	accounts  *service.AccountService
	stats     *service.StatsService
	validator *validator.Validate
}

func NewEscrowHandler(accounts *service.AccountService, stats *service.StatsService) *EscrowHandler {
	return &EscrowHandler{
		accounts:  accounts,
		stats:     stats,
		validator: validator.New(),
	}
}

func (h *EscrowHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAccountRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Created(w, account)
}

func (h *EscrowHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, account)
}

func (h *EscrowHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	account, err := h.accounts.Activate(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, account)
}

func (h *EscrowHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}
	var req domain.BalanceChangeRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	entry, err := h.accounts.Deposit(r.Context(), id, &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Created(w, entry)
}

func (h *EscrowHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}
	var req domain.BalanceChangeRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	entry, err := h.accounts.Withdraw(r.Context(), id, &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Created(w, entry)
}

func (h *EscrowHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	entries, err := h.accounts.Transfer(r.Context(), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Created(w, entries)
}

func (h *EscrowHandler) Freeze(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}
	var req domain.FreezeRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	account, err := h.accounts.Freeze(r.Context(), id, req.Reason)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, account)
}

func (h *EscrowHandler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	account, err := h.accounts.Unfreeze(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, account)
}

func (h *EscrowHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}
	var req domain.CloseRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	account, err := h.accounts.Close(r.Context(), id, req.Reason)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, account)
}

func (h *EscrowHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.accounts.GetStatement(r.Context(), id, limit)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, entries)
}

func (h *EscrowHandler) GetAccountSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	totals, err := h.stats.AccountSummary(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	response.Success(w, totals)
}
