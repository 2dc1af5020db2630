package payables

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/finance/accounts"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for payment bills and the account ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers payables routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/bills", h.listBills)
	r.Get("/bills/{id}", h.getBill)
	r.Post("/bills/{id}/verify", h.verify)
	r.Get("/accounts/{id}", h.getAccount)
	r.Get("/accounts/{id}/transactions", h.listTransactions)
}

type verifyBillRequest struct {
	Decision Decision `json:"decision" validate:"required,oneof=VERIFIED REJECTED"`
	Remark   string   `json:"remark"`
}

type billResponse struct {
	ID         uuid.UUID  `json:"id"`
	BillNumber string     `json:"billNumber"`
	PayeeName  string     `json:"payeeName"`
	Type       BillType   `json:"type"`
	Amount     string     `json:"amount"`
	Status     BillStatus `json:"status"`
	Remark     string     `json:"remark,omitempty"`
	PaidAt     *time.Time `json:"paidAt,omitempty"`
}

func toBillResponse(b PaymentBill) billResponse {
	return billResponse{
		ID:         b.ID,
		BillNumber: b.BillNumber,
		PayeeName:  b.PayeeName,
		Type:       b.Type,
		Amount:     b.Amount.StringFixed(2),
		Status:     b.Status,
		Remark:     b.Remark,
		PaidAt:     b.PaidAt,
	}
}

type transactionResponse struct {
	ID            uuid.UUID                `json:"id"`
	Type          accounts.TransactionType `json:"type"`
	Amount        string                   `json:"amount"`
	BalanceBefore string                   `json:"balanceBefore"`
	BalanceAfter  string                   `json:"balanceAfter"`
	RelatedType   accounts.RelatedType     `json:"relatedType"`
	RelatedID     uuid.UUID                `json:"relatedId"`
	Description   string                   `json:"description,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	bills, err := h.service.ListBills(r.Context(), ident, BillStatus(r.URL.Query().Get("status")), limit, offset)
	if err != nil {
		h.logger.Error("list payment bills", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]billResponse, 0, len(bills))
	for _, b := range bills {
		out = append(out, toBillResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bills": out})
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	bill, err := h.service.GetBill(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(bill))
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	var req verifyBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	bill, err := h.service.Verify(r.Context(), ident, id, req.Decision, req.Remark)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(bill))
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":        account.ID,
		"name":      account.Name,
		"accountNo": account.AccountNo,
		"balance":   account.Balance.StringFixed(2),
	})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	txns, err := h.service.ListAccountTransactions(r.Context(), ident, id, limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, transactionResponse{
			ID:            t.ID,
			Type:          t.Type,
			Amount:        t.Amount.StringFixed(2),
			BalanceBefore: t.BalanceBefore.StringFixed(2),
			BalanceAfter:  t.BalanceAfter.StringFixed(2),
			RelatedType:   t.RelatedType,
			RelatedID:     t.RelatedID,
			Description:   t.Description,
			CreatedAt:     t.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (h *Handler) identAndID(w http.ResponseWriter, r *http.Request) (shared.Identity, uuid.UUID, bool) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return shared.Identity{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return shared.Identity{}, uuid.Nil, false
	}
	return ident, id, true
}
