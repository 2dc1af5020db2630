package settlement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/finance/money"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for receipts and write-offs.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers settlement routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/statements", h.listStatements)
	r.Get("/receipts/{id}", h.getReceipt)
	r.Post("/receipts/{id}/verify", h.verifyReceipt)
	r.Post("/receipts/{id}/write-off", h.writeOff)
}

type allocationRequest struct {
	StatementID uuid.UUID `json:"statementId" validate:"required"`
	Amount      string    `json:"amount" validate:"required"`
}

type writeOffRequest struct {
	StatementIDs []uuid.UUID         `json:"statementIds"`
	Allocations  []allocationRequest `json:"allocations" validate:"dive"`
	Remark       string              `json:"remark"`
}

type verifyRequest struct {
	Approve bool   `json:"approve"`
	Remark  string `json:"remark"`
}

type statementResponse struct {
	ID              uuid.UUID       `json:"id"`
	StatementNumber string          `json:"statementNumber"`
	CustomerName    string          `json:"customerName"`
	TotalAmount     string          `json:"totalAmount"`
	ReceivedAmount  string          `json:"receivedAmount"`
	PendingAmount   string          `json:"pendingAmount"`
	Status          StatementStatus `json:"status"`
}

type receiptResponse struct {
	ID           uuid.UUID     `json:"id"`
	BillNumber   string        `json:"billNumber"`
	CustomerName string        `json:"customerName"`
	TotalAmount  string        `json:"totalAmount"`
	UsedAmount   string        `json:"usedAmount"`
	Available    string        `json:"availableAmount"`
	Status       ReceiptStatus `json:"status"`
}

func toReceiptResponse(r ReceiptBill) receiptResponse {
	return receiptResponse{
		ID:           r.ID,
		BillNumber:   r.BillNumber,
		CustomerName: r.CustomerName,
		TotalAmount:  r.TotalAmount.StringFixed(2),
		UsedAmount:   r.UsedAmount.StringFixed(2),
		Available:    r.Available().StringFixed(2),
		Status:       r.Status,
	}
}

func (h *Handler) listStatements(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	statements, err := h.service.ListOutstandingStatements(r.Context(), ident,
		StatementStatus(r.URL.Query().Get("status")), limit, offset)
	if err != nil {
		h.logger.Error("list statements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]statementResponse, 0, len(statements))
	for _, st := range statements {
		out = append(out, statementResponse{
			ID:              st.ID,
			StatementNumber: st.StatementNumber,
			CustomerName:    st.CustomerName,
			TotalAmount:     st.TotalAmount.StringFixed(2),
			ReceivedAmount:  st.ReceivedAmount.StringFixed(2),
			PendingAmount:   st.PendingAmount.StringFixed(2),
			Status:          st.Status,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"statements": out})
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	receipt, err := h.service.GetReceipt(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceiptResponse(receipt))
}

func (h *Handler) verifyReceipt(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	receipt, err := h.service.VerifyReceipt(r.Context(), ident, id, req.Approve, req.Remark)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceiptResponse(receipt))
}

func (h *Handler) writeOff(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	var req writeOffRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in := WriteOffInput{ReceiptID: id, StatementIDs: req.StatementIDs, Remark: req.Remark}
	for _, alloc := range req.Allocations {
		amount, err := money.Parse(alloc.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid allocation amount "+alloc.Amount)
			return
		}
		in.ExplicitAllocations = append(in.ExplicitAllocations, Allocation{StatementID: alloc.StatementID, Amount: amount})
	}

	result, err := h.service.WriteOff(r.Context(), ident, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	allocations := make([]map[string]any, 0, len(result.Allocations))
	for _, alloc := range result.Allocations {
		allocations = append(allocations, map[string]any{
			"statementId": alloc.StatementID,
			"amount":      alloc.Amount.StringFixed(2),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"receiptId":      result.ReceiptID,
		"receiptStatus":  result.ReceiptStatus,
		"totalAllocated": result.TotalAllocated.StringFixed(2),
		"allocations":    allocations,
	})
}

func (h *Handler) identAndID(w http.ResponseWriter, r *http.Request) (shared.Identity, uuid.UUID, bool) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return shared.Identity{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid receipt id")
		return shared.Identity{}, uuid.Nil, false
	}
	return ident, id, true
}
