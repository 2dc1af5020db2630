package journal

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for journal entries.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers journal routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/reverse", h.reverse)
}

type lineRequest struct {
	AccountID    uuid.UUID `json:"accountId" validate:"required"`
	DebitAmount  string    `json:"debitAmount"`
	CreditAmount string    `json:"creditAmount"`
	Description  string    `json:"description"`
}

type createRequest struct {
	PeriodID    uuid.UUID     `json:"periodId" validate:"required"`
	EntryDate   time.Time     `json:"entryDate" validate:"required"`
	Description string        `json:"description" validate:"required"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type reverseRequest struct {
	Description string `json:"description"`
}

type lineResponse struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"accountId"`
	DebitAmount  string    `json:"debitAmount"`
	CreditAmount string    `json:"creditAmount"`
	Description  string    `json:"description,omitempty"`
	SortOrder    int       `json:"sortOrder"`
}

type entryResponse struct {
	ID              uuid.UUID      `json:"id"`
	VoucherNo       string         `json:"voucherNo"`
	PeriodID        uuid.UUID      `json:"periodId"`
	EntryDate       time.Time      `json:"entryDate"`
	Description     string         `json:"description"`
	Status          Status         `json:"status"`
	SourceType      SourceType     `json:"sourceType"`
	SourceID        *uuid.UUID     `json:"sourceId,omitempty"`
	TotalDebit      string         `json:"totalDebit"`
	TotalCredit     string         `json:"totalCredit"`
	IsReversal      bool           `json:"isReversal"`
	ReversedEntryID *uuid.UUID     `json:"reversedEntryId,omitempty"`
	PostedAt        *time.Time     `json:"postedAt,omitempty"`
	Lines           []lineResponse `json:"lines,omitempty"`
}

func toEntryResponse(e Entry) entryResponse {
	resp := entryResponse{
		ID:              e.ID,
		VoucherNo:       e.VoucherNo,
		PeriodID:        e.PeriodID,
		EntryDate:       e.EntryDate,
		Description:     e.Description,
		Status:          e.Status,
		SourceType:      e.SourceType,
		SourceID:        e.SourceID,
		TotalDebit:      e.TotalDebit.StringFixed(2),
		TotalCredit:     e.TotalCredit.StringFixed(2),
		IsReversal:      e.IsReversal,
		ReversedEntryID: e.ReversedEntryID,
		PostedAt:        e.PostedAt,
	}
	for _, line := range e.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:           line.ID,
			AccountID:    line.AccountID,
			DebitAmount:  line.DebitAmount.StringFixed(2),
			CreditAmount: line.CreditAmount.StringFixed(2),
			Description:  line.Description,
			SortOrder:    line.SortOrder,
		})
	}
	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	filter := ListFilter{Status: Status(r.URL.Query().Get("status")), Limit: 100}
	if raw := r.URL.Query().Get("periodId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid periodId")
			return
		}
		filter.PeriodID = id
	}

	entries, err := h.service.List(r.Context(), ident, filter)
	if err != nil {
		h.logger.Error("list journal entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in := CreateInput{
		PeriodID:    req.PeriodID,
		EntryDate:   req.EntryDate,
		Description: req.Description,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, LineInput{
			AccountID:    line.AccountID,
			DebitAmount:  line.DebitAmount,
			CreditAmount: line.CreditAmount,
			Description:  line.Description,
		})
	}

	entry, err := h.service.Create(r.Context(), ident, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Submit)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.Reject(r.Context(), ident, id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	var req reverseRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
			return
		}
	}
	entry, err := h.service.Reverse(r.Context(), ident, id, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, shared.Identity, uuid.UUID) (Entry, error)) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	entry, err := op(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) identAndID(w http.ResponseWriter, r *http.Request) (shared.Identity, uuid.UUID, bool) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return shared.Identity{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return shared.Identity{}, uuid.Nil, false
	}
	return ident, id, true
}
