package periods

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for accounting periods.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers period routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/current", h.current)
	r.Get("/{id}", h.get)
	r.Post("/{id}/close", h.close)
}

type periodResponse struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Year     int        `json:"year"`
	Month    int        `json:"month"`
	Quarter  int        `json:"quarter"`
	Status   Status     `json:"status"`
	ClosedBy *uuid.UUID `json:"closedBy,omitempty"`
	ClosedAt *time.Time `json:"closedAt,omitempty"`
}

func toPeriodResponse(p Period) periodResponse {
	return periodResponse{
		ID:       p.ID,
		Name:     p.Name(),
		Year:     p.Year,
		Month:    p.Month,
		Quarter:  p.Quarter,
		Status:   p.Status,
		ClosedBy: p.ClosedBy,
		ClosedAt: p.ClosedAt,
	}
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	period, err := h.service.GetOrCreateCurrentPeriod(r.Context(), ident)
	if err != nil {
		h.logger.Error("resolve current period", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	period, err := h.service.GetPeriod(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := h.identAndID(w, r)
	if !ok {
		return
	}
	period, err := h.service.ClosePeriod(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) identAndID(w http.ResponseWriter, r *http.Request) (shared.Identity, uuid.UUID, bool) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return shared.Identity{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
		return shared.Identity{}, uuid.Nil, false
	}
	return ident, id, true
}
