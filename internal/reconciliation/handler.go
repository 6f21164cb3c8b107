package reconciliation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler serves reconciliation endpoints nested under /periods.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the reconciliation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reconciliation endpoints on the periods router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/summary", h.summary)
	r.Get("/{id}/locations/{location}/reconciliation", h.compute)
	r.Put("/{id}/locations/{location}/adjustments", h.adjust)
	r.Post("/{id}/locations/{location}/ready", h.confirm)
}

func ids(r *http.Request) (int64, int64, bool) {
	periodID, ok1 := httpx.ParamID(r, "id")
	locationID, ok2 := httpx.ParamID(r, "location")
	return periodID, locationID, ok1 && ok2
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	periodID, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid period id"))
		return
	}
	out, err := h.service.Summary(r.Context(), periodID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) compute(w http.ResponseWriter, r *http.Request) {
	periodID, locationID, ok := ids(r)
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid period or location id"))
		return
	}
	out, err := h.service.Compute(r.Context(), periodID, locationID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	periodID, locationID, ok := ids(r)
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid period or location id"))
		return
	}
	var in Adjustments
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	out, err := h.service.SaveAdjustments(r.Context(), periodID, locationID, in, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	periodID, locationID, ok := ids(r)
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid period or location id"))
		return
	}
	out, err := h.service.Confirm(r.Context(), periodID, locationID, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
