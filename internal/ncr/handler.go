package ncr

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler serves NCR endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the NCR handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers NCR endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/transition", h.transition)
	r.Put("/{id}/impact", h.impact)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{Status: Status(q.Get("status"))}
	for key, dst := range map[string]*int64{"period_id": &f.PeriodID, "location_id": &f.LocationID, "delivery_id": &f.DeliveryID} {
		if v := q.Get(key); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				httpx.RespondError(w, h.logger, shared.Validation("invalid "+key, shared.FieldError{Field: key, Rule: "numeric"}))
				return
			}
			*dst = id
		}
	}
	rows, err := h.service.List(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	n, err := h.service.Create(r.Context(), in, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, n)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid ncr id"))
		return
	}
	n, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid ncr id"))
		return
	}
	var body struct {
		Status Status `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	n, err := h.service.Transition(r.Context(), id, body.Status, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

func (h *Handler) impact(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid ncr id"))
		return
	}
	var body struct {
		Impact Impact `json:"financial_impact"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	n, err := h.service.SetImpact(r.Context(), id, body.Impact, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}
