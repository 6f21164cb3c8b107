package approval

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler serves the generic approval endpoints.
type Handler struct {
	logger *slog.Logger
	gate   *Gate
}

// NewHandler builds the approval handler.
func NewHandler(logger *slog.Logger, gate *Gate) *Handler {
	return &Handler{logger: logger, gate: gate}
}

// MountRoutes registers approval endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.request)
	r.Get("/pending", h.pending)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
}

type requestBody struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
}

type decisionBody struct {
	Comments string `json:"comments"`
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	a, err := h.gate.Request(r.Context(), body.EntityType, body.EntityID, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	f := Filter{Status: StatusPending, EntityType: EntityType(r.URL.Query().Get("entity_type"))}
	rows, err := h.gate.List(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid approval id"))
		return
	}
	a, err := h.gate.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid approval id"))
		return
	}
	a, err := h.gate.Approve(r.Context(), id, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid approval id"))
		return
	}
	var body decisionBody
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, err)
			return
		}
	}
	a, err := h.gate.Reject(r.Context(), id, shared.CurrentActor(r.Context()), body.Comments)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}
