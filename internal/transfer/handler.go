package transfer

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler serves transfer endpoints. Decisions go through the approval gate.
type Handler struct {
	logger  *slog.Logger
	service *Service
	gate    *approval.Gate
}

// NewHandler builds the transfer handler.
func NewHandler(logger *slog.Logger, service *Service, gate *approval.Gate) *Handler {
	return &Handler{logger: logger, service: service, gate: gate}
}

// MountRoutes registers transfer endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.request)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{Status: Status(q.Get("status"))}
	if v := q.Get("location_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, h.logger, shared.Validation("invalid location_id"))
			return
		}
		f.LocationID = id
	}
	rows, err := h.service.List(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var in RequestInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	t, err := h.service.Request(r.Context(), in, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid transfer id"))
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(a approval.Approval, actor shared.Actor, _ string) (approval.Approval, error) {
		return h.gate.Approve(r.Context(), a.ID, actor)
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(a approval.Approval, actor shared.Actor, comments string) (approval.Approval, error) {
		return h.gate.Reject(r.Context(), a.ID, actor, comments)
	})
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(approval.Approval, shared.Actor, string) (approval.Approval, error)) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid transfer id"))
		return
	}
	var body struct {
		Comments string `json:"comments"`
	}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, err)
			return
		}
	}
	transfer, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if transfer.Status != StatusPendingApproval {
		httpx.RespondError(w, h.logger, shared.AlreadyProcessed("transfer", id, string(transfer.Status)))
		return
	}
	pending, err := h.gate.PendingFor(r.Context(), approval.EntityTransfer, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if _, err := fn(pending, shared.CurrentActor(r.Context()), body.Comments); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	transfer, err = h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}
