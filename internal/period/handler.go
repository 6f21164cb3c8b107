package period

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler serves period lifecycle endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	gate    *approval.Gate
}

// NewHandler builds the period handler.
func NewHandler(logger *slog.Logger, service *Service, gate *approval.Gate) *Handler {
	return &Handler{logger: logger, service: service, gate: gate}
}

// MountRoutes registers period endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/open", h.open)
	r.Get("/{id}/locations", h.locations)
	r.Post("/{id}/locations/{location}/reopen", h.reopen)
	r.Get("/{id}/locations/{location}/snapshot", h.snapshot)
	r.Post("/{id}/close", h.requestClose)
	r.Post("/{id}/close/approve", h.approveClose)
	r.Post("/{id}/close/reject", h.rejectClose)
}

type createRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	in, err := parseCreate(req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.CreatePeriod(r.Context(), in, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid period id"))
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid period id"))
		return
	}
	p, err := h.service.OpenPeriod(r.Context(), id, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) locations(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid period id"))
		return
	}
	rows, err := h.service.Locations(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	id, ok1 := httpx.ParamID(r, "id")
	locationID, ok2 := httpx.ParamID(r, "location")
	if !ok1 || !ok2 {
		httpx.RespondError(w, h.logger, shared.Validation("invalid period or location id"))
		return
	}
	loc, err := h.service.ReopenLocation(r.Context(), id, locationID, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

// snapshot serves the persisted bytes unchanged.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	id, ok1 := httpx.ParamID(r, "id")
	locationID, ok2 := httpx.ParamID(r, "location")
	if !ok1 || !ok2 {
		httpx.RespondError(w, h.logger, shared.Validation("invalid period or location id"))
		return
	}
	data, err := h.service.Snapshot(r.Context(), id, locationID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Raw(w, http.StatusOK, "application/json", data)
}

func (h *Handler) requestClose(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid period id"))
		return
	}
	p, a, err := h.service.RequestClose(r.Context(), id, shared.CurrentActor(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"period": p, "approval": a})
}

func (h *Handler) approveClose(w http.ResponseWriter, r *http.Request) {
	h.decideClose(w, r, func(a approval.Approval, actor shared.Actor, _ string) (approval.Approval, error) {
		return h.gate.Approve(r.Context(), a.ID, actor)
	})
}

func (h *Handler) rejectClose(w http.ResponseWriter, r *http.Request) {
	h.decideClose(w, r, func(a approval.Approval, actor shared.Actor, comments string) (approval.Approval, error) {
		return h.gate.Reject(r.Context(), a.ID, actor, comments)
	})
}

func (h *Handler) decideClose(w http.ResponseWriter, r *http.Request, fn func(approval.Approval, shared.Actor, string) (approval.Approval, error)) {
	id, ok := httpx.ParamID(r, "id")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid period id"))
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
	pending, err := h.gate.PendingFor(r.Context(), approval.EntityPeriodClose, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	decided, err := fn(pending, shared.CurrentActor(r.Context()), body.Comments)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period": p, "approval": decided})
}

func parseCreate(req createRequest) (CreatePeriodInput, error) {
	start, err := parseDate(req.StartDate)
	if err != nil {
		return CreatePeriodInput{}, shared.Validation("invalid start_date", shared.FieldError{Field: "start_date", Rule: "date"})
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return CreatePeriodInput{}, shared.Validation("invalid end_date", shared.FieldError{Field: "end_date", Rule: "date"})
	}
	return CreatePeriodInput{Name: req.Name, StartDate: start, EndDate: end}, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
