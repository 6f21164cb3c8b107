package ledger

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler serves ledger reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/locations/{location}", h.listLocation)
	r.Get("/locations/{location}/items/{item}", h.get)
	r.Get("/locations/{location}/items/{item}/movements", h.movements)
}

func (h *Handler) listLocation(w http.ResponseWriter, r *http.Request) {
	locationID, ok := httpx.ParamID(r, "location")
	if !ok {
		httpx.RespondError(w, h.logger, shared.Validation("invalid location id"))
		return
	}
	rows, err := h.service.ListLocation(r.Context(), locationID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"location_id": locationID, "stock": rows})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	locationID, ok1 := httpx.ParamID(r, "location")
	itemID, ok2 := httpx.ParamID(r, "item")
	if !ok1 || !ok2 {
		httpx.RespondError(w, h.logger, shared.Validation("invalid location or item id"))
		return
	}
	stock, err := h.service.Get(r.Context(), locationID, itemID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	locationID, ok1 := httpx.ParamID(r, "location")
	itemID, ok2 := httpx.ParamID(r, "item")
	if !ok1 || !ok2 {
		httpx.RespondError(w, h.logger, shared.Validation("invalid location or item id"))
		return
	}
	rows, err := h.service.StockCard(r.Context(), locationID, itemID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}
