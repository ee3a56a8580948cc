package recipe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockforge/stockforge/internal/platform/httpx"
)

// Handler wires HTTP endpoints for recipe management.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs recipe handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers recipe routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{finishedID}", h.Show)
	r.Post("/{finishedID}/entries", h.AddEntry)
	r.Delete("/entries/{entryID}", h.RemoveEntry)
	r.Post("/{finishedID}/reprice", h.Reprice)
}

type entryForm struct {
	ComponentID string `json:"component_id"`
	QtyRequired int64  `json:"quantity_required"`
}

type entryResponse struct {
	ID                string `json:"id"`
	FinishedProductID string `json:"finished_product_id"`
	ComponentID       string `json:"component_id"`
	QtyRequired       int64  `json:"quantity_required"`
	ComponentName     string `json:"component_name,omitempty"`
	ComponentSKU      string `json:"component_sku,omitempty"`
	ComponentPrice    string `json:"component_price,omitempty"`
	ComponentStock    int64  `json:"component_stock,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	finishedID, err := strconv.ParseInt(chi.URLParam(r, "finishedID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid finished product id")
		return
	}
	entries, err := h.service.GetRecipe(r.Context(), finishedID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:                strconv.FormatInt(e.ID, 10),
			FinishedProductID: strconv.FormatInt(e.FinishedProductID, 10),
			ComponentID:       strconv.FormatInt(e.ComponentID, 10),
			QtyRequired:       e.QtyRequired,
			ComponentName:     e.ComponentName,
			ComponentSKU:      e.ComponentSKU,
			ComponentPrice:    e.ComponentPrice.StringFixed(2),
			ComponentStock:    e.ComponentStock,
			CreatedAt:         e.CreatedAt.Format(time.RFC3339),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	finishedID, err := strconv.ParseInt(chi.URLParam(r, "finishedID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid finished product id")
		return
	}
	var form entryForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	componentID, err := strconv.ParseInt(form.ComponentID, 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}

	entry, err := h.service.AddEntry(r.Context(), finishedID, componentID, form.QtyRequired)
	if err != nil {
		h.logger.Error("add recipe entry failed", "error", err, "finished_id", finishedID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entryResponse{
		ID:                strconv.FormatInt(entry.ID, 10),
		FinishedProductID: strconv.FormatInt(entry.FinishedProductID, 10),
		ComponentID:       strconv.FormatInt(entry.ComponentID, 10),
		QtyRequired:       entry.QtyRequired,
	})
}

func (h *Handler) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	if err := h.service.RemoveEntry(r.Context(), entryID); err != nil {
		h.logger.Error("remove recipe entry failed", "error", err, "entry_id", entryID)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Reprice(w http.ResponseWriter, r *http.Request) {
	finishedID, err := strconv.ParseInt(chi.URLParam(r, "finishedID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid finished product id")
		return
	}
	price, err := h.service.Recompute(r.Context(), finishedID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"id": strconv.FormatInt(finishedID, 10), "price": price.StringFixed(2)})
}
