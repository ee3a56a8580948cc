package production

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockforge/stockforge/internal/platform/httpx"
	"github.com/stockforge/stockforge/internal/shared"
)

// Handler wires HTTP endpoints for the production workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/batches", h.List)
	r.Get("/batches/{id}", h.Show)
	r.Post("/batches", h.Plan)
	r.Post("/batches/produce", h.Produce)
	r.Post("/batches/{id}/complete", h.Complete)
	r.Post("/batches/{id}/cancel", h.Cancel)
}

type produceForm struct {
	FinishedProductID string `json:"finished_product_id" validate:"required"`
	Qty               int64  `json:"quantity" validate:"required,gt=0"`
	Notes             string `json:"notes"`
}

type batchResponse struct {
	ID                string              `json:"id"`
	FinishedProductID string              `json:"finished_product_id"`
	Qty               int64               `json:"quantity_produced"`
	Status            string              `json:"status"`
	Notes             string              `json:"notes,omitempty"`
	CreatedAt         string              `json:"created_at"`
	CompletedAt       string              `json:"completed_at,omitempty"`
	Components        []componentResponse `json:"components,omitempty"`
}

type componentResponse struct {
	ComponentID string `json:"component_id"`
	QtyUsed     int64  `json:"quantity_used"`
}

func toBatchResponse(b Batch, components []BatchComponent) batchResponse {
	resp := batchResponse{
		ID:                strconv.FormatInt(b.ID, 10),
		FinishedProductID: strconv.FormatInt(b.FinishedProductID, 10),
		Qty:               b.Qty,
		Status:            string(b.Status),
		Notes:             b.Notes,
		CreatedAt:         b.CreatedAt.Format(time.RFC3339),
	}
	if b.CompletedAt != nil {
		resp.CompletedAt = b.CompletedAt.Format(time.RFC3339)
	}
	for _, c := range components {
		resp.Components = append(resp.Components, componentResponse{
			ComponentID: strconv.FormatInt(c.ComponentID, 10),
			QtyUsed:     c.QtyUsed,
		})
	}
	return resp
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}
	filters := ListFilters{
		Status: BatchStatus(r.URL.Query().Get("status")),
		Page:   page,
		Limit:  limit,
	}
	if raw := r.URL.Query().Get("finished_product_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.FinishedProductID = id
		}
	}

	batches, total, err := h.service.ListBatches(r.Context(), filters)
	if err != nil {
		h.logger.Error("list batches failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"batches":    out,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	batch, components, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch, components))
}

func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeProduce(w, r)
	if !ok {
		return
	}
	batch, err := h.service.Plan(r.Context(), input)
	if err != nil {
		h.logger.Error("plan batch failed", "error", err, "finished_id", input.FinishedProductID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBatchResponse(batch, nil))
}

func (h *Handler) Produce(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeProduce(w, r)
	if !ok {
		return
	}
	batch, err := h.service.Produce(r.Context(), input)
	if err != nil {
		h.logger.Error("produce failed", "error", err, "finished_id", input.FinishedProductID, "qty", input.Qty)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBatchResponse(batch, nil))
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	batch, err := h.service.Complete(r.Context(), id, actorID(r))
	if err != nil {
		h.logger.Error("complete batch failed", "error", err, "batch_id", id)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch, nil))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	batch, err := h.service.Cancel(r.Context(), id, actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch, nil))
}

func (h *Handler) decodeProduce(w http.ResponseWriter, r *http.Request) (ProduceInput, bool) {
	var form produceForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return ProduceInput{}, false
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return ProduceInput{}, false
	}
	finishedID, err := strconv.ParseInt(form.FinishedProductID, 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid finished product id")
		return ProduceInput{}, false
	}
	return ProduceInput{
		FinishedProductID: finishedID,
		Qty:               form.Qty,
		Notes:             form.Notes,
		ActorID:           actorID(r),
		IdempotencyKey:    r.Header.Get("Idempotency-Key"),
	}, true
}

func actorID(r *http.Request) int64 {
	return shared.ActorFromContext(r.Context())
}
