package purchasing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockforge/stockforge/internal/platform/httpx"
	"github.com/stockforge/stockforge/internal/shared"
)

// Handler wires HTTP endpoints for purchase intake.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs purchasing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Show)
	r.Post("/", h.Record)
}

type purchaseForm struct {
	ProductID    string `json:"product_id" validate:"required"`
	Qty          int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice    string `json:"unit_price" validate:"required"`
	Supplier     string `json:"supplier" validate:"required"`
	PurchaseDate string `json:"purchase_date"`
	Notes        string `json:"notes"`
}

type purchaseResponse struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	Qty          int64  `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	Supplier     string `json:"supplier"`
	PurchaseDate string `json:"purchase_date"`
	TotalAmount  string `json:"total_amount"`
	Notes        string `json:"notes,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toPurchaseResponse(p Purchase) purchaseResponse {
	return purchaseResponse{
		ID:           strconv.FormatInt(p.ID, 10),
		ProductID:    strconv.FormatInt(p.ProductID, 10),
		Qty:          p.Qty,
		UnitPrice:    p.UnitPrice.StringFixed(2),
		Supplier:     p.Supplier,
		PurchaseDate: p.PurchaseDate.Format(time.RFC3339),
		TotalAmount:  p.TotalAmount.StringFixed(2),
		Notes:        p.Notes,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
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
	filters := ListFilters{Page: page, Limit: limit}
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.ProductID = id
		}
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.From = t
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.To = t
		}
	}

	purchases, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list purchases failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	out := make([]purchaseResponse, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, toPurchaseResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchases":  out,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	purchase, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPurchaseResponse(purchase))
}

func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	var form purchaseForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	productID, err := strconv.ParseInt(form.ProductID, 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	unitPrice, err := decimal.NewFromString(form.UnitPrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit price")
		return
	}
	input := RecordInput{
		ProductID:      productID,
		Qty:            form.Qty,
		UnitPrice:      unitPrice,
		Supplier:       form.Supplier,
		Notes:          form.Notes,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if form.PurchaseDate != "" {
		t, err := time.Parse(time.RFC3339, form.PurchaseDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase date")
			return
		}
		input.PurchaseDate = t
	}

	purchase, err := h.service.Record(r.Context(), input)
	if err != nil {
		h.logger.Error("record purchase failed", "error", err, "product_id", productID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPurchaseResponse(purchase))
}
