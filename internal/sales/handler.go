package sales

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

// Handler wires HTTP endpoints for orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Show)
	r.Post("/checkout", h.Checkout)
}

type checkoutForm struct {
	Lines         []checkoutLine `json:"lines" validate:"required,min=1,dive"`
	PaymentMethod string         `json:"payment_method" validate:"required,oneof=cash card transfer"`
}

type checkoutLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int64  `json:"quantity" validate:"required,gt=0"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	TotalAmount   string              `json:"total_amount"`
	CreatedAt     string              `json:"created_at"`
	Items         []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Qty       int64  `json:"quantity"`
	Price     string `json:"price"`
}

func toOrderResponse(o Order, items []OrderItem) orderResponse {
	resp := orderResponse{
		ID:            strconv.FormatInt(o.ID, 10),
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		TotalAmount:   o.TotalAmount.StringFixed(2),
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
	}
	for _, it := range items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: strconv.FormatInt(it.ProductID, 10),
			SKU:       it.SKU,
			Qty:       it.Qty,
			Price:     it.Price.StringFixed(2),
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
		PaymentMethod: PaymentMethod(r.URL.Query().Get("payment_method")),
		Page:          page,
		Limit:         limit,
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

	orders, total, err := h.service.ListOrders(r.Context(), filters)
	if err != nil {
		h.logger.Error("list orders failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orders":     out,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, items, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order, items))
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var form checkoutForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]CartLine, 0, len(form.Lines))
	for _, l := range form.Lines {
		productID, err := strconv.ParseInt(l.ProductID, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
			return
		}
		lines = append(lines, CartLine{ProductID: productID, Qty: l.Qty})
	}

	input := CheckoutInput{
		Lines:          lines,
		PaymentMethod:  PaymentMethod(form.PaymentMethod),
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	order, items, err := h.service.Checkout(r.Context(), input)
	if err != nil {
		h.logger.Error("checkout failed", "error", err, "lines", len(lines))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order, items))
}
