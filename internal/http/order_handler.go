package http

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Christophe-THEVENET/greengoodies/internal/service"
)

type OrderHandler struct {
	carts   *service.CartService
	timeout time.Duration
	log     *zap.Logger
}

func NewOrderHandler(carts *service.CartService, timeout time.Duration, log *zap.Logger) *OrderHandler {
	return &OrderHandler{carts: carts, timeout: timeout, log: log}
}

type OrderLineDTO struct {
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	Quantity     int32           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

type OrderDTO struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   string          `json:"created_at"`
	Lines       []OrderLineDTO  `json:"lines"`
}

// History lists the user's five most recent validated orders.
func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.carts.LastOrders(ctx, userID)
	if err != nil {
		h.log.Error("order history failed", zap.Int64("user_id", userID), zap.Error(err))
		handleServiceError(w, err)
		return
	}

	out := make([]OrderDTO, 0, len(orders))
	for _, order := range orders {
		dto := OrderDTO{
			ID:          order.ID.String(),
			OrderNumber: order.OrderNumber,
			TotalAmount: order.TotalAmount,
			CreatedAt:   order.CreatedAt.Format(time.RFC3339),
			Lines:       make([]OrderLineDTO, 0, len(order.Lines)),
		}
		for _, line := range order.Lines {
			dto.Lines = append(dto.Lines, OrderLineDTO{
				ProductName:  line.ProductName,
				ProductImage: line.ProductImage,
				Quantity:     line.Quantity,
				UnitPrice:    line.UnitPrice,
				LineTotal:    line.LineTotal,
			})
		}
		out = append(out, dto)
	}

	respondJSON(w, http.StatusOK, out)
}

// Products lists the catalog for the storefront.
func (h *OrderHandler) Products(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.carts.Products(ctx)
	if err != nil {
		h.log.Error("list products failed", zap.Error(err))
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, products)
}
