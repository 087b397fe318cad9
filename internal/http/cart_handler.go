package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Christophe-THEVENET/greengoodies/domain"
	"github.com/Christophe-THEVENET/greengoodies/internal/service"
)

type CartHandler struct {
	carts   *service.CartService
	merge   *service.LoginMergeHandler
	timeout time.Duration
	log     *zap.Logger
}

func NewCartHandler(carts *service.CartService, merge *service.LoginMergeHandler, timeout time.Duration, log *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		merge:   merge,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int32 `json:"quantity"`
}

type CartLineDTO struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type CartResponseDTO struct {
	Items       []CartLineDTO   `json:"items"`
	ItemCount   int32           `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OrderID     *string         `json:"order_id,omitempty"`
}

type ValidateResponseDTO struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Redirect    string `json:"redirect"`
}

func cartToDTO(snap *domain.CartSnapshot) CartResponseDTO {
	lines := snap.Lines()
	items := make([]CartLineDTO, 0, len(lines))
	for _, line := range lines {
		items = append(items, CartLineDTO{
			ProductID: line.ProductID,
			Name:      line.Name,
			Image:     line.Image,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}

	dto := CartResponseDTO{
		Items:       items,
		ItemCount:   snap.ItemCount(),
		TotalAmount: snap.TotalAmount,
	}
	if snap.OrderID != nil {
		id := snap.OrderID.String()
		dto.OrderID = &id
	}
	return dto
}

func (h *CartHandler) requestCart(r *http.Request) (*service.Cart, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	return h.carts.Cart(getSessionID(r.Context()), getUserID(r.Context())), ctx, cancel
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, ctx, cancel := h.requestCart(r)
	defer cancel()

	snap, err := cart.Snapshot(ctx)
	if err != nil {
		h.log.Error("get cart failed", zap.Error(err))
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cartToDTO(snap))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	// An omitted quantity means one.
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	cart, ctx, cancel := h.requestCart(r)
	defer cancel()

	snap, err := cart.AddItem(ctx, req.ProductID, req.Quantity)
	if err != nil {
		h.log.Error("add item failed", zap.Int64("product_id", req.ProductID), zap.Error(err))
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, cartToDTO(snap))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	cart, ctx, cancel := h.requestCart(r)
	defer cancel()

	applied, err := cart.UpdateQuantity(ctx, productID, req.Quantity)
	if err != nil {
		h.log.Error("update quantity failed", zap.Int64("product_id", productID), zap.Error(err))
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int32{"quantity": applied})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	cart, ctx, cancel := h.requestCart(r)
	defer cancel()

	if err := cart.RemoveItem(ctx, productID); err != nil {
		h.log.Error("remove item failed", zap.Int64("product_id", productID), zap.Error(err))
		handleServiceError(w, err)
		return
	}

	snap, err := cart.Snapshot(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartToDTO(snap))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, ctx, cancel := h.requestCart(r)
	defer cancel()

	if err := cart.Clear(ctx); err != nil {
		h.log.Error("clear cart failed", zap.Error(err))
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if getUserID(r.Context()) == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	cart, ctx, cancel := h.requestCart(r)
	defer cancel()

	validated, err := cart.Validate(ctx)
	if err != nil {
		h.log.Error("validate cart failed", zap.Error(err))
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ValidateResponseDTO{
		OrderID:     validated.ID.String(),
		OrderNumber: validated.Number,
		Redirect:    "/account",
	})
}

// LoginMerge is called by the authentication flow right after a successful
// login. The merge is best-effort: a failure is reported, not fatal to the
// login itself.
func (h *CartHandler) LoginMerge(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.merge.OnLogin(ctx, getSessionID(r.Context()), userID); err != nil {
		h.log.Error("login merge failed", zap.Int64("user_id", userID), zap.Error(err))
		handleServiceError(w, err)
		return
	}

	cart, ctx2, cancel2 := h.requestCart(r)
	defer cancel2()
	snap, err := cart.Snapshot(ctx2)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cartToDTO(snap))
}
