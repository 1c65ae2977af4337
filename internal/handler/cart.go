package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/cart"
)

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Color     string `json:"color" validate:"max=50"`
}

type updateItemRequest struct {
	// Zero removes the item.
	Quantity int `json:"quantity" validate:"min=0"`
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Carts.Get(r.Context(), caller(r).Subject)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.svc.Carts.AddItem(r.Context(), caller(r).Subject, cart.AddItemRequest{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Color:     req.Color,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.svc.Carts.UpdateQuantity(r.Context(), caller(r).Subject, chi.URLParam(r, "itemId"), req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Carts.RemoveItem(r.Context(), caller(r).Subject, chi.URLParam(r, "itemId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.svc.Carts.ApplyCoupon(r.Context(), caller(r).Subject, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
