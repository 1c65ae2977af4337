package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/query"
)

type addressPayload struct {
	Street string `json:"street" validate:"required,max=200"`
	City   string `json:"city" validate:"required,max=100"`
	Phone  string `json:"phone" validate:"required,max=32"`
}

type checkoutRequest struct {
	ShippingAddress addressPayload `json:"shippingAddress"`
}

type statusRequest struct {
	IsPaid      *bool `json:"isPaid"`
	IsDelivered *bool `json:"isDelivered"`
}

// checkout converts the caller's cart into a cash order.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.svc.Orders.Checkout(r.Context(), order.CheckoutRequest{
		UserID: caller(r).Subject,
		CartID: chi.URLParam(r, "cartId"),
		ShippingAddress: order.Address{
			Street: req.ShippingAddress.Street,
			City:   req.ShippingAddress.City,
			Phone:  req.ShippingAddress.Phone,
		},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// listMyOrders pins userId to the caller whatever the query string says.
func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	sub := caller(r).Subject
	h.list(w, r, order.Schema, func(b query.Builder) query.Builder {
		return b.Where("userId", query.OpEq, sub)
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, order.Schema, nil)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	var (
		p   = caller(r)
		id  = chi.URLParam(r, "id")
		o   *order.Order
		err error
	)
	if p.IsAdmin() {
		o, err = h.svc.Orders.Get(r.Context(), id)
	} else {
		o, err = h.svc.Orders.GetOwned(r.Context(), id, p.Subject)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.svc.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), order.StatusUpdate{
		IsPaid:      req.IsPaid,
		IsDelivered: req.IsDelivered,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
