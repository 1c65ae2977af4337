package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/user"
)

type userRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, user.Schema, nil)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.Users.Create(r.Context(), user.CreateRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     auth.Role(req.Role),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type userUpdateRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=100"`
	Email *string `json:"email" validate:"omitempty,email"`
	Role  *string `json:"role" validate:"omitempty,oneof=user admin"`
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req userUpdateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	upd := user.UpdateRequest{Name: req.Name, Email: req.Email}
	if req.Role != nil {
		role := auth.Role(*req.Role)
		upd.Role = &role
	}
	u, err := h.svc.Users.Update(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"max=72"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
}

// changePassword lets users change their own password after confirming the
// current one. Admins may reset anyone else's without it.
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := caller(r)
	self := p.Subject == id
	if !self && !p.IsAdmin() {
		writeError(w, r, auth.ErrForbidden)
		return
	}
	var req passwordRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err := h.svc.Users.ChangePassword(r.Context(), id, user.PasswordChange{
		Current:       req.CurrentPassword,
		Password:      req.Password,
		VerifyCurrent: self,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type couponRequest struct {
	Code         string          `json:"code" validate:"required,max=64"`
	DiscountType string          `json:"discountType" validate:"required,oneof=percentage fixed"`
	Value        decimal.Decimal `json:"value"`
	Description  string          `json:"description" validate:"max=500"`
	ValidFrom    *time.Time      `json:"validFrom"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, coupon.Schema, nil)
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.svc.Coupons.Create(r.Context(), coupon.CreateRequest{
		Code:         req.Code,
		DiscountType: coupon.DiscountType(req.DiscountType),
		Value:        req.Value,
		Description:  req.Description,
		ValidFrom:    req.ValidFrom,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Coupons.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type couponUpdateRequest struct {
	DiscountType string          `json:"discountType" validate:"required,oneof=percentage fixed"`
	Value        decimal.Decimal `json:"value"`
	Description  string          `json:"description" validate:"max=500"`
	ValidFrom    *time.Time      `json:"validFrom"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponUpdateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.svc.Coupons.Update(r.Context(), chi.URLParam(r, "code"), coupon.UpdateRequest{
		DiscountType: coupon.DiscountType(req.DiscountType),
		Value:        req.Value,
		Description:  req.Description,
		ValidFrom:    req.ValidFrom,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Coupons.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
