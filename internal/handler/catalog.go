package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/query"
)

type productRequest struct {
	Title              string              `json:"title" validate:"required,max=200"`
	Description        string              `json:"description" validate:"max=5000"`
	Price              decimal.Decimal     `json:"price"`
	PriceAfterDiscount decimal.NullDecimal `json:"priceAfterDiscount"`
	Quantity           int                 `json:"quantity" validate:"min=0"`
	Colors             []string            `json:"colors" validate:"dive,required"`
	CategoryID         string              `json:"categoryId"`
	SubcategoryID      string              `json:"subcategoryId"`
}

func (req productRequest) input() product.Input {
	return product.Input{
		Title:              req.Title,
		Description:        req.Description,
		Price:              req.Price,
		PriceAfterDiscount: req.PriceAfterDiscount,
		Quantity:           req.Quantity,
		Colors:             req.Colors,
		CategoryID:         req.CategoryID,
		SubcategoryID:      req.SubcategoryID,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, product.Schema, nil)
}

// listProductsBy lists the products whose field equals the id path
// parameter.
func (h *Handler) listProductsBy(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		h.list(w, r, product.Schema, func(b query.Builder) query.Builder {
			return b.Where(field, query.OpEq, id)
		})
	}
}

func (h *Handler) getProductBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Products.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.Products.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.Products.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reviewRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Comment   string `json:"comment" validate:"max=2000"`
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, review.Schema, nil)
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.svc.Reviews.Create(r.Context(), caller(r).Subject, review.CreateRequest{
		ProductID: req.ProductID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

func (h *Handler) getReview(w http.ResponseWriter, r *http.Request) {
	rv, err := h.svc.Reviews.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

type reviewUpdateRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

func (h *Handler) updateReview(w http.ResponseWriter, r *http.Request) {
	var req reviewUpdateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.svc.Reviews.Update(r.Context(), caller(r).Subject, chi.URLParam(r, "id"), review.UpdateRequest{
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

// deleteReview lets the author or an admin remove a review.
func (h *Handler) deleteReview(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	if err := h.svc.Reviews.Delete(r.Context(), p.Subject, chi.URLParam(r, "id"), p.IsAdmin()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
