package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/query"
)

type categoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (req categoryRequest) input() category.Input {
	return category.Input{Name: req.Name}
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, category.Schema, nil)
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Categories.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) getCategoryBySlug(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Categories.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.svc.Categories.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.svc.Categories.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Categories.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listCategorySubcategories answers 404 for an unknown category instead of
// an empty page.
func (h *Handler) listCategorySubcategories(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.Categories.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.list(w, r, category.SubcategorySchema, func(b query.Builder) query.Builder {
		return b.Where("categoryId", query.OpEq, id)
	})
}

func (h *Handler) createSubcategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sc, err := h.svc.Categories.CreateSubcategory(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (h *Handler) listSubcategories(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, category.SubcategorySchema, nil)
}

func (h *Handler) getSubcategory(w http.ResponseWriter, r *http.Request) {
	sc, err := h.svc.Categories.GetSubcategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *Handler) getSubcategoryBySlug(w http.ResponseWriter, r *http.Request) {
	sc, err := h.svc.Categories.GetSubcategoryBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *Handler) updateSubcategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sc, err := h.svc.Categories.UpdateSubcategory(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *Handler) deleteSubcategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Categories.DeleteSubcategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
