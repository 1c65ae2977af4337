// Package handler exposes the storefront over REST.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/query"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Finders builds query finders for a schema. Every storage backend
// implements it.
type Finders interface {
	Finder(schema *query.Schema) (query.Finder, error)
}

// Services are the domain services behind the routes.
type Services struct {
	Products   *product.Service
	Categories *category.Service
	Users      *user.Service
	Coupons    *coupon.Service
	Reviews    *review.Service
	Carts      *cart.Service
	Orders     *order.Service
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// DefaultLimit is the page size of list endpoints without ?limit.
	DefaultLimit int
	// Idempotency guards checkout. A nil Store disables the guard.
	Idempotency httpmiddleware.IdempotencyConfig
	// Health serves /livez and /readyz when set.
	Health *health.Health
}

// Handler serves the REST API.
type Handler struct {
	svc      Services
	finders  Finders
	security *Security
	cfg      Config
}

// New constructs a Handler with the required domain dependencies.
func New(cfg Config, svc Services, finders Finders, security *Security) *Handler {
	return &Handler{
		svc:      svc,
		finders:  finders,
		security: security,
		cfg:      cfg,
	}
}

// Routes returns the router of the whole API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.New(apperr.KindNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
			StatusCode: http.StatusMethodNotAllowed,
			Message:    "method not allowed",
		})
	})

	if hc := h.cfg.Health; hc != nil {
		r.Get("/livez", hc.LiveEndpoint)
		r.Get("/readyz", hc.ReadyEndpoint)
	}

	admin := RequireRole(auth.RoleAdmin)
	customer := RequireRole(auth.RoleUser)
	member := RequireRole(auth.RoleUser, auth.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.security.Authenticate)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Get("/slug/{slug}", h.getProductBySlug)
			r.Get("/category/{id}", h.listProductsBy("categoryId"))
			r.Get("/subcategory/{id}", h.listProductsBy("subcategoryId"))
			r.Get("/{id}", h.getProduct)
			r.With(admin).Post("/", h.createProduct)
			r.With(admin).Put("/{id}", h.updateProduct)
			r.With(admin).Delete("/{id}", h.deleteProduct)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.listCategories)
			r.Get("/slug/{slug}", h.getCategoryBySlug)
			r.Get("/{id}", h.getCategory)
			r.Get("/{id}/subcategories", h.listCategorySubcategories)
			r.With(admin).Post("/", h.createCategory)
			r.With(admin).Put("/{id}", h.updateCategory)
			r.With(admin).Delete("/{id}", h.deleteCategory)
			r.With(admin).Post("/{id}/subcategories", h.createSubcategory)
		})

		r.Route("/subcategories", func(r chi.Router) {
			r.Get("/", h.listSubcategories)
			r.Get("/slug/{slug}", h.getSubcategoryBySlug)
			r.Get("/{id}", h.getSubcategory)
			r.With(admin).Put("/{id}", h.updateSubcategory)
			r.With(admin).Delete("/{id}", h.deleteSubcategory)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(member).Patch("/{id}/password", h.changePassword)
			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Get("/", h.listUsers)
				r.Post("/", h.createUser)
				r.Get("/{id}", h.getUser)
				r.Put("/{id}", h.updateUser)
				r.Delete("/{id}", h.deleteUser)
			})
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Use(admin)
			r.Get("/", h.listCoupons)
			r.Post("/", h.createCoupon)
			r.Get("/{code}", h.getCoupon)
			r.Put("/{code}", h.updateCoupon)
			r.Delete("/{code}", h.deleteCoupon)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", h.listReviews)
			r.Get("/{id}", h.getReview)
			r.With(member).Post("/", h.createReview)
			r.With(member).Put("/{id}", h.updateReview)
			r.With(member).Delete("/{id}", h.deleteReview)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(customer)
			r.Get("/", h.getCart)
			r.Post("/", h.addCartItem)
			r.Post("/coupon", h.applyCoupon)
			r.Put("/{itemId}", h.updateCartItem)
			r.Delete("/{itemId}", h.removeCartItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(customer).Get("/me", h.listMyOrders)
			r.With(admin).Get("/", h.listOrders)
			r.With(member).Get("/{id}", h.getOrder)
			r.With(admin).Patch("/{id}", h.updateOrder)
			r.With(customer, h.idempotent()).Post("/{cartId}", h.checkout)
		})
	})
	return r
}

// idempotent scopes checkout replays to the caller so two users can never
// collide on a key.
func (h *Handler) idempotent() func(http.Handler) http.Handler {
	cfg := h.cfg.Idempotency
	cfg.Scope = func(r *http.Request) string {
		p, _ := auth.PrincipalFrom(r.Context())
		return p.Subject + "|" + r.Method + "|" + r.URL.Path
	}
	return httpmiddleware.Idempotency(cfg)
}
