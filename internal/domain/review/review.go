package review

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/query"
)

var (
	// ErrAlreadyReviewed is returned when a user reviews the same product twice.
	ErrAlreadyReviewed = apperr.New(apperr.KindConflict, "product already reviewed by this user")
	// ErrNotFound is returned when a requested review does not exist.
	ErrNotFound = apperr.New(apperr.KindNotFound, "review not found")
	// ErrNotAuthor is returned when a user changes someone else's review.
	ErrNotAuthor = apperr.New(apperr.KindForbidden, "review belongs to another user")
)

// Review is a user's rating of a product.
type Review struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *Review) Document() query.Document {
	return query.Document{
		"id":        r.ID,
		"userId":    r.UserID,
		"productId": r.ProductID,
		"rating":    r.Rating,
		"comment":   r.Comment,
		"createdAt": r.CreatedAt,
	}
}

var Schema = &query.Schema{
	Collection: "reviews",
	Fields: map[string]query.Field{
		"id":        {Type: query.String},
		"userId":    {Type: query.String, Column: "user_id"},
		"productId": {Type: query.String, Column: "product_id"},
		"rating":    {Type: query.Int},
		"comment":   {Type: query.String},
		"createdAt": {Type: query.Time, Column: "created_at"},
	},
	Search:      []string{"comment"},
	DefaultSort: "-createdAt",
}

type Repository interface {
	// Create stores r or returns ErrAlreadyReviewed.
	Create(ctx context.Context, r *Review) error
	GetByID(ctx context.Context, id string) (*Review, error)
	// Update stores the rating and comment of r.
	Update(ctx context.Context, r *Review) error
	Delete(ctx context.Context, id string) error
}

type CreateRequest struct {
	ProductID string
	Rating    int
	Comment   string
}

type Service struct {
	repo     Repository
	products product.Repository
	now      func() time.Time
}

func NewService(repo Repository, products product.Repository) *Service {
	return &Service{repo: repo, products: products, now: time.Now}
}

func validRating(rating int) error {
	if rating < 1 || rating > 5 {
		return apperr.New(apperr.KindValidation, "invalid review").
			WithDetails(map[string]string{"rating": "must be between 1 and 5"})
	}
	return nil
}

// Create records userID's review of an existing product.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Review, error) {
	if err := validRating(req.Rating); err != nil {
		return nil, err
	}
	if _, err := s.products.GetByID(ctx, req.ProductID); err != nil {
		return nil, errors.Wrap(err, "get product")
	}

	r := &Review{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: req.ProductID,
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, errors.Wrap(err, "create review")
	}
	return r, nil
}

// Get returns a review by id.
func (s *Service) Get(ctx context.Context, id string) (*Review, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get review")
	}
	return r, nil
}

// UpdateRequest holds the editable part of a review.
type UpdateRequest struct {
	Rating  int
	Comment string
}

// Update lets the author of review id change its rating and comment.
func (s *Service) Update(ctx context.Context, userID, id string, req UpdateRequest) (*Review, error) {
	if err := validRating(req.Rating); err != nil {
		return nil, err
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get review")
	}
	if r.UserID != userID {
		return nil, ErrNotAuthor
	}
	r.Rating = req.Rating
	r.Comment = strings.TrimSpace(req.Comment)
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, errors.Wrap(err, "update review")
	}
	return r, nil
}

// Delete removes review id. Only its author or a moderator may do so.
func (s *Service) Delete(ctx context.Context, userID, id string, moderator bool) error {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "get review")
	}
	if !moderator && r.UserID != userID {
		return ErrNotAuthor
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete review")
	}
	return nil
}
