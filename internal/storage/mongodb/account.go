package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/domain/user"
)

var (
	_ user.Repository   = (*UserRepository)(nil)
	_ review.Repository = (*ReviewRepository)(nil)
	_ auth.Repository   = (*APIKeyRepository)(nil)
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	Role         string    `bson:"role"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d userDoc) user() user.User {
	return user.User{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		Role:         auth.Role(d.Role),
		PasswordHash: d.PasswordHash,
		CreatedAt:    utc(d.CreatedAt),
		UpdatedAt:    utc(d.UpdatedAt),
	}
}

// UserRepository implements user.Repository backed by MongoDB.
type UserRepository struct {
	coll *mongo.Collection
}

// Users returns the user repository.
func (d *DB) Users() *UserRepository { return &UserRepository{coll: d.coll(colUsers)} }

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.coll.InsertOne(ctx, userDoc{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         string(u.Role),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.ErrEmailTaken
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user %q", id)
	}
	u := doc.user()
	return &u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: u.ID}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "name", Value: u.Name},
		{Key: "email", Value: u.Email},
		{Key: "role", Value: string(u.Role)},
		{Key: "passwordHash", Value: u.PasswordHash},
		{Key: "updatedAt", Value: u.UpdatedAt},
	}}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.ErrEmailTaken
		}
		return errors.Wrapf(err, "update user %q", u.ID)
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return errors.Wrapf(err, "delete user %q", id)
	}
	if res.DeletedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

type reviewDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	ProductID string    `bson:"productId"`
	Rating    int       `bson:"rating"`
	Comment   string    `bson:"comment"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (d reviewDoc) review() review.Review {
	return review.Review{
		ID:        d.ID,
		UserID:    d.UserID,
		ProductID: d.ProductID,
		Rating:    d.Rating,
		Comment:   d.Comment,
		CreatedAt: utc(d.CreatedAt),
	}
}

// ReviewRepository implements review.Repository backed by MongoDB. Product
// existence is checked by the service; the collection has no foreign keys.
type ReviewRepository struct {
	coll *mongo.Collection
}

// Reviews returns the review repository.
func (d *DB) Reviews() *ReviewRepository { return &ReviewRepository{coll: d.coll(colReviews)} }

func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	_, err := r.coll.InsertOne(ctx, reviewDoc{
		ID:        rv.ID,
		UserID:    rv.UserID,
		ProductID: rv.ProductID,
		Rating:    rv.Rating,
		Comment:   rv.Comment,
		CreatedAt: rv.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return review.ErrAlreadyReviewed
		}
		return errors.Wrap(err, "insert review")
	}
	return nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*review.Review, error) {
	var doc reviewDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, review.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get review %q", id)
	}
	rv := doc.review()
	return &rv, nil
}

func (r *ReviewRepository) Update(ctx context.Context, rv *review.Review) error {
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: rv.ID}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "rating", Value: rv.Rating},
		{Key: "comment", Value: rv.Comment},
	}}})
	if err != nil {
		return errors.Wrapf(err, "update review %q", rv.ID)
	}
	if res.MatchedCount == 0 {
		return review.ErrNotFound
	}
	return nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return errors.Wrapf(err, "delete review %q", id)
	}
	if res.DeletedCount == 0 {
		return review.ErrNotFound
	}
	return nil
}

type apiKeyDoc struct {
	ID      string   `bson:"_id"`
	KeyHash string   `bson:"keyHash"`
	Name    string   `bson:"name"`
	UserID  string   `bson:"userId"`
	Scopes  []string `bson:"scopes"`
	Active  bool     `bson:"active"`
}

// APIKeyRepository provides API key lookups backed by MongoDB.
type APIKeyRepository struct {
	coll *mongo.Collection
}

// APIKeys returns the API key repository.
func (d *DB) APIKeys() *APIKeyRepository { return &APIKeyRepository{coll: d.coll(colAPIKeys)} }

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var doc apiKeyDoc
	err := r.coll.FindOne(ctx, bson.D{{Key: "keyHash", Value: hash}, {Key: "active", Value: true}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrAPIKeyNotFound
		}
		return nil, errors.Wrap(err, "find api key by hash")
	}
	return &auth.APIKeyInfo{
		ID:      doc.ID,
		KeyHash: doc.KeyHash,
		Name:    doc.Name,
		UserID:  doc.UserID,
		Scopes:  doc.Scopes,
	}, nil
}

// Upsert stores k, replacing a key with the same id.
func (r *APIKeyRepository) Upsert(ctx context.Context, k auth.APIKeyInfo) error {
	scopes := k.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: k.ID}}, apiKeyDoc{
		ID:      k.ID,
		KeyHash: k.KeyHash,
		Name:    k.Name,
		UserID:  k.UserID,
		Scopes:  scopes,
		Active:  true,
	}, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(err, "upsert api key %q", k.ID)
	}
	return nil
}
