package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/xenking/storefront/internal/domain/category"
)

var (
	_ category.Repository            = (*CategoryRepository)(nil)
	_ category.SubcategoryRepository = (*SubcategoryRepository)(nil)
)

type categoryDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Slug      string    `bson:"slug"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d categoryDoc) category() category.Category {
	return category.Category{
		ID:        d.ID,
		Name:      d.Name,
		Slug:      d.Slug,
		CreatedAt: utc(d.CreatedAt),
		UpdatedAt: utc(d.UpdatedAt),
	}
}

type subcategoryDoc struct {
	ID         string    `bson:"_id"`
	Name       string    `bson:"name"`
	Slug       string    `bson:"slug"`
	CategoryID string    `bson:"categoryId"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

func (d subcategoryDoc) subcategory() category.Subcategory {
	return category.Subcategory{
		ID:         d.ID,
		Name:       d.Name,
		Slug:       d.Slug,
		CategoryID: d.CategoryID,
		CreatedAt:  utc(d.CreatedAt),
		UpdatedAt:  utc(d.UpdatedAt),
	}
}

// referenced reports whether any document of coll has field set to id.
func referenced(ctx context.Context, coll *mongo.Collection, field, id string) (bool, error) {
	n, err := coll.CountDocuments(ctx, bson.D{{Key: field, Value: id}})
	if err != nil {
		return false, errors.Wrapf(err, "count %s references", coll.Name())
	}
	return n > 0, nil
}

// CategoryRepository implements category.Repository backed by MongoDB.
// MongoDB has no foreign keys, so Delete counts references first and a
// concurrent insert may still slip in between.
type CategoryRepository struct {
	coll *mongo.Collection
	db   *DB
}

// Categories returns the category repository.
func (d *DB) Categories() *CategoryRepository {
	return &CategoryRepository{coll: d.coll(colCategories), db: d}
}

func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	_, err := r.coll.InsertOne(ctx, categoryDoc{
		ID:        c.ID,
		Name:      c.Name,
		Slug:      c.Slug,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return category.ErrSlugTaken
		}
		return errors.Wrapf(err, "create category %q", c.ID)
	}
	return nil
}

func (r *CategoryRepository) get(ctx context.Context, filter bson.D) (*category.Category, error) {
	var doc categoryDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, category.ErrNotFound
		}
		return nil, errors.Wrap(err, "get category")
	}
	c := doc.category()
	return &c, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*category.Category, error) {
	return r.get(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *CategoryRepository) GetBySlug(ctx context.Context, slug string) (*category.Category, error) {
	return r.get(ctx, bson.D{{Key: "slug", Value: slug}})
}

func (r *CategoryRepository) Update(ctx context.Context, c *category.Category) error {
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: c.ID}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "name", Value: c.Name},
		{Key: "slug", Value: c.Slug},
		{Key: "updatedAt", Value: c.UpdatedAt},
	}}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return category.ErrSlugTaken
		}
		return errors.Wrapf(err, "update category %q", c.ID)
	}
	if res.MatchedCount == 0 {
		return category.ErrNotFound
	}
	return nil
}

func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	for _, col := range []string{colSubcategories, colProducts} {
		used, err := referenced(ctx, r.db.coll(col), "categoryId", id)
		if err != nil {
			return err
		}
		if used {
			return category.ErrInUse
		}
	}
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return errors.Wrapf(err, "delete category %q", id)
	}
	if res.DeletedCount == 0 {
		return category.ErrNotFound
	}
	return nil
}

// SubcategoryRepository implements category.SubcategoryRepository backed by
// MongoDB.
type SubcategoryRepository struct {
	coll *mongo.Collection
	db   *DB
}

// Subcategories returns the subcategory repository.
func (d *DB) Subcategories() *SubcategoryRepository {
	return &SubcategoryRepository{coll: d.coll(colSubcategories), db: d}
}

// Create stores s under an existing category.
func (r *SubcategoryRepository) Create(ctx context.Context, s *category.Subcategory) error {
	n, err := r.db.coll(colCategories).CountDocuments(ctx, bson.D{{Key: "_id", Value: s.CategoryID}})
	if err != nil {
		return errors.Wrapf(err, "check category %q", s.CategoryID)
	}
	if n == 0 {
		return category.ErrNotFound
	}
	_, err = r.coll.InsertOne(ctx, subcategoryDoc{
		ID:         s.ID,
		Name:       s.Name,
		Slug:       s.Slug,
		CategoryID: s.CategoryID,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return category.ErrSlugTaken
		}
		return errors.Wrapf(err, "create subcategory %q", s.ID)
	}
	return nil
}

func (r *SubcategoryRepository) get(ctx context.Context, filter bson.D) (*category.Subcategory, error) {
	var doc subcategoryDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, category.ErrSubcategoryNotFound
		}
		return nil, errors.Wrap(err, "get subcategory")
	}
	s := doc.subcategory()
	return &s, nil
}

func (r *SubcategoryRepository) GetByID(ctx context.Context, id string) (*category.Subcategory, error) {
	return r.get(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *SubcategoryRepository) GetBySlug(ctx context.Context, slug string) (*category.Subcategory, error) {
	return r.get(ctx, bson.D{{Key: "slug", Value: slug}})
}

func (r *SubcategoryRepository) Update(ctx context.Context, s *category.Subcategory) error {
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: s.ID}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "name", Value: s.Name},
		{Key: "slug", Value: s.Slug},
		{Key: "updatedAt", Value: s.UpdatedAt},
	}}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return category.ErrSlugTaken
		}
		return errors.Wrapf(err, "update subcategory %q", s.ID)
	}
	if res.MatchedCount == 0 {
		return category.ErrSubcategoryNotFound
	}
	return nil
}

func (r *SubcategoryRepository) Delete(ctx context.Context, id string) error {
	used, err := referenced(ctx, r.db.coll(colProducts), "subcategoryId", id)
	if err != nil {
		return err
	}
	if used {
		return category.ErrInUse
	}
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return errors.Wrapf(err, "delete subcategory %q", id)
	}
	if res.DeletedCount == 0 {
		return category.ErrSubcategoryNotFound
	}
	return nil
}
