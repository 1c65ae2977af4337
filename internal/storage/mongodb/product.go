package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/storefront/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

type productDoc struct {
	ID                 string                `bson:"_id"`
	Title              string                `bson:"title"`
	Description        string                `bson:"description"`
	Price              primitive.Decimal128  `bson:"price"`
	PriceAfterDiscount *primitive.Decimal128 `bson:"priceAfterDiscount"`
	Quantity           int                   `bson:"quantity"`
	Sold               int                   `bson:"sold"`
	Colors             []string              `bson:"colors"`
	Slug               string                `bson:"slug"`
	CategoryID         *string               `bson:"categoryId,omitempty"`
	SubcategoryID      *string               `bson:"subcategoryId,omitempty"`
	CreatedAt          time.Time             `bson:"createdAt"`
	UpdatedAt          time.Time             `bson:"updatedAt"`
}

func newProductDoc(p *product.Product) productDoc {
	colors := p.Colors
	if colors == nil {
		colors = []string{}
	}
	return productDoc{
		ID:                 p.ID,
		Title:              p.Title,
		Description:        p.Description,
		Price:              toDecimal128(p.Price),
		PriceAfterDiscount: toNullDecimal128(p.PriceAfterDiscount),
		Quantity:           p.Quantity,
		Sold:               p.Sold,
		Colors:             colors,
		Slug:               p.Slug,
		CategoryID:         ref(p.CategoryID),
		SubcategoryID:      ref(p.SubcategoryID),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func (d productDoc) product() product.Product {
	return product.Product{
		ID:                 d.ID,
		Title:              d.Title,
		Description:        d.Description,
		Price:              fromDecimal128(d.Price),
		PriceAfterDiscount: fromNullDecimal128(d.PriceAfterDiscount),
		Quantity:           d.Quantity,
		Sold:               d.Sold,
		Colors:             d.Colors,
		Slug:               d.Slug,
		CategoryID:         deref(d.CategoryID),
		SubcategoryID:      deref(d.SubcategoryID),
		CreatedAt:          utc(d.CreatedAt),
		UpdatedAt:          utc(d.UpdatedAt),
	}
}

// ProductRepository implements product.Repository backed by MongoDB.
type ProductRepository struct {
	coll *mongo.Collection
	db   *DB
}

// Products returns the product repository.
func (d *DB) Products() *ProductRepository {
	return &ProductRepository{coll: d.coll(colProducts), db: d}
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var doc productDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	p := doc.product()
	return &p, nil
}

// GetBySlug returns the oldest product with slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	var doc productDoc
	err := r.coll.FindOne(ctx, bson.D{{Key: "slug", Value: slug}},
		options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product by slug %q", slug)
	}
	p := doc.product()
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	cur, err := r.coll.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	out := make([]product.Product, len(docs))
	for i, d := range docs {
		out[i] = d.product()
	}
	return out, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	if _, err := r.coll.InsertOne(ctx, newProductDoc(p)); err != nil {
		return errors.Wrapf(err, "create product %q", p.ID)
	}
	return nil
}

// Update replaces the editable fields and reloads the stored counters.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	doc := newProductDoc(p)
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "title", Value: doc.Title},
		{Key: "description", Value: doc.Description},
		{Key: "price", Value: doc.Price},
		{Key: "priceAfterDiscount", Value: doc.PriceAfterDiscount},
		{Key: "quantity", Value: doc.Quantity},
		{Key: "colors", Value: doc.Colors},
		{Key: "slug", Value: doc.Slug},
		{Key: "categoryId", Value: doc.CategoryID},
		{Key: "subcategoryId", Value: doc.SubcategoryID},
		{Key: "updatedAt", Value: doc.UpdatedAt},
	}}}

	var updated productDoc
	err := r.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: p.ID}}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return product.ErrNotFound
		}
		return errors.Wrapf(err, "update product %q", p.ID)
	}
	*p = updated.product()
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	if res.DeletedCount == 0 {
		return product.ErrNotFound
	}
	return nil
}

// DecrementStock sends every guarded update in one bulk write inside a
// transaction. The bulk result does not say which guard failed, so the
// error carries no product ids.
func (r *ProductRepository) DecrementStock(ctx context.Context, changes []product.StockChange) error {
	if len(changes) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, len(changes))
	for i, c := range changes {
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.D{
				{Key: "_id", Value: c.ProductID},
				{Key: "quantity", Value: bson.D{{Key: "$gte", Value: c.Quantity}}},
			}).
			SetUpdate(bson.D{
				{Key: "$inc", Value: bson.D{{Key: "quantity", Value: -c.Quantity}, {Key: "sold", Value: c.Quantity}}},
				{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}},
			})
	}

	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		res, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
		if err != nil {
			return errors.Wrap(err, "decrement stock")
		}
		if res.MatchedCount != int64(len(changes)) {
			return &product.InsufficientStockError{}
		}
		return nil
	})
}
