package mongodb

import (
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/query"
)

// Finder returns the finder for the collection described by schema.
func (d *DB) Finder(schema *query.Schema) (query.Finder, error) {
	switch schema.Collection {
	case product.Schema.Collection:
		return collectionFinder[productDoc, product.Product]{
			coll: d.coll(colProducts), decode: productDoc.product, doc: (*product.Product).Document,
		}, nil
	case category.Schema.Collection:
		return collectionFinder[categoryDoc, category.Category]{
			coll: d.coll(colCategories), decode: categoryDoc.category, doc: (*category.Category).Document,
		}, nil
	case category.SubcategorySchema.Collection:
		return collectionFinder[subcategoryDoc, category.Subcategory]{
			coll: d.coll(colSubcategories), decode: subcategoryDoc.subcategory, doc: (*category.Subcategory).Document,
		}, nil
	case coupon.Schema.Collection:
		return collectionFinder[couponDoc, coupon.Coupon]{
			coll: d.coll(colCoupons), decode: couponDoc.coupon, doc: (*coupon.Coupon).Document,
		}, nil
	case order.Schema.Collection:
		return collectionFinder[orderDoc, order.Order]{
			coll: d.coll(colOrders), decode: orderDoc.order, doc: (*order.Order).Document,
		}, nil
	case user.Schema.Collection:
		return collectionFinder[userDoc, user.User]{
			coll: d.coll(colUsers), decode: userDoc.user, doc: (*user.User).Document,
		}, nil
	case review.Schema.Collection:
		return collectionFinder[reviewDoc, review.Review]{
			coll: d.coll(colReviews), decode: reviewDoc.review, doc: (*review.Review).Document,
		}, nil
	default:
		return nil, errors.Errorf("unknown collection %q", schema.Collection)
	}
}
