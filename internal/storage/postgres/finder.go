package postgres

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

// Finder returns the finder for the table described by schema.
func (d *DB) Finder(schema *query.Schema) (query.Finder, error) {
	switch schema.Collection {
	case category.Schema.Collection:
		return tableFinder[category.Category]{
			db: d, table: "categories", columns: categoryColumns,
			scan: scanCategory, doc: (*category.Category).Document,
		}, nil
	case category.SubcategorySchema.Collection:
		return tableFinder[category.Subcategory]{
			db: d, table: "subcategories", columns: subcategoryColumns,
			scan: scanSubcategory, doc: (*category.Subcategory).Document,
		}, nil
	case product.Schema.Collection:
		return tableFinder[product.Product]{
			db: d, table: "products", columns: productColumns,
			scan: scanProduct, doc: (*product.Product).Document,
		}, nil
	case coupon.Schema.Collection:
		return tableFinder[coupon.Coupon]{
			db: d, table: "coupons", columns: couponColumns,
			scan: scanCoupon, doc: (*coupon.Coupon).Document,
		}, nil
	case order.Schema.Collection:
		return tableFinder[order.Order]{
			db: d, table: "orders", columns: orderColumns,
			scan: scanOrder, doc: (*order.Order).Document,
		}, nil
	case user.Schema.Collection:
		return tableFinder[user.User]{
			db: d, table: "users", columns: userColumns,
			scan: scanUser, doc: (*user.User).Document,
		}, nil
	case review.Schema.Collection:
		return tableFinder[review.Review]{
			db: d, table: "reviews", columns: reviewColumns,
			scan: scanReview, doc: (*review.Review).Document,
		}, nil
	default:
		return nil, errors.Errorf("unknown collection %q", schema.Collection)
	}
}
