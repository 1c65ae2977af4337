package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/mongodb"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
)

// backend is the selected storage driver seen through the domain
// repository interfaces.
type backend struct {
	name          string
	products      product.Repository
	categories    category.Repository
	subcategories category.SubcategoryRepository
	carts         cart.Repository
	coupons       coupon.Repository
	orders        order.Repository
	users         user.Repository
	reviews       review.Repository
	apikeys       auth.Repository
	tx            order.Transactor
	finders       handler.Finders
	pinger        health.Pinger
	close         func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg StorageConfig) (*backend, error) {
	switch cfg.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		db := postgres.New(pool)
		return &backend{
			name:          DriverPostgres,
			products:      db.Products(),
			categories:    db.Categories(),
			subcategories: db.Subcategories(),
			carts:         db.Carts(),
			coupons:       db.Coupons(),
			orders:        db.Orders(),
			users:         db.Users(),
			reviews:       db.Reviews(),
			apikeys:       db.APIKeys(),
			tx:            db,
			finders:       db,
			pinger:        db,
			close:         pool.Close,
		}, nil

	case DriverMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, errors.Wrap(err, "connect mongo")
		}
		db := mongodb.New(client, cfg.MongoDatabase)
		if err := db.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, errors.Wrap(err, "ensure indexes")
		}
		return &backend{
			name:          DriverMongo,
			products:      db.Products(),
			categories:    db.Categories(),
			subcategories: db.Subcategories(),
			carts:         db.Carts(),
			coupons:       db.Coupons(),
			orders:        db.Orders(),
			users:         db.Users(),
			reviews:       db.Reviews(),
			apikeys:       db.APIKeys(),
			tx:            db,
			finders:       db,
			pinger:        db,
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					lg.Warn("Mongo disconnect", zap.Error(err))
				}
			},
		}, nil

	case DriverMemory:
		lg.Warn("Using in-memory storage, data is lost on restart")
		s := memory.New()
		return &backend{
			name:          DriverMemory,
			products:      s.Products(),
			categories:    s.Categories(),
			subcategories: s.Subcategories(),
			carts:         s.Carts(),
			coupons:       s.Coupons(),
			orders:        s.Orders(),
			users:         s.Users(),
			reviews:       s.Reviews(),
			apikeys:       s.APIKeys(),
			tx:            s,
			finders:       s,
			pinger:        s,
			close:         func() {},
		}, nil
	}
	return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
}
