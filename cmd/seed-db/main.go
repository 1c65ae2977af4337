package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/mongodb"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Price              decimal.Decimal     `json:"price"`
	PriceAfterDiscount decimal.NullDecimal `json:"priceAfterDiscount"`
	Quantity           int                 `json:"quantity"`
	Colors             []string            `json:"colors"`
}

type options struct {
	driver        string
	databaseURL   string
	mongoURI      string
	mongoDatabase string
	productsFile  string
	apiKey        string
	apiKeyPepper  string
	adminEmail    string
	adminPassword string
}

// apiKeyStore is implemented by the API key repository of every backend.
type apiKeyStore interface {
	Upsert(ctx context.Context, k auth.APIKeyInfo) error
}

type target struct {
	products product.Repository
	coupons  coupon.Repository
	users    user.Repository
	apikeys  apiKeyStore
	close    func()
}

func main() {
	var o options
	flag.StringVar(&o.driver, "driver", "postgres", "storage driver: postgres or mongo")
	flag.StringVar(&o.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&o.mongoURI, "mongo-uri", "", "MongoDB connection URI (or MONGODB_URI env)")
	flag.StringVar(&o.mongoDatabase, "mongo-database", "storefront", "MongoDB database name")
	flag.StringVar(&o.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&o.apiKey, "api-key", "", "admin API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&o.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_AUTH_API_KEY_PEPPER env)")
	flag.StringVar(&o.adminEmail, "admin-email", "", "create an admin user with this email")
	flag.StringVar(&o.adminPassword, "admin-password", "", "password of the seeded admin user (or STORE_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	envDefault(&o.databaseURL, "DATABASE_URL")
	envDefault(&o.mongoURI, "MONGODB_URI")
	envDefault(&o.apiKey, "STORE_SEED_API_KEY")
	envDefault(&o.apiKeyPepper, "STORE_AUTH_API_KEY_PEPPER")
	envDefault(&o.adminPassword, "STORE_SEED_ADMIN_PASSWORD")

	if o.apiKey == "" {
		slog.Error("API key is required: set --api-key or STORE_SEED_API_KEY")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, o); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func envDefault(dst *string, env string) {
	if *dst == "" {
		*dst = os.Getenv(env)
	}
}

func run(ctx context.Context, o options) error {
	t, err := open(ctx, o)
	if err != nil {
		return err
	}
	defer t.close()

	if err := seedProducts(ctx, t.products, o.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, t.coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKey(ctx, t.apikeys, o.apiKey, o.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	if o.adminEmail != "" {
		if err := seedAdmin(ctx, t.users, o.adminEmail, o.adminPassword); err != nil {
			return errors.Wrap(err, "seed admin")
		}
	}
	return nil
}

func open(ctx context.Context, o options) (*target, error) {
	switch o.driver {
	case "postgres":
		if o.databaseURL == "" {
			return nil, errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		slog.Info("connecting to postgres")
		pool, err := postgres.NewPool(ctx, o.databaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "connect to database")
		}
		slog.Info("running migrations")
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		db := postgres.New(pool)
		return &target{
			products: db.Products(),
			coupons:  db.Coupons(),
			users:    db.Users(),
			apikeys:  db.APIKeys(),
			close:    pool.Close,
		}, nil

	case "mongo":
		if o.mongoURI == "" {
			return nil, errors.New("mongo URI is required: set --mongo-uri or MONGODB_URI")
		}
		slog.Info("connecting to mongo")
		client, err := mongodb.Connect(ctx, o.mongoURI)
		if err != nil {
			return nil, errors.Wrap(err, "connect to mongo")
		}
		db := mongodb.New(client, o.mongoDatabase)
		if err := db.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, errors.Wrap(err, "ensure indexes")
		}
		return &target{
			products: db.Products(),
			coupons:  db.Coupons(),
			users:    db.Users(),
			apikeys:  db.APIKeys(),
			close:    func() { _ = client.Disconnect(context.Background()) },
		}, nil
	}
	return nil, errors.Errorf("unknown driver %q", o.driver)
}

// seedProducts keeps the ids of the file so that seeding twice updates
// instead of duplicating.
func seedProducts(ctx context.Context, repo product.Repository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	now := time.Now().UTC()
	for _, in := range products {
		p := &product.Product{
			ID:                 in.ID,
			Title:              in.Title,
			Description:        in.Description,
			Price:              in.Price,
			PriceAfterDiscount: in.PriceAfterDiscount,
			Quantity:           in.Quantity,
			Colors:             in.Colors,
			Slug:               category.Slugify(in.Title),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if p.Colors == nil {
			p.Colors = []string{}
		}

		_, err := repo.GetByID(ctx, p.ID)
		switch {
		case err == nil:
			err = repo.Update(ctx, p)
		case errors.Is(err, product.ErrNotFound):
			err = repo.Create(ctx, p)
		}
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("title", p.Title))
	}
	return nil
}

func seedCoupons(ctx context.Context, repo coupon.Repository) error {
	slog.Info("seeding coupons")

	now := time.Now().UTC()
	coupons := []coupon.Coupon{
		{
			Code:         "WELCOME10",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(10),
			Description:  "10% off your first order",
			ExpiresAt:    now.AddDate(1, 0, 0),
		},
		{
			Code:         "FIVEOFF",
			DiscountType: coupon.DiscountFixed,
			Value:        decimal.NewFromInt(5),
			Description:  "5 off any order",
			ExpiresAt:    now.AddDate(0, 3, 0),
		},
	}

	for _, c := range coupons {
		c.CreatedAt, c.UpdatedAt = now, now
		err := repo.Create(ctx, &c)
		if errors.Is(err, coupon.ErrAlreadyExists) {
			slog.Info("coupon exists", slog.String("code", c.Code))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create coupon %s", c.Code)
		}
		slog.Info("created coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}
	return nil
}

func seedAPIKey(ctx context.Context, repo apiKeyStore, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	if err := repo.Upsert(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashAPIKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeAdmin},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))
	return nil
}

func seedAdmin(ctx context.Context, repo user.Repository, email, password string) error {
	u, err := user.NewService(repo).Create(ctx, user.CreateRequest{
		Name:     "Administrator",
		Email:    email,
		Password: password,
		Role:     auth.RoleAdmin,
	})
	if errors.Is(err, user.ErrEmailTaken) {
		slog.Info("admin user exists", slog.String("email", email))
		return nil
	}
	if err != nil {
		if d := apperr.DetailsOf(err); d != nil {
			slog.Error("invalid admin user", slog.Any("details", d))
		}
		return err
	}
	slog.Info("created admin user", slog.String("id", u.ID), slog.String("email", u.Email))
	return nil
}
