package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/storage/mongodb"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
)

// codeRule describes the discount granted by a known coupon code.
type codeRule struct {
	discountType coupon.DiscountType
	value        decimal.Decimal
	description  string
}

var codeRules = map[string]codeRule{
	"FIFTYOFF": {discountType: coupon.DiscountPercentage, value: decimal.NewFromInt(50), description: "50% off entire order"},
	"SIXTYOFF": {discountType: coupon.DiscountPercentage, value: decimal.NewFromInt(60), description: "60% off entire order"},
	"FREEZAAA": {discountType: coupon.DiscountPercentage, value: decimal.NewFromInt(100), description: "Everything free!"},
	"GNULINUX": {discountType: coupon.DiscountPercentage, value: decimal.NewFromInt(15), description: "Open source discount: 15% off"},
	"OVER9000": {discountType: coupon.DiscountFixed, value: decimal.NewFromInt(9), description: "9 off your order"},
	"HAPPYHRS": {discountType: coupon.DiscountPercentage, value: decimal.NewFromInt(18), description: "Happy Hours: 18% off"},
}

var defaultRule = codeRule{
	discountType: coupon.DiscountPercentage,
	value:        decimal.NewFromInt(10),
	description:  "Valid promo code: 10% off",
}

// couponWriter is the part of a coupon repository the ingest needs.
type couponWriter interface {
	CreateBatch(ctx context.Context, coupons []coupon.Coupon) (int64, error)
	Codes(ctx context.Context, fn func(code string)) error
}

type options struct {
	pattern       string
	minFiles      int
	expected      uint
	validFor      time.Duration
	batchSize     int
	driver        string
	databaseURL   string
	mongoURI      string
	mongoDatabase string
}

// fileResult holds candidate codes found in a single file during pass 2.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var o options
	flag.StringVar(&o.pattern, "files", "data/couponbase*.gz", "glob of gzip-compressed code lists")
	flag.IntVar(&o.minFiles, "min-files", 2, "number of files a code must appear in")
	flag.UintVar(&o.expected, "expected-codes", 120_000_000, "expected codes per file, sizes the bloom filters")
	flag.DurationVar(&o.validFor, "valid-for", 30*24*time.Hour, "lifetime of ingested coupons")
	flag.IntVar(&o.batchSize, "batch-size", 1000, "coupons per insert batch")
	flag.StringVar(&o.driver, "driver", "postgres", "storage driver: postgres or mongo")
	flag.StringVar(&o.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&o.mongoURI, "mongo-uri", "", "MongoDB connection URI (or MONGODB_URI env)")
	flag.StringVar(&o.mongoDatabase, "mongo-database", "storefront", "MongoDB database name")
	flag.Parse()

	if o.databaseURL == "" {
		o.databaseURL = os.Getenv("DATABASE_URL")
	}
	if o.mongoURI == "" {
		o.mongoURI = os.Getenv("MONGODB_URI")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, o); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, o options) error {
	files, err := filepath.Glob(o.pattern)
	if err != nil {
		return errors.Wrap(err, "match files")
	}
	if len(files) < o.minFiles || o.minFiles < 1 {
		return errors.Errorf("need at least %d files, %q matched %d", max(o.minFiles, 1), o.pattern, len(files))
	}
	if len(files) > bits.UintSize {
		return errors.Errorf("at most %d files are supported, got %d", bits.UintSize, len(files))
	}
	slices.Sort(files)

	validCodes, err := findValidCodes(ctx, files, o.minFiles, o.expected)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	slog.Info("valid codes found", slog.Int("count", len(validCodes)))

	if len(validCodes) == 0 {
		slog.Info("no valid codes to insert")
		return nil
	}

	repo, closeFn, err := openCoupons(ctx, o)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := writeCoupons(ctx, repo, validCodes, o.batchSize, time.Now().UTC(), o.validFor); err != nil {
		return errors.Wrap(err, "write coupons")
	}

	return nil
}

func openCoupons(ctx context.Context, o options) (couponWriter, func(), error) {
	switch o.driver {
	case "postgres":
		if o.databaseURL == "" {
			return nil, nil, errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		slog.Info("connecting to postgres")
		pool, err := postgres.NewPool(ctx, o.databaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to database")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		return postgres.New(pool).Coupons(), pool.Close, nil

	case "mongo":
		if o.mongoURI == "" {
			return nil, nil, errors.New("mongo URI is required: set --mongo-uri or MONGODB_URI")
		}
		slog.Info("connecting to mongo")
		client, err := mongodb.Connect(ctx, o.mongoURI)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to mongo")
		}
		db := mongodb.New(client, o.mongoDatabase)
		if err := db.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, nil, errors.Wrap(err, "ensure indexes")
		}
		return db.Coupons(), func() { _ = client.Disconnect(context.Background()) }, nil
	}
	return nil, nil, errors.Errorf("unknown driver %q", o.driver)
}

// findValidCodes returns the codes present in at least minFiles of files,
// sorted.
//
// Pass 1 builds one bloom filter per file. Pass 2 re-streams every file and
// records a code with the file's bit when the code tests positive in at
// least minFiles-1 other filters. Bits are only ever set by real
// occurrences, so counting bits of the merged mask removes bloom false
// positives.
func findValidCodes(ctx context.Context, files []string, minFiles int, expected uint) ([]string, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files, expected)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding candidate codes", slog.Int("min_files", minFiles))

	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(gctx, i, f, filters, minFiles-1, results))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= minFiles {
			valid = append(valid, code)
		}
	}
	slices.Sort(valid)

	return valid, nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, expected uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(expected, bloomFPR)
			var count uint64

			if err := streamGzFile(ctx, f, func(code string) {
				if !validLength(code) {
					return
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", f), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", f)
			}

			slog.Info("pass 1 complete", slog.String("file", f), slog.Uint64("total_codes", count))

			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func findCandidatesInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	needOthers int,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if !validLength(code) {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress", slog.String("file", path), slog.Uint64("codes", count))
			}

			hits := 0
			for j, f := range filters {
				if j == idx || !f.TestString(code) {
					continue
				}
				hits++
				if hits >= needOthers {
					break
				}
			}
			if hits >= needOthers {
				candidates[code] |= fileBit
			}
		}); err != nil {
			return errors.Wrapf(err, "scan %s for candidates", path)
		}

		slog.Info("pass 2 complete",
			slog.String("file", path),
			slog.Uint64("total_codes", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

func validLength(code string) bool {
	return len(code) >= minCodeLen && len(code) <= maxCodeLen
}

// streamGzFile opens a gzip-compressed file and calls fn for each
// normalized line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(coupon.Normalize(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeCoupons inserts the codes not yet stored, in batches.
func writeCoupons(
	ctx context.Context,
	repo couponWriter,
	codes []string,
	batchSize int,
	now time.Time,
	validFor time.Duration,
) error {
	existing := make(map[string]struct{})
	if err := repo.Codes(ctx, func(code string) {
		existing[code] = struct{}{}
	}); err != nil {
		return errors.Wrap(err, "load existing codes")
	}

	fresh := codes[:0:0]
	for _, code := range codes {
		if _, ok := existing[code]; !ok {
			fresh = append(fresh, code)
		}
	}

	slog.Info("writing coupons",
		slog.Int("new", len(fresh)),
		slog.Int("existing", len(codes)-len(fresh)),
	)

	batchSize = max(batchSize, 1)
	var written int64
	for chunk := range slices.Chunk(fresh, batchSize) {
		batch := make([]coupon.Coupon, 0, len(chunk))
		for _, code := range chunk {
			batch = append(batch, newCoupon(code, now, validFor))
		}

		n, err := repo.CreateBatch(ctx, batch)
		if err != nil {
			return errors.Wrapf(err, "insert batch at %s", chunk[0])
		}
		written += n

		slog.Info("write progress", slog.Int64("written", written), slog.Int("total", len(fresh)))
	}

	return nil
}

func newCoupon(code string, now time.Time, validFor time.Duration) coupon.Coupon {
	rule, ok := codeRules[code]
	if !ok {
		rule = defaultRule
	}
	return coupon.Coupon{
		Code:         code,
		DiscountType: rule.discountType,
		Value:        rule.value,
		Description:  rule.description,
		ExpiresAt:    now.Add(validFor),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
