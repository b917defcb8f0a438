// Command coupon-ingest bulk loads campaign coupons from gzip-compressed CSV
// batches. Codes that show up in more than one batch are ambiguous and are
// reported instead of inserted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/parcel-checkout/internal/storage/postgres"
)

type options struct {
	dataDir     string
	pattern     string
	databaseURL string
	capacity    uint
	fpRate      float64
	workers     int
}

func main() {
	var opts options
	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing coupon batches")
	flag.StringVar(&opts.pattern, "pattern", "coupons*.csv.gz", "glob of batch files inside data-dir")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.capacity, "capacity", 10_000_000, "expected codes per batch, sizes the bloom filters")
	flag.Float64Var(&opts.fpRate, "fp-rate", 0.001, "bloom filter false positive rate")
	flag.IntVar(&opts.workers, "workers", 4, "concurrent batch inserters")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, opts.pattern))
	if err != nil {
		return errors.Wrap(err, "list batches")
	}
	if len(files) == 0 {
		return errors.Errorf("no batches matching %q in %s", opts.pattern, opts.dataDir)
	}
	if len(files) > maxBatches {
		return errors.Errorf("too many batches: %d (max %d)", len(files), maxBatches)
	}

	lg.Info("Pass 1: building bloom filters", zap.Int("batches", len(files)))
	filters, err := buildFilters(ctx, lg, files, opts.capacity, opts.fpRate)
	if err != nil {
		return errors.Wrap(err, "build filters")
	}

	lg.Info("Pass 2: resolving shared codes")
	conflicts, err := findConflicts(ctx, lg, files, filters)
	if err != nil {
		return errors.Wrap(err, "find conflicts")
	}
	if len(conflicts) > 0 {
		lg.Warn("Codes present in several batches are skipped", zap.Int("count", len(conflicts)))
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, lg); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	lg.Info("Pass 3: inserting coupons")
	stats, err := ingest(ctx, lg, postgres.NewCouponRepository(pool), files, conflicts, opts.workers)
	if err != nil {
		return errors.Wrap(err, "ingest")
	}

	lg.Info("Coupon ingest completed",
		zap.Uint64("inserted", stats.inserted),
		zap.Uint64("existing", stats.existing),
		zap.Uint64("conflicting", stats.conflicting),
		zap.Uint64("invalid", stats.invalid),
	)
	return nil
}
