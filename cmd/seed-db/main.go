package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/parcel-checkout/internal/auth"
	"github.com/xenking/parcel-checkout/internal/domain/cart"
	"github.com/xenking/parcel-checkout/internal/domain/coupon"
	"github.com/xenking/parcel-checkout/internal/storage/postgres"
	redisstore "github.com/xenking/parcel-checkout/internal/storage/redis"
)

const (
	upsertCustomerSQL = `INSERT INTO customers (id, email, first_name, last_name, phone, gateway_id)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		email = EXCLUDED.email,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		phone = EXCLUDED.phone,
		gateway_id = EXCLUDED.gateway_id`

	upsertProductSQL = `INSERT INTO products (id, name, price) VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price`
)

type seedFile struct {
	Customers []struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Phone     string `json:"phone"`
		GatewayID string `json:"gatewayId"`
	} `json:"customers"`
	Products []struct {
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
	} `json:"products"`
	Coupons []struct {
		Code    string          `json:"code"`
		Type    coupon.Type     `json:"type"`
		Value   decimal.Decimal `json:"value"`
		Uses    int             `json:"uses"`
		User    int             `json:"user"`
		Minimum decimal.Decimal `json:"minimum"`
		Maximum decimal.Decimal `json:"maximum"`
	} `json:"coupons"`
	Carts []struct {
		CustomerID string    `json:"customerId"`
		Cart       cart.Cart `json:"cart"`
	} `json:"carts"`
}

type options struct {
	databaseURL string
	redisURL    string
	seedFile    string
	jwtSecret   string
	jwtIssuer   string
	cartTTL     time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.redisURL, "redis-url", "", "Redis URL for carts (or REDIS_URL env); carts are skipped when empty")
	flag.StringVar(&opts.seedFile, "seed-file", "db/seed/checkout.json", "path to seed JSON file")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "HS256 secret used to print customer tokens (or CHECKOUT_JWT_SECRET env)")
	flag.StringVar(&opts.jwtIssuer, "jwt-issuer", "checkout", "token issuer")
	flag.DurationVar(&opts.cartTTL, "cart-ttl", 24*time.Hour, "TTL of seeded carts")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.redisURL == "" {
		opts.redisURL = os.Getenv("REDIS_URL")
	}
	if opts.jwtSecret == "" {
		opts.jwtSecret = os.Getenv("CHECKOUT_JWT_SECRET")
	}

	lg, err := zap.NewDevelopment()
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
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	data, err := os.ReadFile(opts.seedFile)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, lg); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, lg, pool, &seed); err != nil {
		return err
	}
	if err := seedCoupons(ctx, lg, postgres.NewCouponRepository(pool), &seed); err != nil {
		return err
	}
	if err := seedCarts(ctx, lg, opts, &seed); err != nil {
		return err
	}
	return printTokens(lg, opts, &seed)
}

func seedCatalog(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, seed *seedFile) error {
	for _, c := range seed.Customers {
		if _, err := pool.Exec(ctx, upsertCustomerSQL,
			c.ID, c.Email, c.FirstName, c.LastName, c.Phone, c.GatewayID,
		); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}
		lg.Info("Upserted customer", zap.String("id", c.ID), zap.String("email", c.Email))
	}
	for _, p := range seed.Products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Info("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	return nil
}

func seedCoupons(ctx context.Context, lg *zap.Logger, repo *postgres.CouponRepository, seed *seedFile) error {
	for _, c := range seed.Coupons {
		inserted, err := repo.Insert(ctx, &coupon.Coupon{
			ID:      uuid.NewString(),
			Code:    c.Code,
			Type:    c.Type,
			Value:   c.Value,
			Enabled: true,
			Limits: coupon.Limits{
				Uses:          c.Uses,
				User:          c.User,
				MinimumAmount: c.Minimum,
				MaximumAmount: c.Maximum,
			},
		})
		if err != nil {
			return errors.Wrapf(err, "insert coupon %s", c.Code)
		}
		lg.Info("Seeded coupon",
			zap.String("code", c.Code),
			zap.String("type", string(c.Type)),
			zap.Bool("inserted", inserted),
		)
	}
	return nil
}

func seedCarts(ctx context.Context, lg *zap.Logger, opts options, seed *seedFile) error {
	if len(seed.Carts) == 0 {
		return nil
	}
	if opts.redisURL == "" {
		lg.Warn("Redis URL not set, skipping carts")
		return nil
	}

	rdb, err := redisstore.NewClient(ctx, opts.redisURL)
	if err != nil {
		return errors.Wrap(err, "connect to redis")
	}
	defer func() { _ = rdb.Close() }()

	store := redisstore.NewCartStore(rdb)
	for _, c := range seed.Carts {
		if err := store.Put(ctx, c.CustomerID, &c.Cart, opts.cartTTL); err != nil {
			return errors.Wrapf(err, "put cart for %s", c.CustomerID)
		}
		lg.Info("Stored cart",
			zap.String("customer_id", c.CustomerID),
			zap.Int("items", len(c.Cart.Content)),
			zap.String("total", c.Cart.Total.StringFixed(2)),
		)
	}
	return nil
}

func printTokens(lg *zap.Logger, opts options, seed *seedFile) error {
	if opts.jwtSecret == "" {
		lg.Warn("JWT secret not set, skipping tokens")
		return nil
	}
	cfg := auth.Config{Secret: opts.jwtSecret, Issuer: opts.jwtIssuer, TTL: 7 * 24 * time.Hour}
	for _, c := range seed.Customers {
		token, err := auth.Mint(cfg, time.Now(), c.ID)
		if err != nil {
			return errors.Wrapf(err, "mint token for %s", c.ID)
		}
		fmt.Printf("%s\t%s\n", c.ID, token)
	}
	return nil
}
