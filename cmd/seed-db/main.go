// Command seed-db loads the product catalog from a JSON file and seeds demo
// coupons and grants, for local development and integration tests.
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

	"github.com/xenking/homecart/internal/domain/coupon"
	"github.com/xenking/homecart/internal/domain/product"
	"github.com/xenking/homecart/internal/postgres"
)

type productJSON struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	TaxRate decimal.Decimal `json:"taxRate"`
	Stock   int             `json:"stock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		grantUsers   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&grantUsers, "grant-user", "demo-user", "user id receiving the targeted demo coupon")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, grantUsers); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, grantUser string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewStore(pool)

	if err := seedProducts(ctx, store.Products(), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, store.Coupons(), grantUser); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

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

	for _, p := range products {
		taxRate := p.TaxRate
		if taxRate.IsZero() {
			taxRate = decimal.NewFromInt(18)
		}
		if err := repo.Upsert(ctx, product.Product{
			ID:      p.ID,
			Name:    p.Name,
			Price:   p.Price,
			TaxRate: taxRate,
			Stock:   p.Stock,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

func seedCoupons(ctx context.Context, repo coupon.Repository, grantUser string) error {
	slog.Info("seeding demo coupons")

	now := time.Now()
	coupons := []coupon.Coupon{
		{
			ID:              "seed-save10",
			Code:            "SAVE10",
			DiscountPercent: decimal.NewFromInt(10),
			Public:          true,
			ValidFrom:       now,
			ValidTo:         now.AddDate(1, 0, 0),
			MaxUses:         1000,
		},
		{
			ID:              "seed-welcome25",
			Code:            "WELCOME25",
			DiscountPercent: decimal.NewFromInt(25),
			Public:          false,
			ValidFrom:       now,
			ValidTo:         now.AddDate(0, 1, 0),
			MaxUses:         100,
		},
	}

	for _, c := range coupons {
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("upserted coupon", slog.String("code", c.Code))
	}

	// The targeted coupon needs a grant to be redeemable.
	if err := repo.UpsertGrant(ctx, coupon.Grant{
		ID:       "seed-grant-" + grantUser,
		UserID:   grantUser,
		CouponID: "seed-welcome25",
	}); err != nil {
		return errors.Wrapf(err, "grant coupon to %s", grantUser)
	}
	slog.Info("granted coupon", slog.String("code", "WELCOME25"), slog.String("user", grantUser))

	return nil
}
