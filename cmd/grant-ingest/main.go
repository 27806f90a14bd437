// Command grant-ingest bulk-loads coupon grants from gzipped user-id lists
// (one user id per line). Files are scanned concurrently; a bloom filter
// sifts out ids seen in earlier files so each user is granted at most once
// per run without holding every id in memory.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/homecart/internal/domain/coupon"
	"github.com/xenking/homecart/internal/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	maxUserIDLen  = 64
)

func main() {
	var (
		dataDir     string
		databaseURL string
		couponCode  string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz user-id list files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponCode, "coupon", "", "code of the coupon to grant")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if couponCode == "" {
		slog.Error("coupon code is required: set --coupon")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, couponCode); err != nil {
		slog.Error("grant ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("grant ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL, couponCode string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list data files")
	}
	if len(files) == 0 {
		return errors.Errorf("no .gz files found in %s", dataDir)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	store := postgres.NewStore(pool)

	c, err := store.Coupons().FindByCode(ctx, couponCode)
	if err != nil {
		return errors.Wrapf(err, "look up coupon %s", couponCode)
	}

	userIDs, err := collectUserIDs(ctx, files)
	if err != nil {
		return errors.Wrap(err, "collect user ids")
	}
	slog.Info("unique user ids collected", slog.Int("count", len(userIDs)))

	return writeGrants(ctx, store.Coupons(), c, userIDs)
}

// collectUserIDs streams every file concurrently and merges the ids, using a
// shared bloom filter to skip duplicates across files. A false positive
// drops an id instead of double-granting, which is the safe direction.
func collectUserIDs(ctx context.Context, files []string) ([]string, error) {
	var (
		mu     sync.Mutex
		seen   = bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		unique []string
	)

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			var count uint64
			err := streamGzFile(ctx, path, func(id string) {
				if id == "" || len(id) > maxUserIDLen {
					return
				}
				count++
				if count%progressEvery == 0 {
					slog.Info("scan progress",
						slog.Int("file", i+1),
						slog.Uint64("lines", count),
					)
				}

				mu.Lock()
				if !seen.TestAndAddString(id) {
					unique = append(unique, id)
				}
				mu.Unlock()
			})
			if err != nil {
				return errors.Wrapf(err, "scan file %s", path)
			}

			slog.Info("scan complete", slog.Int("file", i+1), slog.Uint64("lines", count))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return unique, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
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
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// writeGrants upserts one grant per user. Existing grants are left alone, so
// re-running the ingest never resets a spent grant.
func writeGrants(ctx context.Context, repo coupon.Repository, c *coupon.Coupon, userIDs []string) error {
	slog.Info("writing grants", slog.String("coupon", c.Code), slog.Int("count", len(userIDs)))

	for i, userID := range userIDs {
		if err := repo.UpsertGrant(ctx, coupon.Grant{
			ID:       uuid.New().String(),
			UserID:   userID,
			CouponID: c.ID,
		}); err != nil {
			return errors.Wrapf(err, "grant coupon to %s", userID)
		}

		if (i+1)%10_000 == 0 || i+1 == len(userIDs) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(userIDs)))
		}
	}
	return nil
}
