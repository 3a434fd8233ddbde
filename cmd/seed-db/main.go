package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/ogani-checkout/internal/seed"
	"github.com/xenking/ogani-checkout/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		files        string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&files, "files", "db/seed/ogani.json", "comma-separated seed files (.json or .json.gz)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or OGANI_AUTH_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("OGANI_AUTH_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, strings.Split(files, ","), []byte(apiKeyPepper)); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, pepper []byte) error {
	data, err := loadAll(ctx, files)
	if err != nil {
		return err
	}

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

	if err := postgres.Seed(ctx, pool, data, pepper); err != nil {
		return errors.Wrap(err, "seed")
	}

	slog.Info("seeded",
		slog.Int("categories", len(data.Categories)),
		slog.Int("products", len(data.Products)),
		slog.Int("users", len(data.Users)),
		slog.Int("api_keys", len(data.APIKeys)),
	)
	return nil
}

// loadAll reads the seed files in parallel and merges them in argument
// order.
func loadAll(ctx context.Context, files []string) (*seed.Dataset, error) {
	sets := make([]*seed.Dataset, len(files))

	g, _ := errgroup.WithContext(ctx)
	for i, path := range files {
		path = strings.TrimSpace(path)
		g.Go(func() error {
			slog.Info("reading seed file", slog.String("path", path))
			d, err := seed.Load(path)
			if err != nil {
				return errors.Wrapf(err, "load %s", path)
			}
			sets[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := seed.Merge(sets...)
	if err := data.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate merged seed")
	}
	return data, nil
}
