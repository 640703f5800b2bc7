// Command seed-db loads event configuration documents into the database:
// store status, coupon token budget, and the drink menu for each event.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/presso/internal/domain/config"
	"github.com/xenking/presso/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		eventsFile  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&eventsFile, "events-file", "db/seed/events.json", "path to event config JSON file")
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

	if err := run(ctx, databaseURL, eventsFile); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, eventsFile string) error {
	raw, err := os.ReadFile(eventsFile)
	if err != nil {
		return errors.Wrap(err, "read events file")
	}

	var events []config.EventConfig
	if err := json.Unmarshal(raw, &events); err != nil {
		return errors.Wrap(err, "parse events file")
	}
	if len(events) == 0 {
		return errors.New("events file contains no events")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewConfigRepository(pool)

	g, ctx := errgroup.WithContext(ctx)
	for _, evt := range events {
		g.Go(func() error {
			if evt.EventID == "" {
				return errors.New("event config without eventId")
			}
			if err := repo.Put(ctx, &evt); err != nil {
				return errors.Wrapf(err, "store event %q", evt.EventID)
			}
			slog.Info("event config stored",
				"eventId", evt.EventID,
				"storeOpen", evt.StoreOpen,
				"drinksPerBarcode", evt.DrinksPerBarcode,
				"menuItems", len(evt.Menu),
			)
			return nil
		})
	}
	return g.Wait()
}
