// Package corpus loads the recipe corpus the index is built from. Recipes
// come from an id_to_recipe JSON export, a food.com recipes CSV, or a
// recipes table in PostgreSQL or SQLite.
package corpus

import (
	"context"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/sqlite"
)

// Source yields every recipe of a corpus.
type Source interface {
	Load(ctx context.Context) ([]recipe.Recipe, error)
	Name() string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the source selected by cfg.Corpus.Driver. The closer
// releases any database connection and must be called once loading is done.
func Open(ctx context.Context, cfg *config.Config) (Source, io.Closer, error) {
	log := logger.WithComponent("corpus")
	switch cfg.Corpus.Driver {
	case config.DriverJSON, "":
		return &JSONSource{Path: cfg.Corpus.Path}, nopCloser{}, nil
	case config.DriverCSV:
		return &CSVSource{Path: cfg.Corpus.Path}, nopCloser{}, nil
	case config.DriverPostgres:
		var client *postgres.Client
		err := resilience.Retry(ctx, "connect postgres", resilience.DefaultBackoff(), func(ctx context.Context) error {
			c, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			client = c
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening corpus: %w", err)
		}
		log.Info("connected to postgres", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return NewSQLSource(client.DB, DialectPostgres, cfg.Corpus.Table), client, nil
	case config.DriverSQLite:
		path := cfg.SQLite.Path
		if path == "" {
			path = cfg.Corpus.Path
		}
		client, err := sqlite.Open(ctx, config.SQLiteConfig{Path: path}, false)
		if err != nil {
			return nil, nil, fmt.Errorf("opening corpus: %w", err)
		}
		log.Info("opened sqlite corpus", "path", path)
		return NewSQLSource(client.DB, DialectSQLite, cfg.Corpus.Table), client, nil
	default:
		return nil, nil, fmt.Errorf("opening corpus: unknown driver %q", cfg.Corpus.Driver)
	}
}

// finalize cleans the text fields of r and fills in a food.com URL when the
// record has none.
func finalize(r *recipe.Recipe) {
	r.Name = CleanText(r.Name)
	r.Category = CleanText(r.Category)
	r.Instructions = CleanText(r.Instructions)
	for i, s := range r.Ingredients {
		r.Ingredients[i] = CleanText(s)
	}
	for i, s := range r.Keywords {
		r.Keywords[i] = CleanText(s)
	}
	if r.URL == "" && r.Name != "" {
		r.URL = FoodURL(r.ID, r.Name)
	}
}
