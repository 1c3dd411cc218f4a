// Command recipesearch builds the index from a corpus once, answers the
// given queries and prints the result as JSON. With --import-sqlite it
// copies the corpus into a SQLite recipes table instead.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/spell"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/validator"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/sqlite"
)

type options struct {
	configPath   string
	corpusPath   string
	driver       string
	queries      []string
	require      []string
	limit        int
	policy       string
	spell        bool
	importSQLite string
	table        string
	pretty       bool
}

func main() {
	var opts options
	pflag.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	pflag.StringVar(&opts.corpusPath, "corpus", "", "corpus file, overrides corpus.path")
	pflag.StringVar(&opts.driver, "driver", "", "corpus driver (json, csv, postgres, sqlite)")
	pflag.StringArrayVarP(&opts.queries, "query", "q", nil, "query text; repeat to fuse several queries")
	pflag.StringSliceVarP(&opts.require, "require", "r", nil, "dietary attributes every result must carry")
	pflag.IntVarP(&opts.limit, "limit", "n", 0, "number of recipes to return")
	pflag.StringVar(&opts.policy, "policy", "", "fusion policy (score_sum, rank_sum)")
	pflag.BoolVar(&opts.spell, "spell", false, "correct misspelled query terms")
	pflag.StringVar(&opts.importSQLite, "import-sqlite", "", "write the corpus into this SQLite file and exit")
	pflag.StringVar(&opts.table, "table", corpus.DefaultTable, "table used by --import-sqlite")
	pflag.BoolVar(&opts.pretty, "pretty", false, "indent JSON output")
	pflag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// Logs go to stderr so stdout stays valid JSON.
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, opts); err != nil {
		slog.Error("recipesearch failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	if opts.corpusPath != "" {
		cfg.Corpus.Path = opts.corpusPath
	}
	if opts.driver != "" {
		cfg.Corpus.Driver = opts.driver
	}
	if opts.policy != "" {
		cfg.Search.FusionPolicy = opts.policy
	}
	if opts.spell {
		cfg.Spell.Enabled = true
	}

	src, closer, err := corpus.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if opts.importSQLite != "" {
		return importSQLite(ctx, src, opts.importSQLite, opts.table)
	}

	req, err := validator.ValidateSearch(validator.SearchInput{
		Queries:    opts.queries,
		Attributes: opts.require,
		Limit:      opts.limit,
	}, validator.Limits{
		MaxQueries:     cfg.Search.MaxQueries,
		MaxQueryLength: cfg.Search.MaxQueryLength,
		MaxResults:     cfg.Search.MaxResults,
		DefaultLimit:   cfg.Search.DefaultLimit,
	})
	if err != nil {
		return err
	}
	policy, err := merger.ParsePolicy(cfg.Search.FusionPolicy)
	if err != nil {
		return err
	}

	engine := indexer.NewEngine(src, nil)
	if err := engine.Load(ctx); err != nil {
		return err
	}
	exec := executor.New(engine,
		executor.Options{Policy: policy, Limit: cfg.Search.DefaultLimit},
		executor.SpellOptions{
			Enabled: cfg.Spell.Enabled,
			Options: spell.Options{Threshold: cfg.Spell.Threshold, MinTermLength: cfg.Spell.MinTermLength},
		},
		nil,
	)
	result, err := exec.Execute(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}

func importSQLite(ctx context.Context, src corpus.Source, path, table string) error {
	recipes, err := src.Load(ctx)
	if err != nil {
		return err
	}
	client, err := sqlite.Open(ctx, config.SQLiteConfig{Path: path}, true)
	if err != nil {
		return err
	}
	defer client.Close()

	dst := corpus.NewSQLSource(client.DB, corpus.DialectSQLite, table)
	if err := dst.CreateTable(ctx); err != nil {
		return err
	}
	if err := dst.Insert(ctx, recipes); err != nil {
		return err
	}
	slog.Info("corpus imported", "source", src.Name(), "sqlite", path, "table", table, "recipes", len(recipes))
	return nil
}
