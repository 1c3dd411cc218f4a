package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/resilience"
)

// Dialect selects placeholder syntax for the recipes table queries.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// DefaultTable is the table read when none is configured.
const DefaultTable = "recipes"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSource reads recipes from a table with the layout created by
// CreateTable. Ingredient and keyword lists are stored as JSON arrays.
//
//	CREATE TABLE recipes (
//	    id                BIGINT PRIMARY KEY,
//	    name              TEXT NOT NULL,
//	    ingredients       TEXT NOT NULL DEFAULT '[]',
//	    category          TEXT NOT NULL DEFAULT '',
//	    keywords          TEXT NOT NULL DEFAULT '[]',
//	    instructions      TEXT NOT NULL DEFAULT '',
//	    aggregated_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    image             TEXT NOT NULL DEFAULT '',
//	    url               TEXT NOT NULL DEFAULT '',
//	    vegetarian        BOOLEAN NOT NULL DEFAULT FALSE,
//	    vegan             BOOLEAN NOT NULL DEFAULT FALSE,
//	    gluten_free       BOOLEAN NOT NULL DEFAULT FALSE,
//	    dairy_free        BOOLEAN NOT NULL DEFAULT FALSE,
//	    nut_free          BOOLEAN NOT NULL DEFAULT FALSE
//	);
type SQLSource struct {
	db      *sql.DB
	dialect Dialect
	table   string
	backoff resilience.Backoff
}

func NewSQLSource(db *sql.DB, dialect Dialect, table string) *SQLSource {
	if table == "" {
		table = DefaultTable
	}
	return &SQLSource{db: db, dialect: dialect, table: table, backoff: resilience.DefaultBackoff()}
}

func (s *SQLSource) Name() string {
	if s.dialect == DialectPostgres {
		return "postgres:" + s.table
	}
	return "sqlite:" + s.table
}

const recipeColumns = `id, name, ingredients, category, keywords, instructions, aggregated_rating,
	image, url, vegetarian, vegan, gluten_free, dairy_free, nut_free`

// Load reads every row in id order, retrying transient failures.
func (s *SQLSource) Load(ctx context.Context) ([]recipe.Recipe, error) {
	if !tableName.MatchString(s.table) {
		return nil, fmt.Errorf("invalid table name %q", s.table)
	}
	var recipes []recipe.Recipe
	err := resilience.Retry(ctx, "load "+s.Name(), s.backoff, func(ctx context.Context) error {
		var err error
		recipes, err = s.load(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading recipes from %s: %w", s.Name(), err)
	}
	return recipes, nil
}

func (s *SQLSource) load(ctx context.Context) ([]recipe.Recipe, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recipeColumns+` FROM `+s.table+` ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recipes: %w", err)
	}
	defer rows.Close()

	var recipes []recipe.Recipe
	for rows.Next() {
		var (
			r                     recipe.Recipe
			id                    int64
			ingredients, keywords string
			a                     = &r.Attributes
		)
		if err := rows.Scan(&id, &r.Name, &ingredients, &r.Category, &keywords, &r.Instructions,
			&r.AggregatedRating, &r.Image, &r.URL,
			&a.Vegetarian, &a.Vegan, &a.GlutenFree, &a.DairyFree, &a.NutFree,
		); err != nil {
			return nil, resilience.Permanent(fmt.Errorf("scanning recipe row: %w", err))
		}
		r.ID = index.DocID(id)
		if r.Ingredients, err = decodeList(ingredients); err != nil {
			return nil, resilience.Permanent(fmt.Errorf("recipe %d ingredients: %w", id, err))
		}
		if r.Keywords, err = decodeList(keywords); err != nil {
			return nil, resilience.Permanent(fmt.Errorf("recipe %d keywords: %w", id, err))
		}
		finalize(&r)
		recipes = append(recipes, r)
	}
	return recipes, rows.Err()
}

// decodeList accepts a JSON array or an R vector literal.
func decodeList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var items []string
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	return ParseRList(s), nil
}

// CreateTable creates the recipes table if it does not exist.
func (s *SQLSource) CreateTable(ctx context.Context) error {
	if !tableName.MatchString(s.table) {
		return fmt.Errorf("invalid table name %q", s.table)
	}
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		id                BIGINT PRIMARY KEY,
		name              TEXT NOT NULL,
		ingredients       TEXT NOT NULL DEFAULT '[]',
		category          TEXT NOT NULL DEFAULT '',
		keywords          TEXT NOT NULL DEFAULT '[]',
		instructions      TEXT NOT NULL DEFAULT '',
		aggregated_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
		image             TEXT NOT NULL DEFAULT '',
		url               TEXT NOT NULL DEFAULT '',
		vegetarian        BOOLEAN NOT NULL DEFAULT FALSE,
		vegan             BOOLEAN NOT NULL DEFAULT FALSE,
		gluten_free       BOOLEAN NOT NULL DEFAULT FALSE,
		dairy_free        BOOLEAN NOT NULL DEFAULT FALSE,
		nut_free          BOOLEAN NOT NULL DEFAULT FALSE
	)`)
	if err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// Insert writes recipes in a single transaction, replacing rows with the
// same id.
func (s *SQLSource) Insert(ctx context.Context, recipes []recipe.Recipe) error {
	if !tableName.MatchString(s.table) {
		return fmt.Errorf("invalid table name %q", s.table)
	}
	placeholders := make([]string, 14)
	for i := range placeholders {
		placeholders[i] = s.dialect.placeholder(i + 1)
	}
	query := `INSERT INTO ` + s.table + ` (` + recipeColumns + `) VALUES (` + strings.Join(placeholders, ", ") + `)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, ingredients = excluded.ingredients,
		category = excluded.category, keywords = excluded.keywords, instructions = excluded.instructions,
		aggregated_rating = excluded.aggregated_rating, image = excluded.image, url = excluded.url,
		vegetarian = excluded.vegetarian, vegan = excluded.vegan, gluten_free = excluded.gluten_free,
		dairy_free = excluded.dairy_free, nut_free = excluded.nut_free`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range recipes {
		r := &recipes[i]
		ingredients, err := json.Marshal(nonNil(r.Ingredients))
		if err != nil {
			return err
		}
		keywords, err := json.Marshal(nonNil(r.Keywords))
		if err != nil {
			return err
		}
		a := r.Attributes
		if _, err := stmt.ExecContext(ctx,
			int64(r.ID), r.Name, string(ingredients), r.Category, string(keywords), r.Instructions,
			r.AggregatedRating, r.Image, r.URL,
			a.Vegetarian, a.Vegan, a.GlutenFree, a.DairyFree, a.NutFree,
		); err != nil {
			return fmt.Errorf("inserting recipe %d: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insert: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
