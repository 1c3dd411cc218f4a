package corpus

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
)

// CSVSource reads the food.com recipes.csv export. Recognized columns are
// RecipeId, Name, RecipeIngredientParts, Keywords, RecipeCategory,
// RecipeInstructions, AggregatedRating and Images, plus optional boolean
// dietary columns named after the attributes (Vegan, gluten_free, ...).
type CSVSource struct {
	Path string
}

func (s *CSVSource) Name() string { return "csv:" + s.Path }

func (s *CSVSource) Load(ctx context.Context) ([]recipe.Recipe, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", s.Path, err)
	}
	defer f.Close()
	recipes, err := DecodeCSV(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("decoding corpus %s: %w", s.Path, err)
	}
	return recipes, nil
}

type csvColumns struct {
	id, name, ingredients, keywords, category, instructions, rating, images, url int
	attrs                                                                        map[string]int
}

func mapColumns(header []string) (csvColumns, error) {
	cols := csvColumns{
		id: -1, name: -1, ingredients: -1, keywords: -1, category: -1,
		instructions: -1, rating: -1, images: -1, url: -1,
		attrs: make(map[string]int),
	}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch h {
		case "RecipeId":
			cols.id = i
		case "Name":
			cols.name = i
		case "RecipeIngredientParts":
			cols.ingredients = i
		case "Keywords":
			cols.keywords = i
		case "RecipeCategory":
			cols.category = i
		case "RecipeInstructions":
			cols.instructions = i
		case "AggregatedRating":
			cols.rating = i
		case "Images":
			cols.images = i
		case "Url", "URL":
			cols.url = i
		default:
			if name, err := recipe.ParseAttribute(h); err == nil {
				cols.attrs[name] = i
			}
		}
	}
	if cols.id < 0 || cols.name < 0 {
		return cols, errors.New("header must contain RecipeId and Name")
	}
	return cols, nil
}

// DecodeCSV reads a food.com style CSV stream. Rows are returned in file
// order.
func DecodeCSV(ctx context.Context, r io.Reader) ([]recipe.Recipe, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var recipes []recipe.Recipe
	for n := 1; ; n++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n, err)
		}
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		field := func(i int) string {
			if i < 0 || i >= len(row) {
				return ""
			}
			return row[i]
		}
		id, err := strconv.ParseInt(strings.TrimSpace(field(cols.id)), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: RecipeId %q: %w", n, field(cols.id), err)
		}
		rec := recipe.Recipe{
			ID:           index.DocID(id),
			Name:         field(cols.name),
			Ingredients:  ParseRList(field(cols.ingredients)),
			Keywords:     ParseRList(field(cols.keywords)),
			Category:     field(cols.category),
			Instructions: strings.Join(ParseRList(field(cols.instructions)), " "),
			URL:          field(cols.url),
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(field(cols.rating)), 64); err == nil {
			rec.AggregatedRating = sanitize(v)
		}
		if images := ParseRList(field(cols.images)); len(images) > 0 {
			rec.Image = images[0]
		}
		for name, i := range cols.attrs {
			if truthy(field(i)) {
				// Attribute names come from ParseAttribute and are always valid.
				_ = rec.Attributes.Set(name)
			}
		}
		finalize(&rec)
		recipes = append(recipes, rec)
	}
	return recipes, nil
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y":
		return true
	}
	return false
}
