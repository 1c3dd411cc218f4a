package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
)

// JSONSource reads an id_to_recipe export: either an object keyed by
// recipe id or an array of records carrying an "id" field.
type JSONSource struct {
	Path string
}

func (s *JSONSource) Name() string { return "json:" + s.Path }

func (s *JSONSource) Load(ctx context.Context) ([]recipe.Recipe, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", s.Path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recipes, err := DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("decoding corpus %s: %w", s.Path, err)
	}
	return recipes, nil
}

// jsonRecord accepts both the export's field names and the API's own.
type jsonRecord struct {
	ID               *index.DocID      `json:"id"`
	Name             string            `json:"name"`
	Ingredients      stringList        `json:"ingredients"`
	Category         string            `json:"category"`
	Keywords         stringList        `json:"keywords"`
	Instructions     string            `json:"instructions"`
	AggregatedRating flexFloat         `json:"aggregated_rating"`
	Image            string            `json:"image"`
	URL              string            `json:"url"`
	LegacyURL        string            `json:"Url"`
	Dietary          recipe.Attributes `json:"dietary_restrictions"`
}

// DecodeJSON decodes an id_to_recipe document. Recipes are returned in
// ascending id order.
func DecodeJSON(data []byte) ([]recipe.Recipe, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	data = nullNonFinite(data)
	var recipes []recipe.Recipe
	switch data[0] {
	case '{':
		var byID map[string]jsonRecord
		if err := json.Unmarshal(data, &byID); err != nil {
			return nil, err
		}
		recipes = make([]recipe.Recipe, 0, len(byID))
		for key, rec := range byID {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("recipe key %q is not an integer id", key)
			}
			recipes = append(recipes, rec.toRecipe(index.DocID(id)))
		}
	case '[':
		var list []jsonRecord
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		recipes = make([]recipe.Recipe, 0, len(list))
		for i, rec := range list {
			if rec.ID == nil {
				return nil, fmt.Errorf("record %d has no id", i)
			}
			recipes = append(recipes, rec.toRecipe(*rec.ID))
		}
	default:
		return nil, fmt.Errorf("expected a JSON object or array, found %q", data[0])
	}
	sort.Slice(recipes, func(i, j int) bool { return recipes[i].ID < recipes[j].ID })
	return recipes, nil
}

func (rec jsonRecord) toRecipe(id index.DocID) recipe.Recipe {
	url := rec.URL
	if url == "" {
		url = rec.LegacyURL
	}
	r := recipe.Recipe{
		ID:               id,
		Name:             rec.Name,
		Ingredients:      rec.Ingredients,
		Category:         rec.Category,
		Keywords:         rec.Keywords,
		Instructions:     rec.Instructions,
		AggregatedRating: float64(rec.AggregatedRating),
		Image:            rec.Image,
		URL:              url,
		Attributes:       rec.Dietary,
	}
	finalize(&r)
	return r
}

// stringList decodes a JSON array of strings or a single R vector literal.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = ParseRList(s)
	return nil
}

// flexFloat decodes a number, a numeric string, or "NA"/"" as 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "na") || strings.EqualFold(s, "nan") {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("rating %q: %w", s, err)
		}
		*f = flexFloat(sanitize(v))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// nullNonFinite rewrites the bare NaN, Infinity and -Infinity literals that
// Python's json module emits into null, leaving string contents untouched.
func nullNonFinite(data []byte) []byte {
	if !bytes.Contains(data, []byte("NaN")) && !bytes.Contains(data, []byte("Infinity")) {
		return data
	}
	out := make([]byte, 0, len(data))
	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			switch c {
			case '\\':
				if i+1 < len(data) {
					i++
					out = append(out, data[i])
				}
			case '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		matched := false
		for _, lit := range []string{"NaN", "-Infinity", "Infinity"} {
			if bytes.HasPrefix(data[i:], []byte(lit)) {
				out = append(out, "null"...)
				i += len(lit) - 1
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, c)
		}
	}
	return out
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
