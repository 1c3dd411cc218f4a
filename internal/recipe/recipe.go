// Package recipe defines the recipe record served by search, its dietary
// attributes and the id-keyed catalog built alongside the index.
package recipe

import (
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
)

type Recipe struct {
	ID               index.DocID `json:"id"`
	Name             string      `json:"name"`
	Ingredients      []string    `json:"ingredients,omitempty"`
	Category         string      `json:"category,omitempty"`
	Keywords         []string    `json:"keywords,omitempty"`
	Instructions     string      `json:"instructions"`
	AggregatedRating float64     `json:"aggregated_rating"`
	Image            string      `json:"image"`
	URL              string      `json:"url"`
	Attributes       Attributes  `json:"dietary_restrictions"`
}

// IndexFields returns the text fields that contribute terms to the index:
// name, ingredients, keywords and category.
func (r *Recipe) IndexFields() []string {
	fields := make([]string, 0, 2+len(r.Ingredients)+len(r.Keywords))
	fields = append(fields, r.Name)
	fields = append(fields, r.Ingredients...)
	fields = append(fields, r.Keywords...)
	fields = append(fields, r.Category)
	return fields
}

// Document converts r into the index input form.
func (r *Recipe) Document() index.Document {
	return index.Document{ID: r.ID, Fields: r.IndexFields()}
}
