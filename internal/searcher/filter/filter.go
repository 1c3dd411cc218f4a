// Package filter removes recipes that lack required dietary attributes from
// a fused ranking.
package filter

import (
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/merger"
)

// DefaultLimit is the result size used when a limit <= 0 is given.
const DefaultLimit = 10

// Lookup returns the dietary attributes of a document, or false when the
// document is unknown.
type Lookup func(id index.DocID) (recipe.Attributes, bool)

// Apply keeps the documents of ranked whose attributes satisfy required, in
// order, then cuts the result to limit. The whole ranking is walked before
// truncation; matched is the number of documents that passed the walk.
// Documents the lookup does not know are dropped.
func Apply(ranked []merger.Fused, required recipe.Attributes, lookup Lookup, limit int) (kept []merger.Fused, matched int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	kept = make([]merger.Fused, 0, min(len(ranked), limit))
	for _, doc := range ranked {
		attrs, ok := lookup(doc.DocID)
		if !ok || !attrs.Satisfies(required) {
			continue
		}
		matched++
		if len(kept) < limit {
			kept = append(kept, doc)
		}
	}
	return kept, matched
}
