package recipe

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/errors"
)

// Catalog maps document ids to recipes. It is read-only after NewCatalog.
type Catalog struct {
	recipes map[index.DocID]*Recipe
}

// NewCatalog indexes recipes by id. Duplicate ids are rejected.
func NewCatalog(recipes []Recipe) (*Catalog, error) {
	c := &Catalog{recipes: make(map[index.DocID]*Recipe, len(recipes))}
	for i := range recipes {
		r := &recipes[i]
		if _, dup := c.recipes[r.ID]; dup {
			return nil, fmt.Errorf("building catalog: %w: %d: %w", apperrors.ErrInvalidInput, r.ID, index.ErrDuplicateID)
		}
		c.recipes[r.ID] = r
	}
	return c, nil
}

// Get returns the recipe for id.
func (c *Catalog) Get(id index.DocID) (*Recipe, bool) {
	r, ok := c.recipes[id]
	return r, ok
}

// Lookup returns the recipe for id or an error wrapping
// ErrDocumentNotFound.
func (c *Catalog) Lookup(id index.DocID) (*Recipe, error) {
	r, ok := c.recipes[id]
	if !ok {
		return nil, fmt.Errorf("recipe %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return r, nil
}

// Attributes returns the dietary flags of id. Its signature matches the
// filter's attribute lookup.
func (c *Catalog) Attributes(id index.DocID) (Attributes, bool) {
	r, ok := c.recipes[id]
	if !ok {
		return Attributes{}, false
	}
	return r.Attributes, true
}

func (c *Catalog) Len() int {
	return len(c.recipes)
}

// Documents returns the index input for every recipe, ordered by id.
func (c *Catalog) Documents() []index.Document {
	docs := make([]index.Document, 0, len(c.recipes))
	for _, r := range c.recipes {
		docs = append(docs, r.Document())
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}
