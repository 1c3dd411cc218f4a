package recipe

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/errors"
)

// Attributes is the fixed set of dietary flags of a recipe. Used as a
// requirement, a true flag demands the same flag on the recipe and a false
// flag imposes nothing.
type Attributes struct {
	Vegetarian bool `json:"vegetarian"`
	Vegan      bool `json:"vegan"`
	GlutenFree bool `json:"gluten_free"`
	DairyFree  bool `json:"dairy_free"`
	NutFree    bool `json:"nut_free"`
}

// Attribute names in canonical form.
const (
	AttrVegetarian = "vegetarian"
	AttrVegan      = "vegan"
	AttrGlutenFree = "gluten_free"
	AttrDairyFree  = "dairy_free"
	AttrNutFree    = "nut_free"
)

// AttributeNames lists every attribute in canonical form.
var AttributeNames = []string{AttrVegetarian, AttrVegan, AttrGlutenFree, AttrDairyFree, AttrNutFree}

// Satisfies reports whether a carries every flag set in required.
func (a Attributes) Satisfies(required Attributes) bool {
	return (!required.Vegetarian || a.Vegetarian) &&
		(!required.Vegan || a.Vegan) &&
		(!required.GlutenFree || a.GlutenFree) &&
		(!required.DairyFree || a.DairyFree) &&
		(!required.NutFree || a.NutFree)
}

// Names returns the canonical names of the set flags in declaration order.
func (a Attributes) Names() []string {
	var names []string
	for _, name := range AttributeNames {
		if *a.field(name) {
			names = append(names, name)
		}
	}
	return names
}

// Set turns on the named flag. Name forms are those accepted by
// ParseAttribute.
func (a *Attributes) Set(name string) error {
	canonical, err := ParseAttribute(name)
	if err != nil {
		return err
	}
	*a.field(canonical) = true
	return nil
}

func (a *Attributes) field(canonical string) *bool {
	switch canonical {
	case AttrVegetarian:
		return &a.Vegetarian
	case AttrVegan:
		return &a.Vegan
	case AttrGlutenFree:
		return &a.GlutenFree
	case AttrDairyFree:
		return &a.DairyFree
	case AttrNutFree:
		return &a.NutFree
	}
	panic(fmt.Sprintf("recipe: unknown attribute %q", canonical))
}

// ParseAttribute returns the canonical name for an attribute. Matching is
// case-insensitive and ignores underscores, hyphens and spaces, so
// "gluten_free", "gluten-free" and "GlutenFree" are the same attribute.
func ParseAttribute(name string) (string, error) {
	key := strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))

	switch key {
	case "vegetarian":
		return AttrVegetarian, nil
	case "vegan":
		return AttrVegan, nil
	case "glutenfree":
		return AttrGlutenFree, nil
	case "dairyfree":
		return AttrDairyFree, nil
	case "nutfree":
		return AttrNutFree, nil
	}
	return "", apperrors.Invalid("unknown dietary attribute %q", name)
}
