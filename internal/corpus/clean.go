package corpus

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
)

// CleanText strips markup from scraped text, decodes entities and collapses
// whitespace. Text of script and style elements is discarded.
func CleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return strings.Join(strings.Fields(s), " ")
			}
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skip++
				b.WriteByte(' ')
			case "br", "p", "li", "div":
				b.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skip > 0 {
					skip--
				}
				b.WriteByte(' ')
			case "p", "li", "div":
				b.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

const foodBaseURL = "https://www.food.com/recipe/"

// FoodURL builds the food.com page address of a recipe from its name and
// id: spaces become hyphens and the name is lowercased.
func FoodURL(id index.DocID, name string) string {
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	return fmt.Sprintf("%s%s-%d", foodBaseURL, slug, id)
}
