package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/sqlite"
)

func TestParseRList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`c("flour", "sugar", "eggs")`, []string{"flour", "sugar", "eggs"}},
		{`"salt"`, []string{"salt"}},
		{`c("a", NA, "b")`, []string{"a", "b"}},
		{"character(0)", nil},
		{"NA", nil},
		{"", nil},
		{"Dessert", []string{"Dessert"}},
	}
	for _, tt := range tests {
		got := ParseRList(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("ParseRList(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := map[string]string{
		"plain   text\n here":                        "plain text here",
		"Mix <b>well</b> &amp; serve":                "Mix well & serve",
		"<p>Step one</p><p>Step two</p>":             "Step one Step two",
		"before<script>alert(1)</script>after":       "before after",
		"<style>p{color:red}</style>Chocolate cake": "Chocolate cake",
		"Jalape&ntilde;o":                            "Jalapeño",
	}
	for in, want := range tests {
		if got := CleanText(in); got != want {
			t.Errorf("CleanText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFoodURL(t *testing.T) {
	got := FoodURL(38, "Low Fat Berry Blue Frozen Dessert")
	want := "https://www.food.com/recipe/low-fat-berry-blue-frozen-dessert-38"
	if got != want {
		t.Errorf("FoodURL = %q, want %q", got, want)
	}
}

func TestDecodeJSONObject(t *testing.T) {
	data := []byte(`{
		"40": {"name": "Beef Stew", "ingredients": ["beef", "carrot"], "aggregated_rating": NaN,
		       "image": "b.jpg", "Url": "https://example.com/40", "instructions": "Simmer.",
		       "dietary_restrictions": {"vegetarian": false, "vegan": false, "gluten_free": true, "dairy_free": true, "nut_free": true}},
		"38": {"name": "Vegan Chocolate Cake", "keywords": "c(\"Dessert\", \"Easy\")", "aggregated_rating": "4.5",
		       "instructions": "Bake &amp; cool. NaN stays", "dietary_restrictions": {"vegan": true, "vegetarian": true}}
	}`)
	recipes, err := DecodeJSON(data)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if len(recipes) != 2 || recipes[0].ID != 38 || recipes[1].ID != 40 {
		t.Fatalf("recipes = %+v", recipes)
	}
	cake, stew := recipes[0], recipes[1]
	if cake.AggregatedRating != 4.5 || stew.AggregatedRating != 0 {
		t.Errorf("ratings = %v, %v", cake.AggregatedRating, stew.AggregatedRating)
	}
	if len(cake.Keywords) != 2 || cake.Keywords[0] != "Dessert" {
		t.Errorf("keywords = %v", cake.Keywords)
	}
	if cake.Instructions != "Bake & cool. NaN stays" {
		t.Errorf("instructions = %q", cake.Instructions)
	}
	if cake.URL != "https://www.food.com/recipe/vegan-chocolate-cake-38" {
		t.Errorf("built url = %q", cake.URL)
	}
	if stew.URL != "https://example.com/40" {
		t.Errorf("legacy url = %q", stew.URL)
	}
	if !cake.Attributes.Vegan || stew.Attributes.Vegan || !stew.Attributes.GlutenFree {
		t.Errorf("attributes = %+v / %+v", cake.Attributes, stew.Attributes)
	}
}

func TestDecodeJSONArray(t *testing.T) {
	recipes, err := DecodeJSON([]byte(`[{"id": 2, "name": "b"}, {"id": 1, "name": "a"}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(recipes) != 2 || recipes[0].ID != 1 {
		t.Errorf("recipes = %+v", recipes)
	}
	if _, err := DecodeJSON([]byte(`[{"name": "no id"}]`)); err == nil {
		t.Error("expected error for record without id")
	}
	if _, err := DecodeJSON([]byte(`{"abc": {"name": "x"}}`)); err == nil {
		t.Error("expected error for non-integer key")
	}
}

func TestDecodeCSV(t *testing.T) {
	in := "RecipeId,Name,RecipeCategory,Keywords,RecipeIngredientParts,AggregatedRating,RecipeInstructions,Images,Vegan,gluten-free\n" +
		`38,Berry Dessert,Frozen Desserts,"c(""Dessert"", ""Summer"")","c(""blueberries"", ""sugar"")",4.5,"c(""Toss."", ""Freeze."")","c(""https://img/38.jpg"", ""x"")",TRUE,0` + "\n" +
		`39,Biryani,Chicken Breast,NA,"c(""chicken"")",NA,"c(""Cook."")",character(0),false,1` + "\n"
	recipes, err := DecodeCSV(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeCSV: %v", err)
	}
	if len(recipes) != 2 {
		t.Fatalf("got %d recipes", len(recipes))
	}
	r := recipes[0]
	if r.ID != 38 || r.Name != "Berry Dessert" || r.Category != "Frozen Desserts" {
		t.Errorf("recipe = %+v", r)
	}
	if len(r.Ingredients) != 2 || r.Ingredients[1] != "sugar" {
		t.Errorf("ingredients = %v", r.Ingredients)
	}
	if r.Instructions != "Toss. Freeze." || r.Image != "https://img/38.jpg" || r.AggregatedRating != 4.5 {
		t.Errorf("recipe = %+v", r)
	}
	if !r.Attributes.Vegan || r.Attributes.GlutenFree {
		t.Errorf("attributes = %+v", r.Attributes)
	}
	b := recipes[1]
	if b.Keywords != nil || b.Image != "" || b.AggregatedRating != 0 || !b.Attributes.GlutenFree {
		t.Errorf("recipe = %+v", b)
	}
	if b.URL != "https://www.food.com/recipe/biryani-39" {
		t.Errorf("url = %q", b.URL)
	}
}

func TestDecodeCSVRequiresIDAndName(t *testing.T) {
	if _, err := DecodeCSV(context.Background(), strings.NewReader("Title,Body\nx,y\n")); err == nil {
		t.Error("expected header error")
	}
}

func TestJSONSourceFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_to_recipe.json")
	if err := os.WriteFile(path, []byte(`{"1": {"name": "Tomato Soup"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Corpus.Driver = config.DriverJSON
	cfg.Corpus.Path = path
	src, closer, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	recipes, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recipes) != 1 || recipes[0].Name != "Tomato Soup" {
		t.Errorf("recipes = %+v", recipes)
	}
}

func TestSQLSourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, err := sqlite.Open(ctx, config.SQLiteConfig{Path: ":memory:"}, true)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer client.Close()

	src := NewSQLSource(client.DB, DialectSQLite, "")
	if err := src.CreateTable(ctx); err != nil {
		t.Fatal(err)
	}
	in := []recipe.Recipe{
		{ID: 2, Name: "Beef Stew", Ingredients: []string{"beef", "onion"}, Category: "Stew", AggregatedRating: 4.2},
		{ID: 1, Name: "Vegan Cake", Keywords: []string{"dessert"}, URL: "https://example.com/1",
			Attributes: recipe.Attributes{Vegan: true, Vegetarian: true}},
	}
	if err := src.Insert(ctx, in); err != nil {
		t.Fatal(err)
	}
	// Upsert replaces the existing row.
	in[0].Name = "Hearty Beef Stew"
	if err := src.Insert(ctx, in[:1]); err != nil {
		t.Fatal(err)
	}

	got, err := src.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("recipes = %+v", got)
	}
	if !got[0].Attributes.Vegan || got[0].URL != "https://example.com/1" || got[0].Keywords[0] != "dessert" {
		t.Errorf("vegan cake = %+v", got[0])
	}
	stew := got[1]
	if stew.Name != "Hearty Beef Stew" || len(stew.Ingredients) != 2 || stew.AggregatedRating != 4.2 {
		t.Errorf("stew = %+v", stew)
	}
	if stew.URL != "https://www.food.com/recipe/hearty-beef-stew-2" {
		t.Errorf("stew url = %q", stew.URL)
	}
}

func TestSQLSourceRejectsBadTable(t *testing.T) {
	src := NewSQLSource(nil, DialectPostgres, "recipes; DROP TABLE x")
	if _, err := src.Load(context.Background()); err == nil {
		t.Error("expected invalid table error")
	}
}
