package benchmark

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/spell"
)

func benchSnapshot(b *testing.B) *indexer.Snapshot {
	b.Helper()
	snap, err := indexer.BuildSnapshot(syntheticRecipes(10000))
	if err != nil {
		b.Fatal(err)
	}
	return snap
}

func BenchmarkRankerScore(b *testing.B) {
	snap := benchSnapshot(b)
	terms := map[string]struct{}{"chocolate": {}, "cake": {}, "vanilla": {}}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ranker.Score(terms, snap.Bundle)
	}
}

// BenchmarkSearch measures the pure pipeline for one to four fused queries.
func BenchmarkSearch(b *testing.B) {
	snap := benchSnapshot(b)
	cases := map[string]*executor.Request{
		"single":     {Queries: []string{"chocolate cake"}},
		"fused_4":    {Queries: []string{"chocolate cake", "beef stew", "lemon", "garlic rice"}},
		"vegan_only": {Queries: []string{"chocolate cake", "beef stew"}, Require: recipe.Attributes{Vegan: true}},
	}
	for name, req := range cases {
		for _, policy := range []merger.Policy{merger.ScoreSum, merger.RankSum} {
			b.Run(name+"/"+policy.String(), func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					_ = executor.Search(snap.Bundle, snap.Catalog, req, executor.Options{Policy: policy})
				}
			})
		}
	}
}

func BenchmarkExecuteParallel(b *testing.B) {
	engine := indexer.NewStaticEngine(benchSnapshot(b))
	exec := executor.New(engine, executor.Options{}, executor.SpellOptions{Enabled: true}, nil)
	req := &executor.Request{Queries: []string{"choclate cake", "beef stew"}}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := exec.Execute(ctx, req); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkSpellCorrect(b *testing.B) {
	c := spell.New(benchSnapshot(b).Bundle, spell.Options{})
	misspelled := []string{"choclate", "vanila", "mushrom", "spinnach", "gingr"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Correct(misspelled[i%len(misspelled)])
	}
}
