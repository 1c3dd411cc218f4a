package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
)

type ScoredDoc struct {
	DocID index.DocID `json:"doc_id"`
	Score float64     `json:"score"`
}

// Score computes the cosine similarity between the query term set and every
// document sharing at least one term with it. The query vector holds the idf
// of each in-vocabulary term, so a matching term contributes idf*idf to the
// dot product. Documents whose dot product is zero are absent from the
// result, and so is every document when the query vector has zero length. The result is
// ordered by score descending, ties by id ascending.
func Score(terms map[string]struct{}, b *index.Bundle) []ScoredDoc {
	dots := make(map[index.DocID]float64)
	var queryNorm float64
	for term := range terms {
		w, ok := b.IDF(term)
		if !ok {
			continue
		}
		queryNorm += w * w
		for _, id := range b.Postings(term) {
			dots[id] += w * w
		}
	}
	if queryNorm == 0 {
		return []ScoredDoc{}
	}
	queryNorm = math.Sqrt(queryNorm)

	result := make([]ScoredDoc, 0, len(dots))
	for id, dot := range dots {
		docNorm := b.Norm(id)
		if dot == 0 || docNorm == 0 {
			continue
		}
		result = append(result, ScoredDoc{
			DocID: id,
			Score: dot / (queryNorm * docNorm),
		})
	}
	SortByScore(result)
	return result
}

// SortByScore orders docs by score descending, ties by id ascending.
func SortByScore(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
}

// Index returns score lookups keyed by document id.
func Index(docs []ScoredDoc) map[index.DocID]float64 {
	m := make(map[index.DocID]float64, len(docs))
	for _, d := range docs {
		m[d.DocID] = d.Score
	}
	return m
}
