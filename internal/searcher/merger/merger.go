package merger

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/ranker"
)

// Policy selects how per-query rankings are combined.
type Policy int

const (
	// ScoreSum adds each document's cosine scores across queries and ranks
	// by the total, highest first.
	ScoreSum Policy = iota
	// RankSum adds each document's 0-based positions in the rankings where
	// it appears and ranks by the total, lowest first.
	RankSum
)

func (p Policy) String() string {
	switch p {
	case ScoreSum:
		return "score_sum"
	case RankSum:
		return "rank_sum"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "score_sum":
		return ScoreSum, nil
	case "rank_sum":
		return RankSum, nil
	default:
		return 0, fmt.Errorf("unknown fusion policy %q", s)
	}
}

// Fused is one document in the combined ranking. Under RankSum, Score holds
// the summed rank.
type Fused struct {
	DocID index.DocID `json:"doc_id"`
	Score float64     `json:"score"`
}

// Fuse combines one scored list per query into a single ranking. A document
// absent from a list contributes nothing for that list under either policy.
func Fuse(lists [][]ranker.ScoredDoc, policy Policy) []Fused {
	totals := make(map[index.DocID]float64)
	switch policy {
	case RankSum:
		for _, list := range lists {
			ordered := make([]ranker.ScoredDoc, len(list))
			copy(ordered, list)
			ranker.SortByScore(ordered)
			for rank, doc := range ordered {
				totals[doc.DocID] += float64(rank)
			}
		}
	default:
		for _, list := range lists {
			for _, doc := range list {
				totals[doc.DocID] += doc.Score
			}
		}
	}

	result := make([]Fused, 0, len(totals))
	for id, total := range totals {
		result = append(result, Fused{DocID: id, Score: total})
	}
	ascending := policy == RankSum
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			if ascending {
				return result[i].Score < result[j].Score
			}
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	return result
}

// ScoreVectors returns, for each id, its cosine score in every list in list
// order, with 0 where the document did not score.
func ScoreVectors(lists [][]ranker.ScoredDoc, ids []index.DocID) map[index.DocID][]float64 {
	lookups := make([]map[index.DocID]float64, len(lists))
	for i, list := range lists {
		lookups[i] = ranker.Index(list)
	}
	vectors := make(map[index.DocID][]float64, len(ids))
	for _, id := range ids {
		vec := make([]float64, len(lists))
		for i, lookup := range lookups {
			vec[i] = lookup[id]
		}
		vectors[id] = vec
	}
	return vectors
}

// IDs returns the document ids of ranked in order.
func IDs(ranked []Fused) []index.DocID {
	ids := make([]index.DocID, len(ranked))
	for i, f := range ranked {
		ids[i] = f.DocID
	}
	return ids
}
