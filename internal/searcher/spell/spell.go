// Package spell rewrites out-of-vocabulary query terms to the closest
// indexed term by normalized edit distance.
package spell

import (
	"math"

	"github.com/agnivade/levenshtein"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
)

const (
	DefaultThreshold     = 0.8
	DefaultMinTermLength = 3

	lengthSlack = 1e-9
)

type Options struct {
	// Threshold is the lowest similarity, 1 - distance/max(len), accepted
	// as a correction.
	Threshold float64
	// MinTermLength is the shortest unknown term considered for correction.
	MinTermLength int
}

type candidate struct {
	term string
	df   int
}

// Corrector is read-only after New and safe for concurrent use.
type Corrector struct {
	vocab     map[string]struct{}
	byLen     map[int][]candidate
	threshold float64
	minLen    int
}

func New(b *index.Bundle, opts Options) *Corrector {
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}
	if opts.MinTermLength <= 0 {
		opts.MinTermLength = DefaultMinTermLength
	}
	c := &Corrector{
		vocab:     make(map[string]struct{}, b.NumTerms()),
		byLen:     make(map[int][]candidate),
		threshold: opts.Threshold,
		minLen:    opts.MinTermLength,
	}
	for _, term := range b.Vocabulary() {
		c.vocab[term] = struct{}{}
		c.byLen[len(term)] = append(c.byLen[len(term)], candidate{term: term, df: b.DocFreq(term)})
	}
	return c
}

// Correct returns term unchanged when it is indexed. Otherwise it returns
// the indexed term with the highest similarity, provided the similarity
// reaches the threshold; ties go to the term in more documents, then to the
// lexically smaller term. The boolean is false when no term qualifies.
func (c *Corrector) Correct(term string) (string, bool) {
	if _, ok := c.vocab[term]; ok {
		return term, true
	}
	if len(term) < c.minLen {
		return "", false
	}

	// sim >= t implies |len(a)-len(b)| <= (1-t)*max(len(a), len(b)).
	n := len(term)
	maxLen := int(math.Floor(float64(n)/c.threshold + lengthSlack))
	minLen := int(math.Ceil(float64(n)*c.threshold - lengthSlack))

	var (
		best    candidate
		bestSim = -1.0
	)
	for l := minLen; l <= maxLen; l++ {
		for _, cand := range c.byLen[l] {
			sim := Similarity(term, cand.term)
			if sim < c.threshold {
				continue
			}
			if sim > bestSim ||
				(sim == bestSim && (cand.df > best.df || (cand.df == best.df && cand.term < best.term))) {
				best, bestSim = cand, sim
			}
		}
	}
	if bestSim < 0 {
		return "", false
	}
	return best.term, true
}

// Similarity is 1 - levenshtein(a, b)/max(len(a), len(b)); two empty
// strings are identical. Terms are ASCII, so rune and byte lengths agree.
func Similarity(a, b string) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
