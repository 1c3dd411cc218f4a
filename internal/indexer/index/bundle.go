package index

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/errors"
)

// ErrDuplicateID is wrapped when two corpus documents share an id.
var ErrDuplicateID = errors.New("duplicate document id")

// Bundle is the inverted index, IDF table and document norm table built from
// one corpus. It is never mutated after Build returns, so any number of
// goroutines may read it without locking.
type Bundle struct {
	postings map[string]PostingList
	idf      map[string]float64
	norms    map[DocID]float64
	docTerms map[DocID]int
	numDocs  int
}

// Build indexes docs. Each document contributes its distinct terms across all
// fields; the idf of a term is log2(N/(df+1)), which is zero or negative for
// terms present in at least half the corpus; the norm of a document is the
// euclidean length of its vector of term idf weights.
func Build(docs []Document) (*Bundle, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("building index: %w", apperrors.ErrEmptyCorpus)
	}

	b := &Bundle{
		postings: make(map[string]PostingList),
		norms:    make(map[DocID]float64, len(docs)),
		docTerms: make(map[DocID]int, len(docs)),
		numDocs:  len(docs),
	}
	docSets := make([]map[string]struct{}, len(docs))
	for i, doc := range docs {
		if _, dup := b.docTerms[doc.ID]; dup {
			return nil, fmt.Errorf("building index: %w: %d: %w", apperrors.ErrInvalidInput, doc.ID, ErrDuplicateID)
		}
		terms := tokenizer.TermSet(doc.Fields...)
		docSets[i] = terms
		b.docTerms[doc.ID] = len(terms)
		for term := range terms {
			b.postings[term] = append(b.postings[term], doc.ID)
		}
	}

	n := float64(len(docs))
	b.idf = make(map[string]float64, len(b.postings))
	for term, postings := range b.postings {
		b.idf[term] = math.Log2(n / float64(len(postings)+1))
	}

	for i, doc := range docs {
		var sum float64
		for term := range docSets[i] {
			w := b.idf[term]
			sum += w * w
		}
		b.norms[doc.ID] = math.Sqrt(sum)
	}
	return b, nil
}

// Postings returns the documents containing term, or nil. Callers must not
// modify the returned slice.
func (b *Bundle) Postings(term string) PostingList {
	return b.postings[term]
}

// IDF returns the weight of term and whether the term is in the vocabulary.
func (b *Bundle) IDF(term string) (float64, bool) {
	w, ok := b.idf[term]
	return w, ok
}

// DocFreq returns the number of documents containing term.
func (b *Bundle) DocFreq(term string) int {
	return len(b.postings[term])
}

// Norm returns the norm of id; unknown ids have norm 0.
func (b *Bundle) Norm(id DocID) float64 {
	return b.norms[id]
}

func (b *Bundle) NumDocs() int {
	return b.numDocs
}

func (b *Bundle) NumTerms() int {
	return len(b.postings)
}

// Vocabulary returns every indexed term in lexical order.
func (b *Bundle) Vocabulary() []string {
	terms := make([]string, 0, len(b.postings))
	for term := range b.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

func (b *Bundle) Stats() Stats {
	s := Stats{
		Documents: b.numDocs,
		Terms:     len(b.postings),
	}
	for _, postings := range b.postings {
		s.Postings += len(postings)
		if len(postings) > s.MaxPostingLen {
			s.MaxPostingLen = len(postings)
		}
	}
	for _, n := range b.docTerms {
		if n == 0 {
			s.EmptyDocs++
		}
	}
	if b.numDocs > 0 {
		s.AvgDocTerms = float64(s.Postings) / float64(b.numDocs)
	}
	return s
}
