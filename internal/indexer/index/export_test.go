package index

import "math"

// Scaled returns a copy of b whose idf weights and norms are multiplied by
// c. Postings are shared with b.
func (b *Bundle) Scaled(c float64) *Bundle {
	scaled := &Bundle{
		postings: b.postings,
		idf:      make(map[string]float64, len(b.idf)),
		norms:    make(map[DocID]float64, len(b.norms)),
		docTerms: b.docTerms,
		numDocs:  b.numDocs,
	}
	for term, w := range b.idf {
		scaled.idf[term] = w * c
	}
	for id, norm := range b.norms {
		scaled.norms[id] = norm * math.Abs(c)
	}
	return scaled
}
