package index

// DocID identifies a recipe. Ids are assigned by the corpus and never change
// for the life of the process.
type DocID int64

// PostingList holds the ids of the documents containing a term, in corpus
// order. A document appears at most once per term.
type PostingList []DocID

// Document is the indexable view of a recipe: its id and the text fields
// whose terms it is retrievable by.
type Document struct {
	ID     DocID
	Fields []string
}

// Stats summarises a built bundle.
type Stats struct {
	Documents     int     `json:"documents"`
	Terms         int     `json:"terms"`
	Postings      int     `json:"postings"`
	EmptyDocs     int     `json:"empty_documents"`
	AvgDocTerms   float64 `json:"avg_document_terms"`
	MaxPostingLen int     `json:"max_posting_length"`
}
