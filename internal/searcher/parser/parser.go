package parser

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/tokenizer"
)

// Corrector maps a query term to an indexed term, reporting false when the
// term should be dropped.
type Corrector interface {
	Correct(term string) (string, bool)
}

// QueryPlan is the scored form of one raw query string: its distinct terms
// in lexical order plus the rewrites made to get there.
type QueryPlan struct {
	Raw         string            `json:"raw"`
	Terms       []string          `json:"terms"`
	Corrections map[string]string `json:"corrections,omitempty"`
	Dropped     []string          `json:"dropped,omitempty"`
}

// Parse tokenizes raw. With a nil corrector every term is kept; otherwise
// each term is passed through c, rewritten terms are recorded in
// Corrections and rejected terms in Dropped.
func Parse(raw string, c Corrector) *QueryPlan {
	plan := &QueryPlan{
		Raw:   raw,
		Terms: make([]string, 0),
	}
	seen := make(map[string]struct{})
	dropped := make(map[string]struct{})
	for term := range tokenizer.Terms(raw) {
		if c != nil {
			fixed, ok := c.Correct(term)
			if !ok {
				if _, dup := dropped[term]; !dup {
					dropped[term] = struct{}{}
					plan.Dropped = append(plan.Dropped, term)
				}
				continue
			}
			if fixed != term {
				if plan.Corrections == nil {
					plan.Corrections = make(map[string]string)
				}
				plan.Corrections[term] = fixed
				term = fixed
			}
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		plan.Terms = append(plan.Terms, term)
	}
	sort.Strings(plan.Terms)
	return plan
}

// TermSet returns the plan's terms as a set for scoring.
func (p *QueryPlan) TermSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Terms))
	for _, term := range p.Terms {
		set[term] = struct{}{}
	}
	return set
}

func (p *QueryPlan) IsEmpty() bool {
	return len(p.Terms) == 0
}
