// Package validator checks search input before it reaches the executor. It
// enforces query count and length limits, the result size range and the
// set of known dietary attributes, and returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/errors"
)

// Limits bounds a single search request.
type Limits struct {
	MaxQueries     int
	MaxQueryLength int
	MaxResults     int
	DefaultLimit   int
}

// SearchInput is a search request as received, before validation.
type SearchInput struct {
	Queries    []string `json:"queries"`
	Attributes []string `json:"require"`
	// Limit of 0 means the default.
	Limit int `json:"limit"`
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidateSearch checks in against limits and returns the executor request.
// Blank queries keep their position so that similarity scores stay aligned
// with the queries sent, but they do not count against MaxQueries. An input
// whose queries are all blank has no queries and yields an empty result.
func ValidateSearch(in SearchInput, limits Limits) (*executor.Request, error) {
	errs := make(map[string]string)

	queries := make([]string, 0, len(in.Queries))
	nonBlank := 0
	for _, q := range in.Queries {
		q = strings.TrimSpace(q)
		if q != "" {
			nonBlank++
		}
		if limits.MaxQueryLength > 0 && len(q) > limits.MaxQueryLength {
			errs["queries"] = fmt.Sprintf("each query must be at most %d bytes", limits.MaxQueryLength)
		}
		queries = append(queries, q)
	}
	if nonBlank == 0 {
		queries = nil
	}
	if limits.MaxQueries > 0 && nonBlank > limits.MaxQueries {
		errs["queries"] = fmt.Sprintf("at most %d queries per request", limits.MaxQueries)
	}

	limit := in.Limit
	if limit == 0 {
		limit = limits.DefaultLimit
	}
	if limit < 1 || (limits.MaxResults > 0 && limit > limits.MaxResults) {
		errs["limit"] = fmt.Sprintf("limit must be between 1 and %d", limits.MaxResults)
	}

	var required recipe.Attributes
	var unknown []string
	for _, name := range in.Attributes {
		if err := required.Set(name); err != nil {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		errs["require"] = fmt.Sprintf("unknown dietary attributes %q; known: %s",
			unknown, strings.Join(recipe.AttributeNames, ", "))
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return &executor.Request{Queries: queries, Require: required, Limit: limit}, nil
}
