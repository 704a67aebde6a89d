// Package rag builds scoped retrieval queries and executes them
// against the tenant's vector partition.
package rag

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
)

// Default search bounds applied when the caller does not override
// them.
const (
	DefaultLimit    = 10
	DefaultMinScore = 0.7
)

// Sentinel errors for query construction and execution.
var (
	// ErrInvalidQuery indicates an unusable query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrEmbeddingUnavailable indicates the query could not be
	// embedded.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
)

// Filters restrict retrieval by the chunk's stored access scope and
// provenance. Each non-empty field is an "any of" match.
type Filters struct {
	Departments        []string `json:"departments,omitempty"`
	Subdepartments     []string `json:"subdepartments,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	DocumentIDs        []string `json:"documentIds,omitempty"`
	DocumentVersionIDs []string `json:"documentVersionIds,omitempty"`
}

// Query is an ephemeral, per-request retrieval request.
type Query struct {
	// Text is the natural-language query to embed and search with.
	Text string

	// Limit is the maximum number of results. Default 10.
	Limit int

	// MinScore drops hits below this similarity. Default 0.7. The
	// engine never lowers it on empty results; retrying with a looser
	// threshold is the caller's call.
	MinScore float32

	// Filters restrict the search by scope and provenance.
	Filters Filters

	// Scope is the access scope that gated this query, kept for audit.
	Scope auth.AccessScope
}

// Validate validates the query.
func (q Query) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: text cannot be empty", ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidQuery, q.Limit)
	}
	if q.MinScore < 0 || q.MinScore > 1 {
		return fmt.Errorf("%w: min score must be in [0,1], got %v", ErrInvalidQuery, q.MinScore)
	}
	return nil
}

// FromAuthContext builds a query scoped to the caller: filters derive
// from the caller's department, subdepartment and tags. Explicit
// overrides win field by field over derived values.
func FromAuthContext(text string, actx auth.Context, overrides *Filters) Query {
	return fromScope(text, auth.ScopeFromContext(actx), overrides)
}

// FromMessageScope builds a query inheriting a message's access scope,
// used when retrieval augments an existing conversation message.
func FromMessageScope(text string, scope auth.AccessScope, overrides *Filters) Query {
	return fromScope(text, scope, overrides)
}

func fromScope(text string, scope auth.AccessScope, overrides *Filters) Query {
	derived := Filters{}
	if scope.Department != "" {
		derived.Departments = []string{scope.Department}
	}
	if scope.Subdepartment != "" {
		derived.Subdepartments = []string{scope.Subdepartment}
	}
	if len(scope.Tags) > 0 {
		derived.Tags = scope.Tags
	}

	if overrides != nil {
		derived = merge(derived, *overrides)
	}

	return Query{
		Text:     text,
		Limit:    DefaultLimit,
		MinScore: DefaultMinScore,
		Filters:  derived,
		Scope:    scope,
	}
}

// merge applies overrides field by field: a non-empty override field
// replaces the derived one, an empty field leaves it untouched.
func merge(derived, overrides Filters) Filters {
	if len(overrides.Departments) > 0 {
		derived.Departments = overrides.Departments
	}
	if len(overrides.Subdepartments) > 0 {
		derived.Subdepartments = overrides.Subdepartments
	}
	if len(overrides.Tags) > 0 {
		derived.Tags = overrides.Tags
	}
	if len(overrides.DocumentIDs) > 0 {
		derived.DocumentIDs = overrides.DocumentIDs
	}
	if len(overrides.DocumentVersionIDs) > 0 {
		derived.DocumentVersionIDs = overrides.DocumentVersionIDs
	}
	return derived
}
