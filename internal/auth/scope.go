package auth

import "slices"

// AccessScope tags a message or document chunk with the provenance of
// its originating author: department, subdepartment, tags, and roles.
//
// An AccessScope is computed once, at artifact creation time, from the
// author's Context, and is immutable thereafter. It travels with the
// artifact into the vector index payload and the relational store.
type AccessScope struct {
	Department    string   `json:"department,omitempty"`
	Subdepartment string   `json:"subdepartment,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Roles         []string `json:"roles,omitempty"`
}

// ScopeFromContext projects a caller Context into an AccessScope.
func ScopeFromContext(ctx Context) AccessScope {
	return AccessScope{
		Department:    ctx.Department,
		Subdepartment: ctx.Subdepartment,
		Tags:          ctx.Tags,
		Roles:         ctx.Roles,
	}
}

// Allows reports whether this scope satisfies the requirements of a
// resource's scope. For every non-empty field on the resource, the
// corresponding field here must match: department and subdepartment by
// equality, tags and roles by non-empty intersection. Absent resource
// fields impose no constraint.
//
// This is the ACL gate applied when filtering retrieval results against
// a message's inherited scope.
func (s AccessScope) Allows(resource AccessScope) bool {
	if resource.Department != "" && s.Department != resource.Department {
		return false
	}
	if resource.Subdepartment != "" && s.Subdepartment != resource.Subdepartment {
		return false
	}
	if len(resource.Tags) > 0 && !intersects(s.Tags, resource.Tags) {
		return false
	}
	if len(resource.Roles) > 0 && !intersects(s.Roles, resource.Roles) {
		return false
	}
	return true
}

// IsEmpty reports whether the scope carries no restrictions at all.
func (s AccessScope) IsEmpty() bool {
	return s.Department == "" && s.Subdepartment == "" && len(s.Tags) == 0 && len(s.Roles) == 0
}

func intersects(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}
