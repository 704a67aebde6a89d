// Package auth provides the authorization core: per-request caller
// identity, access scopes, and the prioritized policy engine that gates
// every tenant-scoped operation.
package auth

import "slices"

// Context is a caller's resolved identity for one request.
//
// It is created once per request by an external identity resolver
// (token middleware, API gateway) and is immutable for the request's
// lifetime. Nothing in this package persists it.
type Context struct {
	// TenantID is the owning tenant (required).
	TenantID string

	// UserID identifies the calling user. Empty for tenant-level
	// callers (service credentials acting for the whole tenant).
	UserID string

	// Roles held by the caller within the tenant. Unordered, unique.
	Roles []string

	// Tags are free-form labels attached to the caller.
	Tags []string

	// Department and Subdepartment locate the caller in the tenant's
	// org tree. Either may be empty.
	Department    string
	Subdepartment string

	// Scope is derived from the fields above at construction time.
	Scope Scope
}

// Scope is the matchable projection of a caller's identity. Each field
// is a set; an empty field means "nothing to match against".
type Scope struct {
	Departments    []string
	Subdepartments []string
	Tags           []string
	Roles          []string
}

// NewContext builds a request Context and derives its Scope.
func NewContext(tenantID, userID string, roles, tags []string, department, subdepartment string) Context {
	scope := Scope{
		Tags:  tags,
		Roles: roles,
	}
	if department != "" {
		scope.Departments = []string{department}
	}
	if subdepartment != "" {
		scope.Subdepartments = []string{subdepartment}
	}
	return Context{
		TenantID:      tenantID,
		UserID:        userID,
		Roles:         roles,
		Tags:          tags,
		Department:    department,
		Subdepartment: subdepartment,
		Scope:         scope,
	}
}

// HasRole reports whether the caller holds the given role.
func (c Context) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasAnyRole reports whether the caller holds at least one of the roles.
func (c Context) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if slices.Contains(c.Roles, r) {
			return true
		}
	}
	return false
}

// HasTag reports whether the caller carries the given tag.
func (c Context) HasTag(tag string) bool {
	return slices.Contains(c.Tags, tag)
}
