package auth

import (
	"errors"
	"fmt"
)

// Policy load-time validation errors.
var (
	// ErrInvalidPolicy indicates a malformed policy rejected at snapshot
	// construction. The engine never sees malformed policies at
	// evaluation time.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// PolicyType classifies which subsystem a policy governs.
type PolicyType string

const (
	PolicyChat   PolicyType = "chat"
	PolicyModel  PolicyType = "model"
	PolicyTool   PolicyType = "tool"
	PolicyRag    PolicyType = "rag"
	PolicyPlugin PolicyType = "plugin"
)

// Actions evaluated by the engine.
const (
	ActionUse                = "use"
	ActionExecute            = "execute"
	ActionSearch             = "search"
	ActionCreate             = "create"
	ActionList               = "list"
	ActionGet                = "get"
	ActionAddMember          = "addMember"
	ActionSendPrivateMessage = "sendPrivateMessage"
)

// PolicyScope restricts which callers a policy applies to. Each field
// is optional; an empty field imposes no restriction. Non-empty fields
// must intersect the caller's corresponding scope field for the policy
// to match.
type PolicyScope struct {
	Roles          []string `json:"roles,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Departments    []string `json:"departments,omitempty"`
	Subdepartments []string `json:"subdepartments,omitempty"`
	UserIDs        []string `json:"userIds,omitempty"`
}

// Rules is the tagged union of type-specific policy parameters. Each
// variant carries only the fields relevant to its policy type; the
// engine dispatches on the concrete variant.
type Rules interface {
	policyType() PolicyType
}

// ChatRules parameterizes chat policies.
type ChatRules struct {
	// MaxMembers caps chat membership. Zero means unlimited.
	MaxMembers int `json:"maxMembers,omitempty"`

	// AllowPrivateMessages gates private messages. Nil defaults to
	// allowed.
	AllowPrivateMessages *bool `json:"allowPrivateMessages,omitempty"`
}

func (ChatRules) policyType() PolicyType { return PolicyChat }

// ModelRules parameterizes model-use policies.
type ModelRules struct {
	AllowedModels []string `json:"allowedModels,omitempty"`
	BlockedModels []string `json:"blockedModels,omitempty"`
	MaxTokens     int      `json:"maxTokens,omitempty"`
}

func (ModelRules) policyType() PolicyType { return PolicyModel }

// ToolRules parameterizes tool-execution policies.
type ToolRules struct {
	AllowedTools    []string `json:"allowedTools,omitempty"`
	BlockedTools    []string `json:"blockedTools,omitempty"`
	RequireApproval bool     `json:"requireApproval,omitempty"`
	ApproverRoles   []string `json:"approverRoles,omitempty"`
}

func (ToolRules) policyType() PolicyType { return PolicyTool }

// RagRules parameterizes retrieval policies. Retrieval is gated by
// scope filters rather than binary decisions, so these fields only
// narrow result scope.
type RagRules struct {
	AllowedDepartments []string `json:"allowedDepartments,omitempty"`
	AllowedTags        []string `json:"allowedTags,omitempty"`
	MaxResults         int      `json:"maxResults,omitempty"`
}

func (RagRules) policyType() PolicyType { return PolicyRag }

// PluginRules parameterizes plugin-use policies.
type PluginRules struct {
	AllowedPlugins []string `json:"allowedPlugins,omitempty"`
	BlockedPlugins []string `json:"blockedPlugins,omitempty"`
}

func (PluginRules) policyType() PolicyType { return PolicyPlugin }

// Policy is a named, prioritized authorization rule owned by exactly
// one tenant. Higher priority evaluates first. Policies are loaded as
// an immutable snapshot; the engine never mutates them.
type Policy struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	Type        PolicyType
	Scope       PolicyScope
	Rules       Rules
	Priority    int
	Enabled     bool
}

// Validate rejects malformed policies. Called at snapshot construction
// so evaluation can assume a well-formed set.
func (p Policy) Validate() error {
	if p.TenantID == "" {
		return fmt.Errorf("%w: policy %q missing tenant", ErrInvalidPolicy, p.ID)
	}
	switch p.Type {
	case PolicyChat, PolicyModel, PolicyTool, PolicyRag, PolicyPlugin:
	case "":
		return fmt.Errorf("%w: policy %q missing type", ErrInvalidPolicy, p.ID)
	default:
		return fmt.Errorf("%w: policy %q has unknown type %q", ErrInvalidPolicy, p.ID, p.Type)
	}
	if p.Rules == nil {
		return fmt.Errorf("%w: policy %q missing rules", ErrInvalidPolicy, p.ID)
	}
	if got := p.Rules.policyType(); got != p.Type {
		return fmt.Errorf("%w: policy %q declares type %q but carries %q rules", ErrInvalidPolicy, p.ID, p.Type, got)
	}
	return nil
}

// MatchesScope reports whether a caller context satisfies a policy
// scope. Every non-empty scope field must intersect the caller's
// corresponding field; empty fields impose no restriction.
func MatchesScope(ctx Context, scope PolicyScope) bool {
	if len(scope.UserIDs) > 0 {
		if ctx.UserID == "" || !intersects(scope.UserIDs, []string{ctx.UserID}) {
			return false
		}
	}
	if len(scope.Roles) > 0 && !intersects(ctx.Roles, scope.Roles) {
		return false
	}
	if len(scope.Tags) > 0 && !intersects(ctx.Tags, scope.Tags) {
		return false
	}
	if len(scope.Departments) > 0 {
		if ctx.Department == "" || !intersects(scope.Departments, []string{ctx.Department}) {
			return false
		}
	}
	if len(scope.Subdepartments) > 0 {
		if ctx.Subdepartment == "" || !intersects(scope.Subdepartments, []string{ctx.Subdepartment}) {
			return false
		}
	}
	return true
}
