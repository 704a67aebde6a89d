package auth

import (
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
)

// defaultApproverRoles is the fallback approver set when no matched
// tool policy names approver roles.
var defaultApproverRoles = []string{"chat_owner", "dept_admin", "tenant_admin"}

// Resource carries the optional target of a policy decision. Only the
// fields relevant to the evaluated action are consulted.
type Resource struct {
	// ModelID is the target of model.use decisions.
	ModelID string

	// ToolName is the target of tool.execute decisions.
	ToolName string

	// PluginID is the target of plugin.use decisions.
	PluginID string

	// MemberCount is the current chat membership for chat.addMember
	// decisions.
	MemberCount int
}

// EngineConfig holds evaluation settings.
type EngineConfig struct {
	// DefaultAllow is the decision when no policy matches the caller.
	// The reference deployment runs permissive (true): tenants without
	// policies are unrestricted. This inverts the usual default-deny
	// posture, so it is an explicit configuration choice rather than a
	// constant.
	DefaultAllow bool
}

// DefaultEngineConfig returns the reference configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{DefaultAllow: true}
}

// snapshot is an immutable, evaluation-ready policy set: enabled only,
// sorted descending by priority.
type snapshot struct {
	policies []Policy
}

// Engine resolves permission decisions from a prioritized policy
// snapshot. The snapshot is swapped atomically on Reload; in-flight
// evaluations keep the snapshot they started with.
type Engine struct {
	cfg    EngineConfig
	snap   atomic.Pointer[snapshot]
	logger *zap.Logger
}

// NewEngine builds an engine from a policy set. Malformed policies are
// rejected here, not at evaluation time.
func NewEngine(policies []Policy, cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	snap, err := buildSnapshot(policies)
	if err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, logger: logger.Named("policy")}
	e.snap.Store(snap)
	return e, nil
}

// Reload replaces the policy snapshot atomically. On validation
// failure the previous snapshot stays in effect.
func (e *Engine) Reload(policies []Policy) error {
	snap, err := buildSnapshot(policies)
	if err != nil {
		return fmt.Errorf("reloading policies: %w", err)
	}
	e.snap.Store(snap)
	e.logger.Info("policy snapshot reloaded", zap.Int("policies", len(snap.policies)))
	return nil
}

func buildSnapshot(policies []Policy) (*snapshot, error) {
	enabled := make([]Policy, 0, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority > enabled[j].Priority
	})
	return &snapshot{policies: enabled}, nil
}

// PoliciesFor returns the enabled policies of the given type that
// match the caller's tenant and scope, in priority order.
func (e *Engine) PoliciesFor(ctx Context, ptype PolicyType) []Policy {
	snap := e.snap.Load()
	var matched []Policy
	for _, p := range snap.policies {
		if p.Type != ptype || p.TenantID != ctx.TenantID {
			continue
		}
		if !MatchesScope(ctx, p.Scope) {
			continue
		}
		matched = append(matched, p)
	}
	return matched
}

// IsAllowed resolves a permission decision for one action.
//
// Matched policies are evaluated in priority order; the first rule
// evaluation that returns a definite decision wins. With no matching
// policies the configured default applies; with matches but no
// decision, the action is denied.
func (e *Engine) IsAllowed(ctx Context, ptype PolicyType, action string, res Resource) bool {
	matched := e.PoliciesFor(ctx, ptype)
	if len(matched) == 0 {
		return e.cfg.DefaultAllow
	}
	for _, p := range matched {
		if allowed, decided := evaluate(p, action, res); decided {
			e.logger.Debug("policy decided",
				zap.String("tenant", ctx.TenantID),
				zap.String("policy", p.ID),
				zap.String("type", string(ptype)),
				zap.String("action", action),
				zap.Bool("allowed", allowed),
			)
			return allowed
		}
	}
	return false
}

// RequiresApproval reports whether a tool execution needs approval:
// any matched tool policy demanding it, or a high risk level.
func (e *Engine) RequiresApproval(ctx Context, toolName, riskLevel string) bool {
	for _, p := range e.PoliciesFor(ctx, PolicyTool) {
		if rules, ok := p.Rules.(ToolRules); ok && rules.RequireApproval {
			return true
		}
	}
	return riskLevel == "high"
}

// ApproverRoles returns the union of approver roles from matched tool
// policies, falling back to the built-in approver set when none are
// configured.
func (e *Engine) ApproverRoles(ctx Context, toolName string) []string {
	var roles []string
	seen := make(map[string]struct{})
	for _, p := range e.PoliciesFor(ctx, PolicyTool) {
		rules, ok := p.Rules.(ToolRules)
		if !ok {
			continue
		}
		for _, r := range rules.ApproverRoles {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		return append([]string(nil), defaultApproverRoles...)
	}
	return roles
}

// evaluate applies one policy's rules to an action. The second return
// is false when the policy has no opinion on the action.
func evaluate(p Policy, action string, res Resource) (allowed, decided bool) {
	switch rules := p.Rules.(type) {
	case ModelRules:
		return evaluateAllowBlock(action, ActionUse, res.ModelID, rules.AllowedModels, rules.BlockedModels)
	case ToolRules:
		return evaluateAllowBlock(action, ActionExecute, res.ToolName, rules.AllowedTools, rules.BlockedTools)
	case PluginRules:
		return evaluateAllowBlock(action, ActionUse, res.PluginID, rules.AllowedPlugins, rules.BlockedPlugins)
	case RagRules:
		if action == ActionSearch {
			// Retrieval restriction happens via scope filters, not
			// binary gating.
			return true, true
		}
		return false, false
	case ChatRules:
		return evaluateChat(rules, action, res)
	default:
		return false, false
	}
}

func evaluateAllowBlock(action, wantAction, target string, allowed, blocked []string) (bool, bool) {
	if action != wantAction || target == "" {
		return false, false
	}
	if intersects(blocked, []string{target}) {
		return false, true
	}
	if len(allowed) > 0 {
		return intersects(allowed, []string{target}), true
	}
	return false, false
}

func evaluateChat(rules ChatRules, action string, res Resource) (bool, bool) {
	switch action {
	case ActionCreate, ActionList, ActionGet:
		return true, true
	case ActionAddMember:
		if rules.MaxMembers > 0 && res.MemberCount >= rules.MaxMembers {
			return false, true
		}
		return false, false
	case ActionSendPrivateMessage:
		if rules.AllowPrivateMessages != nil {
			return *rules.AllowPrivateMessages, true
		}
		return true, true
	default:
		return false, false
	}
}
