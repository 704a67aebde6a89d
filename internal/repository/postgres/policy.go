package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
	"github.com/fyrsmithlabs/knowledged/internal/repository"
)

// PolicyStore implements repository.PolicyRepository. Scope and rules
// are stored as JSONB; rules decode into the variant matching the
// policy's type.
type PolicyStore struct {
	pool *pgxpool.Pool
}

// NewPolicyStore creates a PolicyStore on an existing pool.
func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

func (s *PolicyStore) ListByTenant(ctx context.Context, tenantID string) ([]auth.Policy, error) {
	const query = `
		SELECT id, tenant_id, name, description, type, scope, rules, priority, enabled
		FROM policies
		WHERE tenant_id = $1
		ORDER BY priority DESC`

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()
	return collectPolicies(rows)
}

func (s *PolicyStore) ListEnabled(ctx context.Context) ([]auth.Policy, error) {
	const query = `
		SELECT id, tenant_id, name, description, type, scope, rules, priority, enabled
		FROM policies
		WHERE enabled
		ORDER BY tenant_id, priority DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list enabled policies: %w", err)
	}
	defer rows.Close()
	return collectPolicies(rows)
}

func (s *PolicyStore) Create(ctx context.Context, policy *auth.Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO policies (id, tenant_id, name, description, type, scope, rules, priority, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	scope, err := json.Marshal(policy.Scope)
	if err != nil {
		return fmt.Errorf("encode policy scope: %w", err)
	}
	rules, err := json.Marshal(policy.Rules)
	if err != nil {
		return fmt.Errorf("encode policy rules: %w", err)
	}

	_, err = s.pool.Exec(ctx, query,
		policy.ID, policy.TenantID, policy.Name, policy.Description,
		policy.Type, scope, rules, policy.Priority, policy.Enabled)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

func (s *PolicyStore) SetEnabled(ctx context.Context, tenantID, policyID string, enabled bool) error {
	const query = `UPDATE policies SET enabled = $3 WHERE tenant_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query, tenantID, policyID, enabled)
	if err != nil {
		return fmt.Errorf("update policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: policy %s", repository.ErrNotFound, policyID)
	}
	return nil
}

func (s *PolicyStore) Delete(ctx context.Context, tenantID, policyID string) error {
	const query = `DELETE FROM policies WHERE tenant_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query, tenantID, policyID)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: policy %s", repository.ErrNotFound, policyID)
	}
	return nil
}

func collectPolicies(rows pgx.Rows) ([]auth.Policy, error) {
	policies := make([]auth.Policy, 0)
	for rows.Next() {
		var (
			policy auth.Policy
			scope  []byte
			rules  []byte
		)
		if err := rows.Scan(&policy.ID, &policy.TenantID, &policy.Name, &policy.Description,
			&policy.Type, &scope, &rules, &policy.Priority, &policy.Enabled); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		if len(scope) > 0 {
			if err := json.Unmarshal(scope, &policy.Scope); err != nil {
				return nil, fmt.Errorf("decode policy scope: %w", err)
			}
		}
		decoded, err := DecodeRules(policy.Type, rules)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", policy.ID, err)
		}
		policy.Rules = decoded
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	return policies, nil
}

// DecodeRules unmarshals stored rule JSON into the variant matching
// the policy type.
func DecodeRules(policyType auth.PolicyType, data []byte) (auth.Rules, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	switch policyType {
	case auth.PolicyChat:
		var r auth.ChatRules
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode chat rules: %w", err)
		}
		return r, nil
	case auth.PolicyModel:
		var r auth.ModelRules
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode model rules: %w", err)
		}
		return r, nil
	case auth.PolicyTool:
		var r auth.ToolRules
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode tool rules: %w", err)
		}
		return r, nil
	case auth.PolicyRag:
		var r auth.RagRules
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode rag rules: %w", err)
		}
		return r, nil
	case auth.PolicyPlugin:
		var r auth.PluginRules
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode plugin rules: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown policy type %q", auth.ErrInvalidPolicy, policyType)
	}
}

var _ repository.PolicyRepository = (*PolicyStore)(nil)
