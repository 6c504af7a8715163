package pg

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// ListPolicies returns enabled policies for a tenant and stage, ordered by
// priority ascending; policy.Evaluate re-sorts them so that higher priority
// values evaluate first.
func (s *Store) ListPolicies(ctx context.Context, tenantID string, stage model.PolicyStage) ([]model.Policy, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, tenant_id, name, stage, priority, rules, enabled, created_at
FROM policies WHERE tenant_id = $1 AND stage = $2 AND enabled = TRUE
ORDER BY priority ASC`, tenantID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Policy
	for rows.Next() {
		var p model.Policy
		var rawRules []byte
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Stage, &p.Priority, &rawRules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawRules, &p.Rules); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPolicy inserts or replaces a Policy by id, scoped to tenantID.
func (s *Store) UpsertPolicy(ctx context.Context, p model.Policy) error {
	rawRules, err := json.Marshal(p.Rules)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO policies (id, tenant_id, name, stage, priority, rules, enabled, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name, stage = EXCLUDED.stage, priority = EXCLUDED.priority,
    rules = EXCLUDED.rules, enabled = EXCLUDED.enabled`,
		p.ID, p.TenantID, p.Name, p.Stage, p.Priority, rawRules, p.Enabled, p.CreatedAt)
	return err
}
