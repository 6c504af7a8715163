package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// ListProcedures returns enabled procedures for a tenant.
func (s *Store) ListProcedures(ctx context.Context, tenantID string) ([]model.Procedure, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, tenant_id, name, trigger_type, trigger_condition, steps, enabled, version, created_at
FROM procedures WHERE tenant_id = $1 AND enabled = TRUE
ORDER BY id ASC
LIMIT 100`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Procedure
	for rows.Next() {
		var p model.Procedure
		var rawSteps []byte
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Trigger.Type, &p.Trigger.Condition, &rawSteps, &p.Enabled, &p.Version, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawSteps, &p.Steps); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertProcedure inserts or replaces a Procedure by id, scoped to tenantID.
func (s *Store) UpsertProcedure(ctx context.Context, p model.Procedure) error {
	rawSteps, err := json.Marshal(p.Steps)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO procedures (id, tenant_id, name, trigger_type, trigger_condition, steps, enabled, version, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name, trigger_type = EXCLUDED.trigger_type, trigger_condition = EXCLUDED.trigger_condition,
    steps = EXCLUDED.steps, enabled = EXCLUDED.enabled, version = EXCLUDED.version`,
		p.ID, p.TenantID, p.Name, p.Trigger.Type, p.Trigger.Condition, rawSteps, p.Enabled, p.Version, p.CreatedAt)
	return err
}

// GetConnector fetches a DataConnector scoped to tenantID.
func (s *Store) GetConnector(ctx context.Context, tenantID, id string) (model.DataConnector, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, tenant_id, name, provider, base_url, auth_mode, auth_params, response_mapping, mcp_tool_name, created_at
FROM data_connectors WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	var c model.DataConnector
	var rawAuth, rawMapping []byte
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Provider, &c.BaseURL, &c.AuthMode, &rawAuth, &rawMapping, &c.MCPToolName, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DataConnector{}, ErrNotFound
		}
		return model.DataConnector{}, err
	}
	if err := json.Unmarshal(rawAuth, &c.AuthParams); err != nil {
		return model.DataConnector{}, err
	}
	if err := json.Unmarshal(rawMapping, &c.ResponseMapping); err != nil {
		return model.DataConnector{}, err
	}
	return c, nil
}

// UpsertConnector inserts or replaces a DataConnector by id, scoped to tenantID.
func (s *Store) UpsertConnector(ctx context.Context, c model.DataConnector) error {
	rawAuth, err := json.Marshal(c.AuthParams)
	if err != nil {
		return err
	}
	rawMapping, err := json.Marshal(c.ResponseMapping)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO data_connectors (id, tenant_id, name, provider, base_url, auth_mode, auth_params, response_mapping, mcp_tool_name, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name, provider = EXCLUDED.provider, base_url = EXCLUDED.base_url,
    auth_mode = EXCLUDED.auth_mode, auth_params = EXCLUDED.auth_params,
    response_mapping = EXCLUDED.response_mapping, mcp_tool_name = EXCLUDED.mcp_tool_name`,
		c.ID, c.TenantID, c.Name, c.Provider, c.BaseURL, c.AuthMode, rawAuth, rawMapping, c.MCPToolName, c.CreatedAt)
	return err
}
