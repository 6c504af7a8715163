package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// UpsertKnowledgeSource inserts or replaces a KnowledgeSource by id, scoped
// to tenantID.
func (s *Store) UpsertKnowledgeSource(ctx context.Context, ks model.KnowledgeSource) error {
	rawMeta, err := json.Marshal(ks.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO knowledge_sources (id, tenant_id, kind, uri, text, status, version, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    kind = EXCLUDED.kind, uri = EXCLUDED.uri, text = EXCLUDED.text, status = EXCLUDED.status,
    version = EXCLUDED.version, metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at`,
		ks.ID, ks.TenantID, ks.Kind, ks.URI, ks.Text, ks.Status, ks.Version, rawMeta, ks.CreatedAt, ks.UpdatedAt)
	return err
}

// GetKnowledgeSource fetches a KnowledgeSource scoped to tenantID.
func (s *Store) GetKnowledgeSource(ctx context.Context, tenantID, id string) (model.KnowledgeSource, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, tenant_id, kind, uri, text, status, version, metadata, created_at, updated_at
FROM knowledge_sources WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	var ks model.KnowledgeSource
	var rawMeta []byte
	if err := row.Scan(&ks.ID, &ks.TenantID, &ks.Kind, &ks.URI, &ks.Text, &ks.Status, &ks.Version, &rawMeta, &ks.CreatedAt, &ks.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.KnowledgeSource{}, ErrNotFound
		}
		return model.KnowledgeSource{}, err
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &ks.Metadata); err != nil {
			return model.KnowledgeSource{}, err
		}
	}
	return ks, nil
}

// UpdateKnowledgeStatus sets status, version, and metadata after an
// ingestion step completes or fails, scoped to tenantID.
func (s *Store) UpdateKnowledgeStatus(ctx context.Context, tenantID, id string, status model.KnowledgeStatus, version int, metadata map[string]string) error {
	rawMeta, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE knowledge_sources SET status = $1, version = $2, metadata = $3, updated_at = NOW()
WHERE tenant_id = $4 AND id = $5`, status, version, rawMeta, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteKnowledgeSource removes a source row, scoped to tenantID. Callers
// must also delete its vectors from the vector store; the two deletes are
// not transactional across storage engines.
func (s *Store) DeleteKnowledgeSource(ctx context.Context, tenantID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM knowledge_sources WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
