package store

import (
	"context"
	"fmt"

	"github.com/roach88/codefirst/internal/ir"
	"github.com/roach88/codefirst/internal/metadata"
)

// Save stores mapping under contextKey, replacing any earlier snapshot.
// The mapping is serialized to canonical JSON and fingerprinted with
// ir.ModelHash, so saving an unchanged model rewrites identical bytes.
func (s *Store) Save(ctx context.Context, contextKey string, mapping *metadata.DatabaseMapping) error {
	if contextKey == "" {
		return fmt.Errorf("save model: empty context key")
	}
	if mapping == nil {
		return fmt.Errorf("save model %s: nil mapping", contextKey)
	}

	data, err := MarshalMapping(mapping)
	if err != nil {
		return fmt.Errorf("save model %s: %w", contextKey, err)
	}
	hash, err := ir.ModelHash(mapping)
	if err != nil {
		return fmt.Errorf("save model %s: %w", contextKey, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO models (context_key, model_hash, mapping, seq)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM models))
		ON CONFLICT(context_key) DO UPDATE SET
			model_hash = excluded.model_hash,
			mapping = excluded.mapping,
			seq = excluded.seq
	`, contextKey, hash, data)
	if err != nil {
		return fmt.Errorf("save model %s: %w", contextKey, err)
	}

	s.logger.Debug("model saved", "context_key", contextKey, "model_hash", hash)
	return nil
}

// Delete removes the snapshot stored under contextKey.
// Returns false if there was nothing to delete.
func (s *Store) Delete(ctx context.Context, contextKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE context_key = ?`, contextKey)
	if err != nil {
		return false, fmt.Errorf("delete model %s: %w", contextKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete model %s: %w", contextKey, err)
	}
	return n > 0, nil
}
