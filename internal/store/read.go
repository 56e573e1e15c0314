package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/services"
)

var _ services.ModelStore = (*Store)(nil)

// ModelInfo summarizes a stored snapshot without decoding it.
type ModelInfo struct {
	ContextKey string
	ModelHash  string
	Seq        int64
}

// TryLoad returns the snapshot stored under contextKey.
// Returns ok=false (and no error) when nothing is stored.
func (s *Store) TryLoad(ctx context.Context, contextKey string) (*metadata.DatabaseMapping, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT mapping FROM models WHERE context_key = ?
	`, contextKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("model store miss", "context_key", contextKey)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load model %s: %w", contextKey, err)
	}

	mapping, err := UnmarshalMapping(data)
	if err != nil {
		return nil, false, fmt.Errorf("load model %s: %w", contextKey, err)
	}
	s.logger.Debug("model store hit", "context_key", contextKey)
	return mapping, true, nil
}

// Models lists every stored snapshot in save order.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) Models(ctx context.Context) ([]ModelInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT context_key, model_hash, seq
		FROM models
		ORDER BY seq ASC, context_key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	models := []ModelInfo{}
	for rows.Next() {
		var m ModelInfo
		if err := rows.Scan(&m.ContextKey, &m.ModelHash, &m.Seq); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return models, nil
}
