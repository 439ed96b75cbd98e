package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/photo-dedup/internal/feature"
)

// FeatureCache stores image embeddings in the feature_vectors table.
type FeatureCache struct {
	pool *Pool
}

var _ feature.Cache = (*FeatureCache)(nil)

// NewFeatureCache creates a PostgreSQL-backed embedding cache.
func NewFeatureCache(pool *Pool) *FeatureCache {
	return &FeatureCache{pool: pool}
}

// Get returns the cached embedding for an image content hash and model.
func (c *FeatureCache) Get(ctx context.Context, contentHash, model string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := c.pool.QueryRow(ctx, `
		SELECT embedding FROM feature_vectors
		WHERE content_hash = $1 AND model = $2
	`, contentHash, model).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query feature vector: %w", err)
	}
	return vec.Slice(), true, nil
}

// Put stores or replaces an embedding.
func (c *FeatureCache) Put(ctx context.Context, contentHash, model string, embedding []float32) error {
	if len(embedding) == 0 {
		return errors.New("empty embedding")
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO feature_vectors (content_hash, model, dim, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash, model) DO UPDATE SET
			dim = EXCLUDED.dim,
			embedding = EXCLUDED.embedding,
			created_at = NOW()
	`, contentHash, model, len(embedding), pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("store feature vector: %w", err)
	}
	return nil
}

// Count returns the number of cached embeddings for model.
func (c *FeatureCache) Count(ctx context.Context, model string) (int, error) {
	var count int
	err := c.pool.QueryRow(ctx, "SELECT COUNT(*) FROM feature_vectors WHERE model = $1", model).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count feature vectors: %w", err)
	}
	return count, nil
}

// Purge deletes every cached embedding for model and returns how many were removed.
func (c *FeatureCache) Purge(ctx context.Context, model string) (int64, error) {
	result, err := c.pool.Exec(ctx, "DELETE FROM feature_vectors WHERE model = $1", model)
	if err != nil {
		return 0, fmt.Errorf("purge feature vectors: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge feature vectors: %w", err)
	}
	return n, nil
}
