package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/examvault/internal/models"
)

// Upsert writes vector points into chunk_vectors, replacing points with the same id.
func (c *DatabaseClient) Upsert(ctx context.Context, points []models.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chunk_vectors (id, document_hash, embedding, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			document_hash = EXCLUDED.document_hash,
			embedding     = EXCLUDED.embedding,
			payload       = EXCLUDED.payload
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode payload %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Payload.DocumentHash, pgvector.NewVector(p.Vector), string(payload),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert vector %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// Search returns the nearest points by cosine distance within the filtered documents.
func (c *DatabaseClient) Search(ctx context.Context, vector []float32, filter models.SearchFilter, limit int) ([]models.SearchHit, error) {
	if len(filter.DocumentHashes) == 0 || limit <= 0 {
		return nil, nil
	}
	const q = `
		SELECT id, 1 - (embedding <=> $1) AS score, payload
		FROM chunk_vectors
		WHERE document_hash = ANY($2)
		ORDER BY embedding <=> $1
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(vector), filter.DocumentHashes, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchHit
	for rows.Next() {
		var (
			hit     models.SearchHit
			score   float64
			payload []byte
		)
		if err := rows.Scan(&hit.ID, &score, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &hit.Payload); err != nil {
			return nil, fmt.Errorf("decode payload %s: %w", hit.ID, err)
		}
		hit.Score = float32(score)
		out = append(out, hit)
	}
	return out, rows.Err()
}
