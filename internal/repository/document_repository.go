// Package repository implements Postgres data access for documents,
// chunks, and embeddings, including pgvector nearest-neighbor search.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/paperquery/paperquery/internal/models"
)

// ErrNotFound marks lookups and deletes that matched no document.
var ErrNotFound = errors.New("not found")

// ErrDimensionMismatch marks vectors whose width disagrees with the
// embeddings column. Not retryable: the embedding backend is producing the
// wrong shape.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// VectorDimensions is the fixed embedding width; the embeddings column is
// declared vector(1024) and writes are validated against it.
const VectorDimensions = 1024

// DocumentRepository handles the document/chunk/embedding triad.
type DocumentRepository struct {
	db   *sqlx.DB
	dims int
}

// NewDocumentRepository creates a repository over db.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db, dims: VectorDimensions}
}

// InsertDocument persists one document with its chunks and, when vectors is
// non-nil, their embeddings, in a single transaction: either the full triad
// commits or nothing does. vectors must be nil (dry ingestion) or exactly
// one vector per chunk.
func (r *DocumentRepository) InsertDocument(ctx context.Context, doc *models.Document, chunks []string, vectors [][]float32) (int64, error) {
	if vectors != nil && len(vectors) != len(chunks) {
		return 0, fmt.Errorf("vector count %d does not match chunk count %d", len(vectors), len(chunks))
	}
	if vectors != nil {
		for i, vec := range vectors {
			if len(vec) != r.dims {
				return 0, fmt.Errorf("vector %d has %d dimensions, want %d: %w", i, len(vec), r.dims, ErrDimensionMismatch)
			}
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var docID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO documents (title, s3_uri, mime) VALUES ($1, $2, $3) RETURNING id`,
		doc.Title, doc.S3URI, doc.Mime,
	).Scan(&docID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}

	for seq, content := range chunks {
		var chunkID int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO chunks (document_id, seq, content, metadata) VALUES ($1, $2, $3, '{}') RETURNING id`,
			docID, seq, content,
		).Scan(&chunkID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk %d: %w", seq, err)
		}

		if vectors != nil {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO embeddings (chunk_id, vector) VALUES ($1, CAST($2 AS vector))`,
				chunkID, VectorLiteral(vectors[seq]),
			)
			if err != nil {
				return 0, fmt.Errorf("failed to insert embedding for chunk %d: %w", seq, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit ingestion: %w", err)
	}
	return docID, nil
}

// searchQuery orders by L2 distance ascending with chunk id as the
// deterministic tiebreak; the inner DISTINCT ON guarantees at most one row
// per chunk even if concurrent writes ever produce duplicates.
const searchQuery = `
	SELECT title, seq, content, distance FROM (
		SELECT DISTINCT ON (c.id)
			c.id       AS chunk_id,
			c.seq      AS seq,
			d.title    AS title,
			c.content  AS content,
			(e.vector <-> CAST($1 AS vector)) AS distance
		FROM embeddings e
		JOIN chunks    c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		ORDER BY c.id, distance
	) p
	ORDER BY distance, chunk_id
	LIMIT $2`

// SearchPassages returns the topK chunks nearest to vec, ascending by
// distance. An empty index yields an empty slice, not an error.
func (r *DocumentRepository) SearchPassages(ctx context.Context, vec []float32, topK int) ([]models.Passage, error) {
	if len(vec) != r.dims {
		return nil, fmt.Errorf("query vector has %d dimensions, want %d: %w", len(vec), r.dims, ErrDimensionMismatch)
	}

	passages := []models.Passage{}
	if err := r.db.SelectContext(ctx, &passages, searchQuery, VectorLiteral(vec), topK); err != nil {
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}
	return passages, nil
}

// GetDocument retrieves one document by id.
func (r *DocumentRepository) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	var doc models.Document
	err := r.db.GetContext(ctx, &doc,
		`SELECT id, title, s3_uri, mime, created_at FROM documents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %d: %w", id, err)
	}
	return &doc, nil
}

// ListDocuments returns all documents, newest first.
func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]models.Document, error) {
	docs := []models.Document{}
	err := r.db.SelectContext(ctx, &docs,
		`SELECT id, title, s3_uri, mime, created_at FROM documents ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes one document; chunks and embeddings cascade.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return nil
}

// Ping verifies database connectivity, for health checks.
func (r *DocumentRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// VectorLiteral renders a vector in pgvector's "[v1,v2,...]" text form.
func VectorLiteral(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', 6, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
