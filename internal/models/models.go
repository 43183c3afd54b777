// Package models defines the persisted and transient types shared across
// the ingestion and query pipelines.
package models

import "time"

// Document is one ingested PDF. Created once per successful ingestion and
// never mutated; deletion cascades to its chunks.
type Document struct {
	ID        int64     `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	S3URI     string    `db:"s3_uri" json:"s3_uri"`
	Mime      string    `db:"mime" json:"mime"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Chunk is one bounded segment of a document's extracted text. Seq is
// zero-based and unique within the owning document.
type Chunk struct {
	ID         int64                  `db:"id" json:"id"`
	DocumentID int64                  `db:"document_id" json:"document_id"`
	Seq        int                    `db:"seq" json:"seq"`
	Content    string                 `db:"content" json:"content"`
	Metadata   map[string]interface{} `db:"-" json:"metadata,omitempty"`
}

// Embedding holds the fixed-dimension vector for exactly one chunk.
type Embedding struct {
	ID      int64     `db:"id"`
	ChunkID int64     `db:"chunk_id"`
	Vector  []float32 `db:"-"`
}

// Passage is a retrieval-time view of a chunk: its text plus provenance and
// the computed distance to the query vector. Never persisted.
type Passage struct {
	Title    string  `db:"title" json:"title"`
	Seq      int     `db:"seq" json:"seq"`
	Text     string  `db:"content" json:"text"`
	Distance float64 `db:"distance" json:"distance"`
}
