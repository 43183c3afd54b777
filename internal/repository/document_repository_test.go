package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperquery/paperquery/internal/models"
)

func newMockRepo(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewDocumentRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func testVector(fill float32) []float32 {
	vec := make([]float32, VectorDimensions)
	for i := range vec {
		vec[i] = fill
	}
	return vec
}

func testDoc() *models.Document {
	return &models.Document{Title: "paper", S3URI: "s3://bucket/uploads/k", Mime: "application/pdf"}
}

func TestInsertDocumentCommitsTriad(t *testing.T) {
	repo, mock := newMockRepo(t)

	chunks := []string{"chunk zero", "chunk one"}
	vectors := [][]float32{testVector(0.1), testVector(0.2)}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents`)).
		WithArgs("paper", "s3://bucket/uploads/k", "application/pdf").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	for seq, chunk := range chunks {
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chunks`)).
			WithArgs(int64(7), seq, chunk).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(100 + seq)))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO embeddings`)).
			WithArgs(int64(100+seq), VectorLiteral(vectors[seq])).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	id, err := repo.InsertDocument(context.Background(), testDoc(), chunks, vectors)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDocumentDryRunSkipsEmbeddings(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chunks`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectCommit()

	_, err := repo.InsertDocument(context.Background(), testDoc(), []string{"only chunk"}, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDocumentRollsBackOnChunkFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chunks`)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.InsertDocument(context.Background(), testDoc(), []string{"chunk"}, [][]float32{testVector(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDocumentRejectsCountMismatch(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.InsertDocument(context.Background(), testDoc(),
		[]string{"a", "b"}, [][]float32{testVector(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match chunk count")
}

func TestInsertDocumentRejectsWrongDimensions(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.InsertDocument(context.Background(), testDoc(),
		[]string{"a"}, [][]float32{{1, 2, 3}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestSearchPassages(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"title", "seq", "content", "distance"}).
		AddRow("paper", 2, "closest text", 0.12).
		AddRow("paper", 5, "farther text", 0.48)
	vec := testVector(0.3)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT title, seq, content, distance FROM`)).
		WithArgs(VectorLiteral(vec), 4).
		WillReturnRows(rows)

	passages, err := repo.SearchPassages(context.Background(), vec, 4)
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, "closest text", passages[0].Text)
	assert.Equal(t, 2, passages[0].Seq)
	assert.Equal(t, 0.12, passages[0].Distance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchPassagesEmptyIndex(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT title, seq, content, distance FROM`)).
		WillReturnRows(sqlmock.NewRows([]string{"title", "seq", "content", "distance"}))

	passages, err := repo.SearchPassages(context.Background(), testVector(0), 4)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestSearchPassagesRejectsWrongDimensions(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.SearchPassages(context.Background(), []float32{1, 2}, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestGetDocumentNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, title, s3_uri, mime, created_at FROM documents`)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "s3_uri", "mime", "created_at"}))

	_, err := repo.GetDocument(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDocumentNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents`)).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteDocument(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDocument(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents`)).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeleteDocument(context.Background(), 42))
}

func TestVectorLiteral(t *testing.T) {
	lit := VectorLiteral([]float32{0.5, -1, 2.25})
	assert.Equal(t, "[0.500000,-1.000000,2.250000]", lit)

	assert.Equal(t, "[]", VectorLiteral(nil))
}

func TestVectorLiteralRoundTripPrecision(t *testing.T) {
	lit := VectorLiteral([]float32{0.123456789})
	assert.True(t, strings.HasPrefix(lit, "[0.123457"))
}
