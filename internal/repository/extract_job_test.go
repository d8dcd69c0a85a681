package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
)

func newTestRepo(t *testing.T) *sqlJobRepo {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return newSQLJobRepo(db, dialectSQLite, nil)
}

func TestExtractJob_StartRejectsUnknownValues(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Start(ctx, constants.JobKindText, constants.DocumentKind("HEIC"), "abc")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = repo.Start(ctx, constants.JobKind("OCR"), constants.PDF, "abc")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = repo.Start(ctx, constants.JobKindText, constants.PDF, "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	list, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExtractJob_TextLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	job, err := repo.Start(ctx, constants.JobKindText, constants.PDF, "abc123")
	require.NoError(t, err)
	assert.Equal(t, string(constants.JobStatusRunning), job.Status)

	err = repo.FinishText(ctx, job.ID, TextOutcome{
		Text:        "ACME STORE\nTotal 12.00",
		Confidence:  0.8123,
		Method:      "tesseract",
		ModelParams: map[string]any{"lang": "eng"},
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.JobStatusTextOK), got.Status)
	assert.Equal(t, "PDF", got.Format)
	assert.Equal(t, "TEXT", got.Kind)
	require.NotNil(t, got.OCRText)
	assert.Equal(t, "ACME STORE\nTotal 12.00", *got.OCRText)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.8123, *got.Confidence, 1e-9)
	require.NotNil(t, got.FinishedAt)
	assert.False(t, got.NeedsReview)
	assert.JSONEq(t, `{"lang":"eng"}`, string(got.ModelParams))
	assert.Nil(t, got.ErrorMessage)
}

func TestExtractJob_FieldsLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	job, err := repo.Start(ctx, constants.JobKindFields, constants.IMAGE, "def456")
	require.NoError(t, err)

	fields := map[string]string{"order_id": "ORD-1", "retailer": ""}
	err = repo.FinishFields(ctx, job.ID, FieldsOutcome{
		Fields:      fields,
		FieldErrors: map[string]string{"retailer": "timeout"},
		ModelName:   common.DefaultModelID,
		NeedsReview: true,
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.JobStatusFieldsOK), got.Status)
	assert.True(t, got.NeedsReview)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(got.ExtractedJSON, &decoded))
	assert.Equal(t, fields, decoded)
	assert.JSONEq(t, `{"retailer":"timeout"}`, string(got.FieldErrors))
	require.NotNil(t, got.ModelName)
	assert.Equal(t, common.DefaultModelID, *got.ModelName)
}

func TestExtractJob_Failure(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	job, err := repo.Start(ctx, constants.JobKindText, constants.IMAGE, "bad")
	require.NoError(t, err)
	require.NoError(t, repo.FinishFailure(ctx, job.ID, "document could not be decoded"))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.JobStatusFailed), got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "document could not be decoded", *got.ErrorMessage)
}

func TestExtractJob_UnknownID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	err := repo.FinishFailure(ctx, uuid.New(), "x")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestExtractJob_ListFilters(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	a, err := repo.Start(ctx, constants.JobKindText, constants.PDF, "a")
	require.NoError(t, err)
	require.NoError(t, repo.FinishText(ctx, a.ID, TextOutcome{Text: "a", Confidence: 0.9}))

	b, err := repo.Start(ctx, constants.JobKindFields, constants.IMAGE, "b")
	require.NoError(t, err)
	require.NoError(t, repo.FinishFailure(ctx, b.ID, "boom"))

	c, err := repo.Start(ctx, constants.JobKindText, constants.IMAGE, "c")
	require.NoError(t, err)
	require.NoError(t, repo.FinishText(ctx, c.ID, TextOutcome{Text: "c", Confidence: 0.4, NeedsReview: true}))

	all, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, c.ID, all[0].ID, "newest first")
	assert.Equal(t, a.ID, all[2].ID)

	failed, err := repo.List(ctx, ListFilter{Status: constants.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, b.ID, failed[0].ID)

	text, err := repo.List(ctx, ListFilter{Kind: constants.JobKindText, Limit: 1})
	require.NoError(t, err)
	require.Len(t, text, 1)
	assert.Equal(t, c.ID, text[0].ID)

	since := base.Add(2 * time.Minute)
	recent, err := repo.List(ctx, ListFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRebind(t *testing.T) {
	pg := &sqlJobRepo{dialect: dialectPostgres}
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", pg.rebind("UPDATE t SET a = ?, b = ? WHERE id = ?"))

	lite := &sqlJobRepo{dialect: dialectSQLite}
	assert.Equal(t, "SELECT ? FROM t", lite.rebind("SELECT ? FROM t"))
}

func TestOpen_NoDSNIsNoop(t *testing.T) {
	store, err := Open(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.False(t, store.Enabled())
	require.NoError(t, store.Ping(context.Background(), time.Second))

	job, err := store.Jobs.Start(context.Background(), constants.JobKindText, constants.PDF, "x")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.NoError(t, store.Jobs.FinishFailure(context.Background(), job.ID, "x"))
	store.Close()
}

func TestOpen_SQLite(t *testing.T) {
	store, err := Open(context.Background(), Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "l.db")}, nil)
	require.NoError(t, err)
	defer store.Close()
	assert.True(t, store.Enabled())
	require.NoError(t, store.Ping(context.Background(), time.Second))

	_, err = store.Jobs.Start(context.Background(), constants.JobKindFields, constants.PDF, "h")
	require.NoError(t, err)
	jobs, err := store.Jobs.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"}, nil)
	assert.Error(t, err)
}
