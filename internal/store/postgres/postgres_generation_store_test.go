package postgres

import (
	"context"
	"database/sql"
	"errors"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

var generationRowColumns = []string{
	"id", "requestor_id", "provider_id", "prompt", "parameters", "output_count", "outputs",
	"status", "error", "created_at", "updated_at", "completed_at",
}

func TestPostgresGenerationStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresGenerationStore(db)
	now := time.Now()
	g := &types.Generation{
		ID:          "gen-1",
		RequestorID: "user-1",
		Prompt:      "a red fox",
		Parameters:  map[string]any{"size": "1024x1024"},
		OutputCount: 2,
		Status:      state.StatusProcessing,
	}

	mock.ExpectQuery("INSERT INTO genfire_schema.generations").
		WithArgs("gen-1", "user-1", sqlmock.AnyArg(), "a red fox", []byte(`{"size":"1024x1024"}`), 2, state.StatusProcessing).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, store.Create(context.Background(), g))
	assert.Equal(t, now, g.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGenerationStore_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresGenerationStore(db)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM genfire_schema.generations WHERE id").
		WithArgs("gen-1").
		WillReturnRows(sqlmock.NewRows(generationRowColumns).AddRow(
			"gen-1", "user-1", "openai", "a red fox", []byte(`{"style":"ink"}`), 1,
			[]byte(`[{"artifact_id":"a-1","url":"https://cdn/a-1.png","media_type":"image/png","provider":"openai"}]`),
			"completed", nil, now, now, now,
		))

	g, err := store.FindByID(context.Background(), "gen-1")
	require.NoError(t, err)
	assert.Equal(t, "openai", g.ProviderID)
	assert.Equal(t, "ink", g.Parameters["style"])
	require.Len(t, g.Outputs, 1)
	assert.Equal(t, "a-1", g.Outputs[0].ArtifactID)
	require.NotNil(t, g.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGenerationStore_FindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM genfire_schema.generations").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = NewPostgresGenerationStore(db).FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, custom_errors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGenerationStore_Complete_NotProcessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE genfire_schema.generations").
		WithArgs("gen-1", state.StatusCompleted, "gemini", sqlmock.AnyArg(), state.StatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := NewPostgresGenerationStore(db).Complete(context.Background(), "gen-1", "gemini", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGenerationStore_Fail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE genfire_schema.generations").
		WithArgs("gen-1", state.StatusFailed, "trigger failed", state.StatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := NewPostgresGenerationStore(db).Fail(context.Background(), "gen-1", "trigger failed")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGenerationStore_FailStuck(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE genfire_schema.generations g").
		WithArgs(state.StatusFailed, "stuck", state.StatusProcessing, float64(900), types.JobKindGeneration, state.StatusQueued, float64(300)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewPostgresGenerationStore(db).FailStuck(context.Background(), 15*time.Minute, 5*time.Minute, "stuck")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGenerationStore_FetchByRequestor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT (.+) FROM genfire_schema.generations").
		WithArgs("user-1", 20, 0).
		WillReturnRows(sqlmock.NewRows(generationRowColumns).AddRow(
			"gen-1", "user-1", nil, "a red fox", nil, 1, nil, "processing", nil, now, now, nil,
		))

	result, err := NewPostgresGenerationStore(db).FetchByRequestor(context.Background(), "user-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, 1, result.TotalPages)
	assert.False(t, result.HasNextPage)
	assert.Nil(t, result.Items[0].Outputs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
