package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

var artifactRowColumns = []string{"id", "generation_id", "url", "media_type", "prompt", "deleted", "created_at", "analyzed_at"}

func TestPostgresArtifactStore_Fetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM genfire_schema.artifacts").
		WithArgs("art-1").
		WillReturnRows(sqlmock.NewRows(artifactRowColumns).
			AddRow("art-1", "gen-1", "https://cdn/art-1.png", "image/png", "a fox", false, time.Now(), nil))

	a, err := NewPostgresArtifactStore(db).Fetch(context.Background(), "art-1")
	require.NoError(t, err)
	assert.Equal(t, "gen-1", a.GenerationID)
	assert.Equal(t, "image/png", a.MediaType)
	assert.Nil(t, a.AnalyzedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresArtifactStore_Fetch_Deleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM genfire_schema.artifacts").
		WithArgs("art-1").
		WillReturnRows(sqlmock.NewRows(artifactRowColumns).
			AddRow("art-1", nil, "https://cdn/art-1.png", "image/png", nil, true, time.Now(), nil))

	a, err := NewPostgresArtifactStore(db).Fetch(context.Background(), "art-1")
	assert.Nil(t, a)
	assert.True(t, errors.Is(err, custom_errors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresArtifactStore_Fetch_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM genfire_schema.artifacts").
		WithArgs("art-x").
		WillReturnRows(sqlmock.NewRows(artifactRowColumns))

	_, err = NewPostgresArtifactStore(db).Fetch(context.Background(), "art-x")
	assert.True(t, errors.Is(err, custom_errors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresArtifactStore_SaveAnalysis(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	analysis := types.ArtifactAnalysis{
		Caption:      "a fox in snow",
		CaptionModel: "gpt-4o-mini",
		Structured:   json.RawMessage(`{"subject":"fox"}`),
		ParserModel:  "gpt-4o-mini",
	}

	mock.ExpectExec("UPDATE genfire_schema.artifacts").
		WithArgs("art-1", "a fox in snow", "gpt-4o-mini", []byte(`{"subject":"fox"}`), "gpt-4o-mini").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresArtifactStore(db).SaveAnalysis(context.Background(), "art-1", analysis))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresArtifactStore_SaveAnalysis_Deleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE genfire_schema.artifacts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgresArtifactStore(db).SaveAnalysis(context.Background(), "art-1", types.ArtifactAnalysis{})
	assert.True(t, errors.Is(err, custom_errors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
