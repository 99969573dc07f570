package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/types"
)

type postgresArtifactStore struct {
	db *sql.DB
}

func NewPostgresArtifactStore(db *sql.DB) store.ArtifactStore {
	return &postgresArtifactStore{db: db}
}

func (r *postgresArtifactStore) Create(ctx context.Context, a *types.Artifact) error {
	query := `
		INSERT INTO genfire_schema.artifacts (id, generation_id, url, media_type, prompt, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.ID,
		nullString(a.GenerationID),
		a.URL,
		a.MediaType,
		nullString(a.Prompt),
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert artifact %s: %w", a.ID, err)
	}
	return nil
}

func (r *postgresArtifactStore) Fetch(ctx context.Context, id string) (*types.Artifact, error) {
	query := `
		SELECT id, generation_id, url, media_type, prompt, deleted, created_at, analyzed_at
		FROM genfire_schema.artifacts
		WHERE id = $1
	`

	var (
		a            types.Artifact
		generationID sql.NullString
		prompt       sql.NullString
		analyzedAt   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID,
		&generationID,
		&a.URL,
		&a.MediaType,
		&prompt,
		&a.Deleted,
		&a.CreatedAt,
		&analyzedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("artifact %s: %w", id, custom_errors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch artifact %s: %w", id, err)
	}
	if a.Deleted {
		return nil, fmt.Errorf("artifact %s was deleted: %w", id, custom_errors.ErrNotFound)
	}

	a.GenerationID = generationID.String
	a.Prompt = prompt.String
	a.AnalyzedAt = timePtr(analyzedAt)
	return &a, nil
}

func (r *postgresArtifactStore) SaveAnalysis(ctx context.Context, id string, analysis types.ArtifactAnalysis) error {
	structured := []byte(analysis.Structured)
	if len(structured) == 0 {
		structured = []byte("null")
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE genfire_schema.artifacts
		SET caption       = $2,
		    caption_model = $3,
		    structured    = $4,
		    parser_model  = $5,
		    analyzed_at   = now()
		WHERE id = $1 AND deleted = false
	`, id, analysis.Caption, analysis.CaptionModel, structured, analysis.ParserModel)
	if err != nil {
		return fmt.Errorf("failed to save analysis for artifact %s: %w", id, err)
	}

	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("artifact %s: %w", id, custom_errors.ErrNotFound)
	}
	return nil
}
