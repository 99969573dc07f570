package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/types"
	"time"
)

const generationColumns = `id, requestor_id, provider_id, prompt, parameters, output_count, outputs,
		       status, error, created_at, updated_at, completed_at`

type postgresGenerationStore struct {
	db *sql.DB
}

func NewPostgresGenerationStore(db *sql.DB) store.GenerationStore {
	return &postgresGenerationStore{db: db}
}

func (r *postgresGenerationStore) Create(ctx context.Context, g *types.Generation) error {
	params, err := json.Marshal(g.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal generation parameters: %w", err)
	}

	query := `
		INSERT INTO genfire_schema.generations (
			id,
			requestor_id,
			provider_id,
			prompt,
			parameters,
			output_count,
			status,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		g.ID,
		g.RequestorID,
		nullString(g.ProviderID),
		g.Prompt,
		params,
		g.OutputCount,
		g.Status,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert generation %s: %w", g.ID, err)
	}
	return nil
}

func (r *postgresGenerationStore) FindByID(ctx context.Context, id string) (*types.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM genfire_schema.generations WHERE id = $1`

	g, err := scanGeneration(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("generation %s: %w", id, custom_errors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find generation %s: %w", id, err)
	}
	return g, nil
}

func (r *postgresGenerationStore) FetchByRequestor(ctx context.Context, requestorID string, page int, pageSize int) (*types.PaginationResult[types.Generation], error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var totalItems int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM genfire_schema.generations WHERE requestor_id = $1`, requestorID,
	).Scan(&totalItems)
	if err != nil {
		return nil, fmt.Errorf("failed to count generations: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+generationColumns+`
		FROM genfire_schema.generations
		WHERE requestor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, requestorID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch generations: %w", err)
	}
	defer rows.Close()

	var items []types.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return paginate(items, totalItems, page, pageSize), nil
}

func (r *postgresGenerationStore) Complete(ctx context.Context, id string, providerID string, outputs []types.GenerationOutput) (bool, error) {
	payload, err := json.Marshal(outputs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal generation outputs: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE genfire_schema.generations
		SET status       = $2,
		    provider_id  = $3,
		    outputs      = $4,
		    error        = NULL,
		    completed_at = now(),
		    updated_at   = now()
		WHERE id = $1 AND status = $5
	`, id, state.StatusCompleted, providerID, payload, state.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to complete generation %s: %w", id, err)
	}
	return affected(res)
}

func (r *postgresGenerationStore) Fail(ctx context.Context, id string, errMsg string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE genfire_schema.generations
		SET status     = $2,
		    error      = $3,
		    updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, state.StatusFailed, errMsg, state.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to fail generation %s: %w", id, err)
	}
	return affected(res)
}

// FailStuck only touches generations that no job can still resolve, which leaves durable
// generations with a pending retry alone.
func (r *postgresGenerationStore) FailStuck(ctx context.Context, olderThan, lockTTL time.Duration, errMsg string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE genfire_schema.generations g
		SET status     = $1,
		    error      = $2,
		    updated_at = now()
		WHERE g.status = $3
		  AND g.updated_at < now() - make_interval(secs => $4)
		  AND NOT EXISTS (
		      SELECT 1
		      FROM genfire_schema.jobs j
		      WHERE j.kind = $5
		        AND j.resource_id = g.id::text
		        AND (j.status = $6
		             OR (j.status = $3 AND (j.locked_at >= now() - make_interval(secs => $7) OR j.attempts < j.max_attempts))
		             OR (j.status = $1 AND j.attempts < j.max_attempts))
		  )
	`, state.StatusFailed, errMsg, state.StatusProcessing, olderThan.Seconds(), types.JobKindGeneration, state.StatusQueued, lockTTL.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to fail stuck generations: %w", err)
	}
	return res.RowsAffected()
}

func scanGeneration(row rowScanner) (*types.Generation, error) {
	var (
		g           types.Generation
		providerID  sql.NullString
		params      []byte
		outputs     []byte
		lastError   sql.NullString
		completedAt sql.NullTime
	)

	err := row.Scan(
		&g.ID,
		&g.RequestorID,
		&providerID,
		&g.Prompt,
		&params,
		&g.OutputCount,
		&outputs,
		&g.Status,
		&lastError,
		&g.CreatedAt,
		&g.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &g.Parameters); err != nil {
			return nil, fmt.Errorf("failed to decode parameters of generation %s: %w", g.ID, err)
		}
	}
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &g.Outputs); err != nil {
			return nil, fmt.Errorf("failed to decode outputs of generation %s: %w", g.ID, err)
		}
	}

	g.ProviderID = providerID.String
	g.Error = lastError.String
	g.CompletedAt = timePtr(completedAt)
	return &g, nil
}
