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

var jobRowColumns = []string{
	"id", "kind", "resource_id", "status", "locked_at", "attempts", "max_attempts",
	"run_after", "error", "created_at", "updated_at", "completed_at",
}

func TestNewPostgresJobStore(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)
	require.NotNil(t, store)
}

func TestPostgresJobStore_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	mock.ExpectQuery("INSERT INTO genfire_schema.jobs").
		WithArgs(types.JobKindCaption, "art-1", state.StatusQueued, 3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	jobID, err := store.Insert(context.Background(), types.JobKindCaption, "art-1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(42), jobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_FindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	mock.ExpectQuery("SELECT (.+) FROM genfire_schema.jobs WHERE id").
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	job, err := store.FindByID(context.Background(), 7)
	assert.Nil(t, job)
	assert.True(t, errors.Is(err, custom_errors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_ClaimBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)
	now := time.Now()
	older := now.Add(-time.Hour)

	rows := sqlmock.NewRows(jobRowColumns).
		AddRow(2, "caption", "art-2", "processing", now, 1, 3, nil, nil, now, now, nil).
		AddRow(1, "generation", "gen-1", "processing", now, 2, 3, nil, "boom", older, now, nil)

	mock.ExpectQuery("WITH candidates AS").
		WithArgs(state.StatusQueued, state.StatusFailed, state.StatusProcessing, float64(300), 10).
		WillReturnRows(rows)

	jobs, err := store.ClaimBatch(context.Background(), 10, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	// oldest first regardless of RETURNING order
	assert.Equal(t, int64(1), jobs[0].ID)
	assert.Equal(t, types.JobKindGeneration, jobs[0].Kind)
	assert.Equal(t, "boom", jobs[0].Error)
	assert.Equal(t, int64(2), jobs[1].ID)
	assert.Equal(t, state.StatusProcessing, jobs[1].Status)
	require.NotNil(t, jobs[1].LockedAt)
	assert.Nil(t, jobs[1].RunAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_ClaimBatch_ZeroLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	jobs, err := NewPostgresJobStore(db).ClaimBatch(context.Background(), 0, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_ClaimSingle_NothingToClaim(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	mock.ExpectQuery("WITH target AS").
		WithArgs(types.JobKindCaption, "art-1", state.StatusProcessing, state.StatusCompleted, state.StatusCancelled, float64(60)).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	job, err := store.ClaimSingle(context.Background(), types.JobKindCaption, "art-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_ClaimSingle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)
	now := time.Now()

	mock.ExpectQuery("WITH target AS").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow(5, "caption", "art-1", "processing", now, 4, 3, nil, nil, now, now, nil))

	job, err := store.ClaimSingle(context.Background(), types.JobKindCaption, "art-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 4, job.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var testLockedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestPostgresJobStore_ReleaseLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	mock.ExpectExec("UPDATE genfire_schema.jobs").
		WithArgs(int64(1), state.StatusQueued, state.StatusFailed, float64(30), "timeout", state.StatusProcessing, testLockedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.ReleaseLock(context.Background(), types.Lease{JobID: 1, LockedAt: testLockedAt}, "timeout", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_ReleaseLock_AlreadyReleased(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	mock.ExpectExec("UPDATE genfire_schema.jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.ReleaseLock(context.Background(), types.Lease{JobID: 1, LockedAt: testLockedAt}, "", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_ForceUnlock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	mock.ExpectExec("UPDATE genfire_schema.jobs").
		WithArgs(int64(9), state.StatusQueued, state.StatusProcessing, testLockedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.ForceUnlock(context.Background(), types.Lease{JobID: 9, LockedAt: testLockedAt}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_Complete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	mock.ExpectExec("UPDATE genfire_schema.jobs").
		WithArgs(int64(3), state.StatusCompleted, state.StatusProcessing, testLockedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.Complete(context.Background(), types.Lease{JobID: 3, LockedAt: testLockedAt})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_FailPermanently_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	mock.ExpectExec("UPDATE genfire_schema.jobs").
		WithArgs(int64(3), state.StatusFailed, "not found", state.StatusProcessing, testLockedAt).
		WillReturnError(errors.New("connection reset"))

	ok, err := store.FailPermanently(context.Background(), types.Lease{JobID: 3, LockedAt: testLockedAt}, "not found")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "failed to fail job 3")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_Complete_StaleLease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	// a newer claim moved locked_at, so the guard matches no row
	mock.ExpectExec(`WHERE id = \$1 AND status = \$3 AND locked_at = \$4`).
		WithArgs(int64(3), state.StatusCompleted, state.StatusProcessing, testLockedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.Complete(context.Background(), types.Lease{JobID: 3, LockedAt: testLockedAt})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_FailAbandoned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	mock.ExpectQuery(`attempts >= max_attempts\s+RETURNING id`).
		WithArgs(state.StatusFailed, "abandoned", state.StatusProcessing, float64(300)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)).AddRow(int64(9)))

	ids, err := store.FailAbandoned(context.Background(), 5*time.Minute, "abandoned")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 9}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_Cancel(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	mock.ExpectExec("UPDATE genfire_schema.jobs").
		WithArgs(int64(4), state.StatusCancelled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.Cancel(context.Background(), 4)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_FetchJobs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)
	now := time.Now()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(state.StatusFailed).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	mock.ExpectQuery("SELECT (.+) FROM genfire_schema.jobs WHERE").
		WithArgs(state.StatusFailed, 10, 10).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow(11, "caption", "art-11", "failed", nil, 3, 3, nil, "bad", now, now, nil))

	result, err := store.FetchJobs(context.Background(), 2, 10, []state.JobStatus{state.StatusFailed})
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, 21, result.TotalItems)
	assert.Equal(t, 3, result.TotalPages)
	assert.True(t, result.HasNextPage)
	assert.True(t, result.HasPreviousPage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_FetchStaleLocked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)
	lockedAt := time.Now().Add(-10 * time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM genfire_schema.jobs").
		WithArgs(state.StatusProcessing, float64(300), 50).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow(8, "caption", "art-8", "processing", lockedAt, 1, 3, nil, nil, lockedAt, lockedAt, nil))

	jobs, err := store.FetchStaleLocked(context.Background(), 5*time.Minute, 50)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, lockedAt, *jobs[0].LockedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_CountAllJobsGroupedByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresJobStore(db)

	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("queued", 5).
			AddRow("processing", 2))

	counts, err := store.CountAllJobsGroupedByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, counts[state.StatusQueued])
	assert.Equal(t, 2, counts[state.StatusProcessing])
	assert.Equal(t, 0, counts[state.StatusCompleted])
	assert.Equal(t, 0, counts[state.StatusCancelled])
	assert.Len(t, counts, len(state.AllStatuses))
	assert.NoError(t, mock.ExpectationsWereMet())
}
