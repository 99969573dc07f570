package mocks

import (
	"context"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/types"
	"time"
)

// MockJobStore is a mock implementation of store.JobStore for testing.
type MockJobStore struct {
	InsertFunc                      func(ctx context.Context, kind types.JobKind, resourceID string, maxAttempts int) (int64, error)
	FindByIDFunc                    func(ctx context.Context, id int64) (*types.Job, error)
	FindByResourceIDFunc            func(ctx context.Context, kind types.JobKind, resourceID string) (*types.Job, error)
	ClaimBatchFunc                  func(ctx context.Context, limit int, lockTTL time.Duration) ([]types.Job, error)
	ClaimSingleFunc                 func(ctx context.Context, kind types.JobKind, resourceID string, lockTTL time.Duration) (*types.Job, error)
	ReleaseLockFunc                 func(ctx context.Context, lease types.Lease, errMsg string, retryDelay time.Duration) (bool, error)
	ForceUnlockFunc                 func(ctx context.Context, lease types.Lease) error
	CompleteFunc                    func(ctx context.Context, lease types.Lease) (bool, error)
	FailPermanentlyFunc             func(ctx context.Context, lease types.Lease, errMsg string) (bool, error)
	CancelFunc                      func(ctx context.Context, jobID int64) (bool, error)
	FetchJobsFunc                   func(ctx context.Context, page int, pageSize int, statuses []state.JobStatus) (*types.PaginationResult[types.Job], error)
	FetchStaleLockedFunc            func(ctx context.Context, lockTTL time.Duration, limit int) ([]types.Job, error)
	FailAbandonedFunc               func(ctx context.Context, lockTTL time.Duration, errMsg string) ([]int64, error)
	CountAllJobsGroupedByStatusFunc func(ctx context.Context) (map[state.JobStatus]int, error)
}

func (m *MockJobStore) Insert(ctx context.Context, kind types.JobKind, resourceID string, maxAttempts int) (int64, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, kind, resourceID, maxAttempts)
	}
	return 0, nil
}

func (m *MockJobStore) FindByID(ctx context.Context, id int64) (*types.Job, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockJobStore) FindByResourceID(ctx context.Context, kind types.JobKind, resourceID string) (*types.Job, error) {
	if m.FindByResourceIDFunc != nil {
		return m.FindByResourceIDFunc(ctx, kind, resourceID)
	}
	return nil, nil
}

func (m *MockJobStore) ClaimBatch(ctx context.Context, limit int, lockTTL time.Duration) ([]types.Job, error) {
	if m.ClaimBatchFunc != nil {
		return m.ClaimBatchFunc(ctx, limit, lockTTL)
	}
	return nil, nil
}

func (m *MockJobStore) ClaimSingle(ctx context.Context, kind types.JobKind, resourceID string, lockTTL time.Duration) (*types.Job, error) {
	if m.ClaimSingleFunc != nil {
		return m.ClaimSingleFunc(ctx, kind, resourceID, lockTTL)
	}
	return nil, nil
}

func (m *MockJobStore) ReleaseLock(ctx context.Context, lease types.Lease, errMsg string, retryDelay time.Duration) (bool, error) {
	if m.ReleaseLockFunc != nil {
		return m.ReleaseLockFunc(ctx, lease, errMsg, retryDelay)
	}
	return true, nil
}

func (m *MockJobStore) ForceUnlock(ctx context.Context, lease types.Lease) error {
	if m.ForceUnlockFunc != nil {
		return m.ForceUnlockFunc(ctx, lease)
	}
	return nil
}

func (m *MockJobStore) Complete(ctx context.Context, lease types.Lease) (bool, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, lease)
	}
	return true, nil
}

func (m *MockJobStore) FailPermanently(ctx context.Context, lease types.Lease, errMsg string) (bool, error) {
	if m.FailPermanentlyFunc != nil {
		return m.FailPermanentlyFunc(ctx, lease, errMsg)
	}
	return true, nil
}

func (m *MockJobStore) Cancel(ctx context.Context, jobID int64) (bool, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, jobID)
	}
	return true, nil
}

func (m *MockJobStore) FetchJobs(ctx context.Context, page int, pageSize int, statuses []state.JobStatus) (*types.PaginationResult[types.Job], error) {
	if m.FetchJobsFunc != nil {
		return m.FetchJobsFunc(ctx, page, pageSize, statuses)
	}
	return &types.PaginationResult[types.Job]{Items: []types.Job{}}, nil
}

func (m *MockJobStore) FetchStaleLocked(ctx context.Context, lockTTL time.Duration, limit int) ([]types.Job, error) {
	if m.FetchStaleLockedFunc != nil {
		return m.FetchStaleLockedFunc(ctx, lockTTL, limit)
	}
	return nil, nil
}

func (m *MockJobStore) FailAbandoned(ctx context.Context, lockTTL time.Duration, errMsg string) ([]int64, error) {
	if m.FailAbandonedFunc != nil {
		return m.FailAbandonedFunc(ctx, lockTTL, errMsg)
	}
	return nil, nil
}

func (m *MockJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	if m.CountAllJobsGroupedByStatusFunc != nil {
		return m.CountAllJobsGroupedByStatusFunc(ctx)
	}
	return map[state.JobStatus]int{}, nil
}
