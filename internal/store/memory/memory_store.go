// Package memory holds mutex-guarded stores used by the memory driver and by tests that
// exercise claim semantics without a database.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/types"
	"golang.org/x/crypto/bcrypt"
	"math"
	"sort"
	"sync"
	"time"
)

// Store implements every store interface over plain maps. Each operation holds the mutex for
// its whole duration, so a claim is one indivisible scan-and-update.
type Store struct {
	mu sync.Mutex

	// Now is the store clock. Tests replace it to move time.
	Now func() time.Time

	nextJobID   int64
	jobs        map[int64]*types.Job
	generations map[string]*types.Generation
	artifacts   map[string]*artifactRow
	counters    map[string]*counter
	nextUserID  int64
	users       map[string]*types.User
}

type artifactRow struct {
	artifact types.Artifact
	analysis *types.ArtifactAnalysis
}

type counter struct {
	count     int
	expiresAt time.Time
}

func NewStore() *Store {
	return &Store{
		Now:         time.Now,
		jobs:        make(map[int64]*types.Job),
		generations: make(map[string]*types.Generation),
		artifacts:   make(map[string]*artifactRow),
		counters:    make(map[string]*counter),
		users:       make(map[string]*types.User),
	}
}

func (s *Store) Jobs() *JobStore               { return &JobStore{s} }
func (s *Store) Generations() *GenerationStore { return &GenerationStore{s} }
func (s *Store) Artifacts() *ArtifactStore     { return &ArtifactStore{s} }
func (s *Store) RateLimits() *RateLimitStore   { return &RateLimitStore{s} }
func (s *Store) Users() *UserStore             { return &UserStore{s} }

// PutJob stores a copy of job as is. Tests use it to seed rows in arbitrary states.
func (s *Store) PutJob(job types.Job) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == 0 {
		s.nextJobID++
		job.ID = s.nextJobID
	} else if job.ID > s.nextJobID {
		s.nextJobID = job.ID
	}
	s.jobs[job.ID] = &job
	return job.ID
}

type JobStore struct{ s *Store }

func (r *JobStore) Insert(_ context.Context, kind types.JobKind, resourceID string, maxAttempts int) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	s.nextJobID++
	s.jobs[s.nextJobID] = &types.Job{
		ID:          s.nextJobID,
		Kind:        kind,
		ResourceID:  resourceID,
		Status:      state.StatusQueued,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.nextJobID, nil
}

func (r *JobStore) FindByID(_ context.Context, id int64) (*types.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	job, ok := r.s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", id, custom_errors.ErrNotFound)
	}
	c := *job
	return &c, nil
}

func (r *JobStore) FindByResourceID(_ context.Context, kind types.JobKind, resourceID string) (*types.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	job := r.s.newestFor(kind, resourceID)
	if job == nil {
		return nil, fmt.Errorf("%s job for %s: %w", kind, resourceID, custom_errors.ErrNotFound)
	}
	c := *job
	return &c, nil
}

func (r *JobStore) ClaimBatch(_ context.Context, limit int, lockTTL time.Duration) ([]types.Job, error) {
	if limit < 1 {
		return nil, nil
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	var eligible []*types.Job
	for _, job := range s.jobs {
		if job.Claimable(now, lockTTL) {
			eligible = append(eligible, job)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]types.Job, 0, len(eligible))
	for _, job := range eligible {
		lock(job, now)
		claimed = append(claimed, *job)
	}
	return claimed, nil
}

func (r *JobStore) ClaimSingle(_ context.Context, kind types.JobKind, resourceID string, lockTTL time.Duration) (*types.Job, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	job := s.newestFor(kind, resourceID)
	if job == nil || job.Status.IsTerminal() || job.Attempts > job.MaxAttempts {
		return nil, nil
	}
	if job.LockedAt != nil && !job.LockExpired(now, lockTTL) {
		return nil, nil
	}

	lock(job, now)
	job.RunAfter = nil
	c := *job
	return &c, nil
}

func (r *JobStore) ReleaseLock(_ context.Context, lease types.Lease, errMsg string, retryDelay time.Duration) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[lease.JobID]
	if !ok || !job.Holds(lease) {
		return false, nil
	}

	now := s.Now()
	if job.ShouldRetry() {
		job.Status = state.StatusQueued
		runAfter := now.Add(retryDelay)
		job.RunAfter = &runAfter
	} else {
		job.Status = state.StatusFailed
	}
	job.LockedAt = nil
	job.Error = errMsg
	job.UpdatedAt = now
	return true, nil
}

func (r *JobStore) ForceUnlock(_ context.Context, lease types.Lease) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[lease.JobID]; ok && job.Holds(lease) {
		job.LockedAt = nil
		job.Status = state.StatusQueued
		job.UpdatedAt = s.Now()
	}
	return nil
}

func (r *JobStore) Complete(_ context.Context, lease types.Lease) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[lease.JobID]
	if !ok || !job.Holds(lease) {
		return false, nil
	}
	now := s.Now()
	job.Status = state.StatusCompleted
	job.CompletedAt = &now
	job.LockedAt = nil
	job.Error = ""
	job.UpdatedAt = now
	return true, nil
}

func (r *JobStore) FailPermanently(_ context.Context, lease types.Lease, errMsg string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[lease.JobID]
	if !ok || !job.Holds(lease) {
		return false, nil
	}
	job.Status = state.StatusFailed
	job.LockedAt = nil
	job.Error = errMsg
	job.Attempts = max(job.Attempts, job.MaxAttempts)
	job.UpdatedAt = s.Now()
	return true, nil
}

func (r *JobStore) Cancel(_ context.Context, jobID int64) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || !state.IsValidTransition(job.Status, state.StatusCancelled) {
		return false, nil
	}
	job.Status = state.StatusCancelled
	job.LockedAt = nil
	job.UpdatedAt = s.Now()
	return true, nil
}

func (r *JobStore) FetchJobs(_ context.Context, page int, pageSize int, statuses []state.JobStatus) (*types.PaginationResult[types.Job], error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []types.Job
	for _, job := range s.jobs {
		if len(statuses) == 0 || containsStatus(statuses, job.Status) {
			all = append(all, *job)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return paginate(all, page, pageSize), nil
}

func (r *JobStore) FetchStaleLocked(_ context.Context, lockTTL time.Duration, limit int) ([]types.Job, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	var stale []types.Job
	for _, job := range s.jobs {
		if job.Status == state.StatusProcessing && job.LockExpired(now, lockTTL) {
			stale = append(stale, *job)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].LockedAt.Before(*stale[j].LockedAt)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (r *JobStore) FailAbandoned(_ context.Context, lockTTL time.Duration, errMsg string) ([]int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	var failed []int64
	for _, job := range s.jobs {
		if job.Status != state.StatusProcessing || !job.LockExpired(now, lockTTL) || job.ShouldRetry() {
			continue
		}
		job.Status = state.StatusFailed
		job.LockedAt = nil
		job.Error = errMsg
		job.UpdatedAt = now
		failed = append(failed, job.ID)
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	return failed, nil
}

func (r *JobStore) CountAllJobsGroupedByStatus(_ context.Context) (map[state.JobStatus]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	result := make(map[state.JobStatus]int, len(state.AllStatuses))
	for _, status := range state.AllStatuses {
		result[status] = 0
	}
	for _, job := range r.s.jobs {
		result[job.Status]++
	}
	return result, nil
}

type GenerationStore struct{ s *Store }

func (r *GenerationStore) Create(_ context.Context, g *types.Generation) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.generations[g.ID]; exists {
		return fmt.Errorf("generation %s already exists", g.ID)
	}
	now := s.Now()
	g.CreatedAt = now
	g.UpdatedAt = now
	c := *g
	s.generations[g.ID] = &c
	return nil
}

func (r *GenerationStore) FindByID(_ context.Context, id string) (*types.Generation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.generations[id]
	if !ok {
		return nil, fmt.Errorf("generation %s: %w", id, custom_errors.ErrNotFound)
	}
	c := *g
	return &c, nil
}

func (r *GenerationStore) FetchByRequestor(_ context.Context, requestorID string, page int, pageSize int) (*types.PaginationResult[types.Generation], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var items []types.Generation
	for _, g := range r.s.generations {
		if g.RequestorID == requestorID {
			items = append(items, *g)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return paginate(items, page, pageSize), nil
}

func (r *GenerationStore) Complete(_ context.Context, id string, providerID string, outputs []types.GenerationOutput) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.generations[id]
	if !ok || g.Status != state.StatusProcessing {
		return false, nil
	}
	now := s.Now()
	g.Status = state.StatusCompleted
	g.ProviderID = providerID
	g.Outputs = append([]types.GenerationOutput(nil), outputs...)
	g.Error = ""
	g.CompletedAt = &now
	g.UpdatedAt = now
	return true, nil
}

func (r *GenerationStore) Fail(_ context.Context, id string, errMsg string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.generations[id]
	if !ok || g.Status != state.StatusProcessing {
		return false, nil
	}
	g.Status = state.StatusFailed
	g.Error = errMsg
	g.UpdatedAt = s.Now()
	return true, nil
}

func (r *GenerationStore) FailStuck(_ context.Context, olderThan, lockTTL time.Duration, errMsg string) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	var n int64
	for _, g := range s.generations {
		if g.Status != state.StatusProcessing || !g.UpdatedAt.Before(now.Add(-olderThan)) {
			continue
		}
		if s.hasLiveJob(types.JobKindGeneration, g.ID, now, lockTTL) {
			continue
		}
		g.Status = state.StatusFailed
		g.Error = errMsg
		g.UpdatedAt = now
		n++
	}
	return n, nil
}

type ArtifactStore struct{ s *Store }

func (r *ArtifactStore) Create(_ context.Context, a *types.Artifact) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	a.CreatedAt = s.Now()
	s.artifacts[a.ID] = &artifactRow{artifact: *a}
	return nil
}

func (r *ArtifactStore) Fetch(_ context.Context, id string) (*types.Artifact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.artifacts[id]
	if !ok || row.artifact.Deleted {
		return nil, fmt.Errorf("artifact %s: %w", id, custom_errors.ErrNotFound)
	}
	c := row.artifact
	return &c, nil
}

func (r *ArtifactStore) SaveAnalysis(_ context.Context, id string, analysis types.ArtifactAnalysis) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.artifacts[id]
	if !ok || row.artifact.Deleted {
		return fmt.Errorf("artifact %s: %w", id, custom_errors.ErrNotFound)
	}
	a := analysis
	a.Structured = append(json.RawMessage(nil), analysis.Structured...)
	row.analysis = &a
	now := s.Now()
	row.artifact.AnalyzedAt = &now
	return nil
}

// Analysis returns the stored analysis of an artifact, if any.
func (r *ArtifactStore) Analysis(id string) (*types.ArtifactAnalysis, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.artifacts[id]
	if !ok || row.analysis == nil {
		return nil, false
	}
	a := *row.analysis
	return &a, true
}

// Delete flags an artifact as deleted, the way the external storage layer would.
func (r *ArtifactStore) Delete(id string) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if row, ok := r.s.artifacts[id]; ok {
		row.artifact.Deleted = true
	}
}

type RateLimitStore struct{ s *Store }

func (r *RateLimitStore) Hit(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	c, ok := s.counters[key]
	if !ok || !c.expiresAt.After(now) {
		c = &counter{expiresAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, c.expiresAt, nil
}

func (r *RateLimitStore) DeleteExpired(_ context.Context) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	var n int64
	for key, c := range s.counters {
		if !c.expiresAt.After(now) {
			delete(s.counters, key)
			n++
		}
	}
	return n, nil
}

type UserStore struct{ s *Store }

func (r *UserStore) Create(_ context.Context, username, password string) (int64, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[username]; ok {
		u.Password = string(hashed)
		return u.ID, nil
	}
	s.nextUserID++
	s.users[username] = &types.User{ID: s.nextUserID, Username: username, Password: string(hashed)}
	return s.nextUserID, nil
}

func (r *UserStore) Find(_ context.Context, username, password string) (*types.User, error) {
	r.s.mu.Lock()
	u, ok := r.s.users[username]
	var hash string
	if ok {
		hash = u.Password
	}
	r.s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, custom_errors.ErrNotFound
	}
	return &types.User{ID: u.ID, Username: u.Username}, nil
}

func (r *UserStore) FindByUsername(_ context.Context, username string) (*types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[username]
	if !ok {
		return nil, nil
	}
	return &types.User{ID: u.ID, Username: u.Username}, nil
}

func (r *UserStore) Delete(_ context.Context, username string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[username]; !ok {
		return fmt.Errorf("no user found to delete: %w", custom_errors.ErrNotFound)
	}
	delete(r.s.users, username)
	return nil
}

func (s *Store) newestFor(kind types.JobKind, resourceID string) *types.Job {
	var newest *types.Job
	for _, job := range s.jobs {
		if job.Kind != kind || job.ResourceID != resourceID {
			continue
		}
		if newest == nil || job.CreatedAt.After(newest.CreatedAt) ||
			(job.CreatedAt.Equal(newest.CreatedAt) && job.ID > newest.ID) {
			newest = job
		}
	}
	return newest
}

// hasLiveJob reports whether some job can still resolve the resource. A processing job whose
// lock expired on its last attempt cannot.
func (s *Store) hasLiveJob(kind types.JobKind, resourceID string, now time.Time, lockTTL time.Duration) bool {
	for _, job := range s.jobs {
		if job.Kind != kind || job.ResourceID != resourceID {
			continue
		}
		switch {
		case job.Status == state.StatusQueued:
			return true
		case job.Status == state.StatusProcessing && (!job.LockExpired(now, lockTTL) || job.ShouldRetry()):
			return true
		case job.Status == state.StatusFailed && job.ShouldRetry():
			return true
		}
	}
	return false
}

func lock(job *types.Job, now time.Time) {
	lockedAt := now
	job.LockedAt = &lockedAt
	job.Status = state.StatusProcessing
	job.Attempts++
	job.UpdatedAt = now
}

func containsStatus(statuses []state.JobStatus, s state.JobStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func paginate[T any](all []T, page, pageSize int) *types.PaginationResult[T] {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	total := len(all)
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	return &types.PaginationResult[T]{
		Items:           all[start:end],
		TotalItems:      total,
		Page:            page,
		PageSize:        pageSize,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}
