package config

import (
	"context"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/types"
	"sort"
	"sync"
)

// HandlerFunc processes one claimed job. Returning custom_errors.ErrNotFound or
// custom_errors.ErrPermanent fails the job without retry.
type HandlerFunc func(ctx context.Context, job types.Job) error

type JobHandler struct {
	handlers map[types.JobKind]HandlerFunc
	mutex    sync.RWMutex
}

func NewJobHandler() *JobHandler {
	return &JobHandler{
		handlers: make(map[types.JobKind]HandlerFunc),
	}
}

// Register adds a new job handler for a kind.
func (jh *JobHandler) Register(kind types.JobKind, handler HandlerFunc) error {
	if kind == "" || handler == nil {
		return fmt.Errorf("handler must have a job kind and function")
	}

	jh.mutex.Lock()
	defer jh.mutex.Unlock()

	if _, exists := jh.handlers[kind]; exists {
		return fmt.Errorf("handler '%s' already registered", kind)
	}
	jh.handlers[kind] = handler
	return nil
}

func (jh *JobHandler) Exists(kind types.JobKind) bool {
	jh.mutex.RLock()
	defer jh.mutex.RUnlock()

	_, exists := jh.handlers[kind]
	return exists
}

// Execute runs the handler for job.Kind. A kind nobody handles will never succeed, so it is permanent.
func (jh *JobHandler) Execute(ctx context.Context, job types.Job) error {
	jh.mutex.RLock()
	handler, exists := jh.handlers[job.Kind]
	jh.mutex.RUnlock()

	if !exists {
		return custom_errors.Permanent(fmt.Errorf("handler '%s' not found", job.Kind))
	}
	return handler(ctx, job)
}

func (jh *JobHandler) List() []types.JobKind {
	jh.mutex.RLock()
	defer jh.mutex.RUnlock()

	kinds := make([]types.JobKind, 0, len(jh.handlers))
	for kind := range jh.handlers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
