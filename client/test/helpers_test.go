package test

import (
	"context"
	"github.com/RezaEskandarii/genfire/client"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/internal/store/memory"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/RezaEskandarii/genfire/types/config"
	"sync"
	"time"
)

var testQueueConfig = config.QueueConfig{
	BatchSize:      10,
	MaxAttempts:    3,
	LockTTL:        5 * time.Minute,
	RetryDelay:     30 * time.Second,
	StaleListLimit: 50,
}

// clock is a settable time source shared by a memory store.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMemoryStore() (*memory.Store, *clock) {
	s := memory.NewStore()
	c := newClock()
	s.Now = c.Now
	return s, c
}

func newQueue(jobStore store.JobStore) *client.JobQueue {
	return client.NewJobQueue(jobStore, nil, testQueueConfig, nil)
}

func newProcessor(queue *client.JobQueue, handlers map[types.JobKind]config.HandlerFunc) *client.JobProcessor {
	registry := config.NewJobHandler()
	for kind, h := range handlers {
		_ = registry.Register(kind, h)
	}
	return client.NewJobProcessor(queue, registry, nil)
}

func ok(context.Context, types.Job) error { return nil }
