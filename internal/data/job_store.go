package data

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/masumi-agents/idea-evaluator/internal/core"
	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
)

// MemoryJobStore keeps jobs in process memory. Updates for one id are serialized by a
// per-job mutex so concurrent mutators never lose writes; different ids proceed in parallel.
type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*model.Job
	locks map[string]*sync.Mutex
}

var _ core.JobRepository = (*MemoryJobStore)(nil)

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:  make(map[string]*model.Job),
		locks: make(map[string]*sync.Mutex),
	}
}

// Create stores a copy of job.
func (s *MemoryJobStore) Create(_ context.Context, job *model.Job) error {
	if job == nil || job.ID == "" {
		return ErrJobIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("create job %s: %w", job.ID, ErrJobExists)
	}
	s.jobs[job.ID] = job.Clone()
	s.locks[job.ID] = &sync.Mutex{}
	return nil
}

// Get returns a copy of the stored job.
func (s *MemoryJobStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// Update runs mutate on a copy of the job while holding the job's lock and stores the
// copy only when mutate succeeds.
func (s *MemoryJobStore) Update(ctx context.Context, id string, mutate core.JobMutator) (*model.Job, error) {
	s.mu.RLock()
	lock, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(current); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.jobs[id] = current.Clone()
	s.mu.Unlock()
	return current, nil
}

// ListActive returns copies of the non-terminal jobs, oldest first.
func (s *MemoryJobStore) ListActive(_ context.Context) ([]*model.Job, error) {
	s.mu.RLock()
	active := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if !job.Status.Terminal() {
			active = append(active, job.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(active, func(a, b *model.Job) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return active, nil
}

// Len returns the number of stored jobs.
func (s *MemoryJobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
