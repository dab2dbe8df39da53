package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/civicpulse/receipts/internal/intake/model"
)

// MemoryRepository is an in-memory submission store for tests and the
// memory ledger backend.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*model.Submission
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[int64]*model.Submission)}
}

func (r *MemoryRepository) Create(_ context.Context, s *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := time.Now().UTC()
	s.ID = r.nextID
	s.CreatedAt, s.UpdatedAt = now, now
	cp := *s
	r.rows[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (*model.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) List(_ context.Context, status model.Status, limit, offset int) ([]*model.Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Submission
	for _, s := range r.rows {
		if s.DeletedAt != nil || (status != "" && s.Status != status) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id int64, status model.Status) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || s.DeletedAt != nil {
		return nil, ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || s.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	s.DeletedAt = &now
	s.UpdatedAt = now
	return nil
}

func (r *MemoryRepository) Discard(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}
