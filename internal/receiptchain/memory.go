package receiptchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe Store implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable persistence across restarts.
type MemoryStore struct {
	// writeMu serialises appends: tail capture, code allocation, hashing, publish.
	writeMu sync.Mutex

	// mu guards the published state and is write-locked only while a fully
	// built link is being published.
	mu     sync.RWMutex
	links  []*Link
	byID   map[uuid.UUID]int64
	byCode map[string]int64

	codes *ShortCodeAllocator
}

// NewMemoryStore creates an empty MemoryStore. codes may be nil to use a
// default crypto/rand allocator.
func NewMemoryStore(codes *ShortCodeAllocator) *MemoryStore {
	if codes == nil {
		codes = NewShortCodeAllocator()
	}
	return &MemoryStore{
		byID:   make(map[uuid.UUID]int64),
		byCode: make(map[string]int64),
		codes:  codes,
	}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, d Draft) (*Link, error) {
	d, err := prepareDraft(d)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tail, err := s.Tail(ctx)
	if err != nil {
		return nil, &WriteError{Op: "read ledger tail", Err: err}
	}

	// Only the holder of writeMu adds codes, so a code reported free here
	// stays free until publish.
	code, err := s.codes.Allocate(ctx, s.codeExists)
	if err != nil {
		return nil, err
	}

	link, err := sealLink(tail, uuid.New(), code, d)
	if err != nil {
		return nil, fmt.Errorf("seal link: %w", err)
	}

	s.mu.Lock()
	s.links = append(s.links, link)
	s.byID[link.ReceiptID()] = link.Sequence
	s.byCode[code] = link.Sequence
	s.mu.Unlock()

	return link.clone(), nil
}

func (s *MemoryStore) codeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byCode[code]
	return ok, nil
}

// GetByID implements Store.
func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.links[seq].clone(), nil
}

// GetByShortCode implements Store.
func (s *MemoryStore) GetByShortCode(_ context.Context, code string) (*Link, error) {
	canonical, err := NormalizeShortCode(code)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.byCode[canonical]
	if !ok {
		return nil, ErrNotFound
	}
	return s.links[seq].clone(), nil
}

// GetBySequence implements Store.
func (s *MemoryStore) GetBySequence(_ context.Context, seq int64) (*Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq < 0 || seq >= int64(len(s.links)) {
		return nil, ErrNotFound
	}
	return s.links[seq].clone(), nil
}

// Tail implements Store.
func (s *MemoryStore) Tail(ctx context.Context) (Tail, error) {
	if err := ctx.Err(); err != nil {
		return Tail{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.links) == 0 {
		return Tail{Length: 0, Hash: GenesisHash}, nil
	}
	head := s.links[len(s.links)-1]
	return Tail{Length: int64(len(s.links)), Hash: head.Hash}, nil
}

// Walk implements Store. It iterates over a snapshot so fn may call back into
// the store without deadlocking.
func (s *MemoryStore) Walk(ctx context.Context, from int64, fn func(*Link) error) error {
	s.mu.RLock()
	if from < 0 {
		from = 0
	}
	var snapshot []*Link
	if from < int64(len(s.links)) {
		snapshot = append(snapshot, s.links[from:]...)
	}
	s.mu.RUnlock()

	for _, l := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(l.clone()); err != nil {
			return err
		}
	}
	return nil
}
