package event

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/youmna-rabie/socket-relay/internal/types"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidCapacity = errors.New("capacity must be greater than zero")
)

// MemoryStore is a ring buffer of dispatch records with an ID index.
// Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	buf   []types.Record
	index map[uuid.UUID]int
	cap   int
	count int
	head  int // next write position

	byStatus map[types.RecordStatus]int
}

// NewMemoryStore creates a MemoryStore holding at most capacity records.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &MemoryStore{
		buf:      make([]types.Record, capacity),
		index:    make(map[uuid.UUID]int, capacity),
		cap:      capacity,
		byStatus: make(map[types.RecordStatus]int),
	}, nil
}

func (s *MemoryStore) Save(rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == s.cap {
		old := s.buf[s.head]
		if pos, ok := s.index[old.ID]; ok && pos == s.head {
			delete(s.index, old.ID)
		}
		s.byStatus[old.Status]--
	}
	s.byStatus[rec.Status]++

	s.buf[s.head] = rec
	s.index[rec.ID] = s.head

	s.head = (s.head + 1) % s.cap
	if s.count < s.cap {
		s.count++
	}
	return nil
}

func (s *MemoryStore) Get(id uuid.UUID) (types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		return types.Record{}, ErrNotFound
	}
	return s.buf[pos], nil
}

func (s *MemoryStore) List(limit, offset int) ([]types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= s.count {
		return []types.Record{}, nil
	}

	n := min(limit, s.count-offset)
	result := make([]types.Record, 0, n)
	for i := offset; i < offset+n; i++ {
		pos := (s.head - 1 - i + s.cap) % s.cap
		result = append(result, s.buf[pos])
	}
	return result, nil
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// StatusCounts returns how many held records are in each status.
func (s *MemoryStore) StatusCounts() map[types.RecordStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[types.RecordStatus]int, len(s.byStatus))
	for st, n := range s.byStatus {
		if n > 0 {
			out[st] = n
		}
	}
	return out
}
