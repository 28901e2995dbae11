package credentials

import (
	"context"
	"errors"
	"sync"
)

// Pair holds the access/refresh credential pair issued by POST /token/.
// No expiry is tracked client-side; expiry is discovered via a 401.
type Pair struct {
	Access  string
	Refresh string
}

var ErrNoCredentials = errors.New("no stored credentials")

// Store is the single process-wide holder of the credential pair. It is
// mutated only by login/logout and by the renewal gate; everything else
// reads it.
type Store interface {
	Load(ctx context.Context) (Pair, error)
	Save(ctx context.Context, pair Pair) error
	// SaveAccess replaces the access credential while keeping the refresh
	// credential as-is. Used after a successful renewal.
	SaveAccess(ctx context.Context, access string) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the pair in memory only. Used by tests and for
// sessions that should not outlive the process.
type MemoryStore struct {
	mu   sync.Mutex
	pair Pair
	set  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return Pair{}, ErrNoCredentials
	}
	return s.pair, nil
}

func (s *MemoryStore) Save(_ context.Context, pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	s.set = true
	return nil
}

func (s *MemoryStore) SaveAccess(_ context.Context, access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return ErrNoCredentials
	}
	s.pair.Access = access
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = Pair{}
	s.set = false
	return nil
}
