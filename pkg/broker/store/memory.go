package store

import (
	"context"
	"sync"
	"time"
)

type memoryCode struct {
	record    *PendingCode
	expiresAt time.Time
}

// MemoryStore keeps clients and pending codes in process memory.
// Suitable for a single-process deployment and for tests; use the redis
// store when more than one broker instance shares the code space.
type MemoryStore struct {
	mu      sync.Mutex
	clients map[string]*Client
	codes   map[string]memoryCode
	done    chan struct{}
	once    sync.Once
}

var _ ClientStore = (*MemoryStore)(nil)
var _ CodeStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		clients: make(map[string]*Client),
		codes:   make(map[string]memoryCode),
		done:    make(chan struct{}),
	}
	go s.sweep(time.Minute)
	return s
}

// Close stops the background expiry sweep.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for code, entry := range s.codes {
				if now.After(entry.expiresAt) {
					delete(s.codes, code)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) SaveClient(ctx context.Context, client *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
	return nil
}

func (s *MemoryStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	return client, nil
}

func (s *MemoryStore) DeleteClient(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientID)
	return nil
}

func (s *MemoryStore) SaveCode(ctx context.Context, code string, record *PendingCode, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = memoryCode{record: record, expiresAt: time.Now().Add(ttl)}
	return nil
}

// ConsumeCode looks up and deletes under one lock, which gives the
// required exactly-one-winner semantics for concurrent redemptions.
func (s *MemoryStore) ConsumeCode(ctx context.Context, code string) (*PendingCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.codes, code)
	if time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	return entry.record, nil
}
