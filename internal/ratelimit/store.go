package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Record is the fixed-window state kept per client key.
type Record struct {
	Count         int       `json:"count"`
	WindowResetAt time.Time `json:"windowResetAt"`
}

// Expired reports whether the window of r has ended at now.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.WindowResetAt)
}

// Store persists rate limit records.
type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Upsert(ctx context.Context, key string, rec Record) error
}

// Consumer is implemented by stores that can run the whole
// read-check-increment step atomically on their side.
type Consumer interface {
	Consume(ctx context.Context, key string, ceiling int, window time.Duration, now time.Time) (Record, bool, error)
}

// MemoryStore keeps records in a process-local map. Records are never removed
// unless a sweep interval is configured with StartSweeper.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok, nil
}

func (s *MemoryStore) Upsert(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

// Len returns the number of keys currently held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep deletes every record whose window has ended at now and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// StartSweeper removes expired records every interval until ctx is done.
// An interval <= 0 disables sweeping and returns immediately.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration, now func() time.Time) {
	if interval <= 0 {
		return
	}
	if now == nil {
		now = time.Now
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(now())
			}
		}
	}()
}
