package conversation

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/consultia/clinic-agent/pkg/logging"
)

const (
	defaultSessionCapacity = 10000
	defaultSessionIdleTTL  = 24 * time.Hour
)

type memorySession struct {
	key     string
	turns   []Turn
	touched time.Time
}

// MemorySessionStore is a process-local session registry bounded by capacity
// (least recently used sessions are evicted first) and by an idle TTL.
type MemorySessionStore struct {
	mu       sync.Mutex
	capacity int
	idleTTL  time.Duration
	now      func() time.Time
	lru      *list.List
	sessions map[string]*list.Element
}

// MemorySessionOption customises a MemorySessionStore.
type MemorySessionOption func(*MemorySessionStore)

// WithSessionClock injects the time source used for idle expiry.
func WithSessionClock(now func() time.Time) MemorySessionOption {
	return func(s *MemorySessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemorySessionStore builds a registry. Non-positive capacity or TTL use defaults.
func NewMemorySessionStore(capacity int, idleTTL time.Duration, opts ...MemorySessionOption) *MemorySessionStore {
	if capacity <= 0 {
		capacity = defaultSessionCapacity
	}
	if idleTTL <= 0 {
		idleTTL = defaultSessionIdleTTL
	}
	s := &MemorySessionStore{
		capacity: capacity,
		idleTTL:  idleTTL,
		now:      time.Now,
		lru:      list.New(),
		sessions: make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements SessionStore and returns a copy of the log.
func (s *MemorySessionStore) Get(_ context.Context, key string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(key)
	if sess == nil {
		return []Turn{}, nil
	}
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

// Append implements SessionStore, creating the session on first use.
func (s *MemorySessionStore) Append(_ context.Context, key string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.At.IsZero() {
		turn.At = s.now()
	}
	sess := s.lookup(key)
	if sess == nil {
		sess = &memorySession{key: key, touched: s.now()}
		s.sessions[key] = s.lru.PushFront(sess)
		s.evictOverflow()
	}
	sess.turns = append(sess.turns, turn)
	return nil
}

// Clear implements SessionStore.
func (s *MemorySessionStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.sessions[key]; ok {
		s.remove(el)
	}
	return nil
}

// Len reports the number of live sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Sweep drops every session idle longer than the TTL and returns how many went.
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	now := s.now()
	for el := s.lru.Back(); el != nil; {
		prev := el.Prev()
		if now.Sub(el.Value.(*memorySession).touched) > s.idleTTL {
			s.remove(el)
			removed++
		}
		el = prev
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemorySessionStore) RunSweeper(ctx context.Context, every time.Duration, logger *logging.Logger) {
	if logger == nil {
		logger = logging.Default()
	}
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Debug("idle sessions swept", "removed", n, "remaining", s.Len())
			}
		}
	}
}

// lookup returns the live session for key and marks it recently used.
// Expired sessions are dropped. Callers hold s.mu.
func (s *MemorySessionStore) lookup(key string) *memorySession {
	el, ok := s.sessions[key]
	if !ok {
		return nil
	}
	sess := el.Value.(*memorySession)
	now := s.now()
	if now.Sub(sess.touched) > s.idleTTL {
		s.remove(el)
		return nil
	}
	sess.touched = now
	s.lru.MoveToFront(el)
	return sess
}

func (s *MemorySessionStore) evictOverflow() {
	for s.lru.Len() > s.capacity {
		s.remove(s.lru.Back())
	}
}

func (s *MemorySessionStore) remove(el *list.Element) {
	sess := el.Value.(*memorySession)
	s.lru.Remove(el)
	delete(s.sessions, sess.key)
}
