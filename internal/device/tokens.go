package device

import (
	"context"
	"sync"
)

// TokenSet hands out per-device exclusivity tokens keyed by hardware UUID.
// The collector and the benchmark runner must both hold a device's token
// before touching that device, which serializes them without coupling
// unrelated devices: a benchmark on one device never blocks telemetry on
// another.
//
// Tokens are buffered channels of size one so acquisition can either block
// on a context (collector) or fail fast (benchmark runner).
type TokenSet struct {
	mu     sync.Mutex
	tokens map[string]chan struct{}
}

// NewTokenSet creates an empty TokenSet. Tokens are created lazily on first
// acquisition, so devices discovered by a later enumeration need no
// registration step.
func NewTokenSet() *TokenSet {
	return &TokenSet{tokens: make(map[string]chan struct{})}
}

func (s *TokenSet) token(uuid string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[uuid]
	if !ok {
		t = make(chan struct{}, 1)
		s.tokens[uuid] = t
	}
	return t
}

// Acquire blocks until the device's token is free or the context expires.
func (s *TokenSet) Acquire(ctx context.Context, uuid string) error {
	select {
	case s.token(uuid) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the token without blocking. Returns false if another
// holder has it.
func (s *TokenSet) TryAcquire(uuid string) bool {
	select {
	case s.token(uuid) <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the device's token. Panics if the token is not held, since
// that always indicates a missing Acquire on some code path.
func (s *TokenSet) Release(uuid string) {
	select {
	case <-s.token(uuid):
	default:
		panic("device: release of unheld token for " + uuid)
	}
}
