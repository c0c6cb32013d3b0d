package realtime

import (
	"sync"

	"go.uber.org/atomic"
)

type listener[F any] struct {
	id     uint64
	fn     F
	active *atomic.Bool
}

// listenerSet keeps callbacks per key in registration order.
type listenerSet[K comparable, F any] struct {
	mu     sync.Mutex
	nextID uint64
	byKey  map[K][]listener[F]
}

func (s *listenerSet[K, F]) add(key K, fn F) func() {
	s.mu.Lock()
	if s.byKey == nil {
		s.byKey = make(map[K][]listener[F])
	}
	s.nextID++
	l := listener[F]{id: s.nextID, fn: fn, active: atomic.NewBool(true)}
	s.byKey[key] = append(s.byKey[key], l)
	s.mu.Unlock()

	return func() {
		if !l.active.CompareAndSwap(true, false) {
			return
		}
		s.remove(key, l.id)
	}
}

func (s *listenerSet[K, F]) remove(key K, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byKey[key]
	for i := range list {
		if list[i].id != id {
			continue
		}
		next := make([]listener[F], 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(s.byKey, key)
		} else {
			s.byKey[key] = next
		}
		return
	}
}

// snapshot returns the listeners of key. The slice is never mutated in place,
// so it stays valid after the lock is released.
func (s *listenerSet[K, F]) snapshot(key K) []listener[F] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKey[key]
}

func (s *listenerSet[K, F]) count(key K) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey[key])
}
