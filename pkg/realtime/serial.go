package realtime

import "sync"

// serial runs callbacks one at a time in the order they were pushed. The
// goroutine that finds it idle drains it; callbacks pushed meanwhile, including
// from inside a running callback, are left to that goroutine.
type serial struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

// push appends fns and reports whether the caller must call run.
func (s *serial) push(fns []func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, fns...)
	if s.running || len(s.queue) == 0 {
		return false
	}
	s.running = true
	return true
}

func (s *serial) run() {
	idle := false
	defer func() {
		if !idle {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			idle = true
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}
