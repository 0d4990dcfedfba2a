package scheduler

import (
	"log"
	"sync"
	"time"
)

// Scheduler runs deferred callbacks on background goroutines. It is the
// only component allowed to sit between a live player action and blocking
// work: callers enqueue and return immediately.
type Scheduler struct {
	log *log.Logger

	mu      sync.Mutex
	stopped bool
	handles map[*Handle]struct{}
	wg      sync.WaitGroup
}

// Handle cancels a scheduled callback. Cancelling an already-fired or
// already-cancelled handle is a no-op.
type Handle struct {
	s *Scheduler

	mu     sync.Mutex
	timer  *time.Timer
	done   chan struct{}
	closed bool
}

func New(logger *log.Logger) *Scheduler {
	return &Scheduler{
		log:     logger,
		handles: map[*Handle]struct{}{},
	}
}

// RunOnce fires fn once after delay.
func (s *Scheduler) RunOnce(delay time.Duration, fn func()) *Handle {
	h := &Handle{s: s, done: make(chan struct{})}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		h.markDone()
		return h
	}
	s.handles[h] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	h.mu.Lock()
	if h.closed {
		// Cancelled (e.g. by Stop) before the timer was armed.
		h.mu.Unlock()
		s.wg.Done()
		s.forget(h)
		return h
	}
	h.timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		defer s.forget(h)
		defer h.markDone()
		s.run(fn)
	})
	h.mu.Unlock()
	return h
}

// RunPeriodic fires fn after initial, then every period until the handle
// is cancelled or the scheduler stops.
func (s *Scheduler) RunPeriodic(initial, period time.Duration, fn func()) *Handle {
	h := &Handle{s: s, done: make(chan struct{})}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		h.markDone()
		return h
	}
	s.handles[h] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.forget(h)

		t := time.NewTimer(initial)
		defer t.Stop()
		select {
		case <-h.done:
			return
		case <-t.C:
		}
		s.run(fn)

		tick := time.NewTicker(period)
		defer tick.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-tick.C:
				s.run(fn)
			}
		}
	}()
	return h
}

// Stop cancels everything still pending and waits for in-flight callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	pending := make([]*Handle, 0, len(s.handles))
	for h := range s.handles {
		pending = append(pending, h)
	}
	s.mu.Unlock()

	for _, h := range pending {
		h.Cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(fn func()) {
	defer func() {
		if r := recover(); r != nil && s.log != nil {
			s.log.Printf("scheduler: callback panic: %v", r)
		}
	}()
	fn()
}

func (s *Scheduler) forget(h *Handle) {
	s.mu.Lock()
	delete(s.handles, h)
	s.mu.Unlock()
}

func (h *Handle) Cancel() {
	// Close and read the timer in one critical section: a RunOnce that
	// has published the handle but not armed the timer yet will see
	// closed and clean up instead of arming.
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
	timer := h.timer
	h.mu.Unlock()

	if timer != nil && timer.Stop() {
		// Timer never fired; the AfterFunc body will not run.
		h.s.wg.Done()
		h.s.forget(h)
	}
}

func (h *Handle) markDone() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
}
