package market

import (
	"log"
	"sync"
	"time"
)

// RestoreScheduler re-materializes persisted shops after a restart in
// small batches, so dozens of stand-ins do not spawn in one burst while
// the server is still warming up. Pure backpressure; correctness does not
// depend on the batching.
type RestoreScheduler struct {
	reg   *Registry
	sched Deferrer
	log   *log.Logger

	batchSize int
	tick      time.Duration
	initial   time.Duration

	mu       sync.Mutex
	pending  []*ShopRecord
	restored int
}

func NewRestoreScheduler(reg *Registry, d Deferrer, logger *log.Logger) *RestoreScheduler {
	cfg := reg.cfg
	return &RestoreScheduler{
		reg:       reg,
		sched:     d,
		log:       logger,
		batchSize: cfg.RestoreBatchSize,
		tick:      time.Duration(cfg.RestoreTickMs) * time.Millisecond,
		initial:   time.Duration(cfg.RestoreInitialDelayMs) * time.Millisecond,
	}
}

// Run loads every persisted shop once and schedules the batched
// restoration. The load itself is the only blocking step; callers run
// Run during boot, before live traffic.
func (s *RestoreScheduler) Run() error {
	snaps, err := s.reg.store.LoadAll()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		s.log.Printf("market: no persisted shops to restore")
		return nil
	}

	pending := make([]*ShopRecord, 0, len(snaps))
	for _, snap := range snaps {
		pending = append(pending, RecordFromSnapshot(snap))
	}
	s.mu.Lock()
	s.pending = pending
	s.mu.Unlock()

	s.log.Printf("market: scheduling restore of %d shops (batch %d)", len(pending), s.batchSize)
	s.sched.RunOnce(s.initial, s.restoreBatch)
	return nil
}

// restoreBatch registers up to batchSize shops, then reschedules itself
// until the pending list drains.
func (s *RestoreScheduler) restoreBatch() {
	s.mu.Lock()
	n := s.batchSize
	if n > len(s.pending) {
		n = len(s.pending)
	}
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	remaining := len(s.pending)
	s.mu.Unlock()

	for _, rec := range batch {
		if s.reg.world.IsOnline(rec.OwnerID) {
			continue
		}
		if s.reg.registerRestored(rec) {
			s.mu.Lock()
			s.restored++
			s.mu.Unlock()
		}
	}

	if remaining > 0 {
		s.sched.RunOnce(s.tick, s.restoreBatch)
		return
	}
	s.mu.Lock()
	restored := s.restored
	s.mu.Unlock()
	s.log.Printf("market: restore complete, %d shops back online", restored)
}

// Restored reports how many shops the scheduler has registered so far.
func (s *RestoreScheduler) Restored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restored
}

// PendingCount reports how many shops still wait for a batch.
func (s *RestoreScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
