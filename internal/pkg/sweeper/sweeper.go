package sweeper

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// DefaultInterval between sweep runs.
const DefaultInterval = time.Hour

// DefaultRetention is how long an expired listing is kept before it is
// purged for good.
const DefaultRetention = 180 * 24 * time.Hour

// Store is the slice of the listing repository the sweeper drives. Each
// method is one set-based bulk transition.
type Store interface {
	ExpirePaidDue(now time.Time) (int64, error)
	ExpireTrialsDue(now time.Time) (int64, error)
	PurgeExpiredBefore(cutoff time.Time) (int64, error)
}

// Sweeper periodically applies the time-based lifecycle transitions:
// paid windows that ran out, trial windows that ran out, and the purge of
// long-expired listings. It owns its own start/stop lifecycle and holds
// an in-flight guard so ticks never overlap.
type Sweeper struct {
	store     Store
	interval  time.Duration
	retention time.Duration
	now       func() time.Time

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	inFlight atomic.Bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval overrides the tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRetention overrides the retention period for expired listings.
func WithRetention(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithClock injects the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New creates a sweeper over the given store.
func New(store Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		interval:  DefaultInterval,
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. The first run happens immediately.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true
	log.Infof("[Sweeper] Started (interval: %s, retention: %s)", s.interval, s.retention)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce()

		for {
			select {
			case <-s.stopCh:
				log.Info("[Sweeper] Stopped")
				return
			case <-ticker.C:
				s.RunOnce()
			}
		}
	}()
}

// Stop halts the sweep loop and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// RunOnce performs a single sweep. A tick arriving while a run is still
// in flight is skipped; the next interval re-evaluates the same
// predicates anyway. Step failures are logged and the remaining steps are
// still attempted.
func (s *Sweeper) RunOnce() {
	if !s.inFlight.CompareAndSwap(false, true) {
		log.Warn("[Sweeper] Previous run still in flight, skipping tick")
		return
	}
	defer s.inFlight.Store(false)

	now := s.now()

	if n, err := s.store.ExpirePaidDue(now); err != nil {
		log.Errorf("[Sweeper] Expiring due paid listings failed: %v", err)
	} else if n > 0 {
		log.Infof("[Sweeper] Expired %d paid listings", n)
	}

	if n, err := s.store.ExpireTrialsDue(now); err != nil {
		log.Errorf("[Sweeper] Expiring due trials failed: %v", err)
	} else if n > 0 {
		log.Infof("[Sweeper] Expired %d trial listings", n)
	}

	cutoff := now.Add(-s.retention)
	if n, err := s.store.PurgeExpiredBefore(cutoff); err != nil {
		log.Errorf("[Sweeper] Purging long-expired listings failed: %v", err)
	} else if n > 0 {
		log.Infof("[Sweeper] Purged %d listings expired before %s", n, cutoff.UTC().Format(time.RFC3339))
	}
}
