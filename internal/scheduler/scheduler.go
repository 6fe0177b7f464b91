package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Debouncer rate-limits recomputation. Bursts of ingestion events collapse
// into at most one recompute per interval; the only state carried between
// calls is the last successful trigger time.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	lastRun  time.Time

	now func() time.Time
}

// NewDebouncer creates a Debouncer that allows one trigger per interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether enough time has elapsed since the last allowed
// trigger, and resets the timer when it has.
func (d *Debouncer) Allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !d.lastRun.IsZero() && now.Sub(d.lastRun) < d.interval {
		return false
	}
	d.lastRun = now
	return true
}

// Evictor is the slice of the sensor store the sweep needs.
type Evictor interface {
	EvictExpired(maxAge time.Duration) int
}

// Sweeper periodically evicts stale sensors so devices that stop reporting
// disappear even when no new readings arrive.
type Sweeper struct {
	scheduler *gocron.Scheduler
	store     Evictor
	maxAge    time.Duration
	interval  time.Duration
}

// NewSweeper creates a Sweeper that runs every interval and removes entries
// older than maxAge.
func NewSweeper(store Evictor, interval, maxAge time.Duration) *Sweeper {
	s := gocron.NewScheduler(time.UTC)
	return &Sweeper{
		scheduler: s,
		store:     store,
		maxAge:    maxAge,
		interval:  interval,
	}
}

// Start schedules the sweep job and starts the underlying scheduler.
func (s *Sweeper) Start() error {
	seconds := int(s.interval.Seconds())
	if seconds <= 0 {
		seconds = 60
	}

	_, err := s.scheduler.Every(seconds).Seconds().Do(func() {
		if removed := s.store.EvictExpired(s.maxAge); removed > 0 {
			log.Printf("sweeper: evicted %d expired sensors", removed)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future sweeps.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
