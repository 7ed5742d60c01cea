package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"go.uber.org/zap"
)

// Runner is one booking run. *booking.Job from the application layer satisfies it.
type Runner interface {
	Run(ctx context.Context) (booking.RunResult, error)
	TargetDate() time.Time
}

// History reports whether a run already happened for a target date, so a
// restart inside the trigger window does not book twice.
type History interface {
	HasRunFor(ctx context.Context, date time.Time) (bool, error)
}

// Trigger fires once a week at a local wall-clock time.
type Trigger struct {
	Weekday  time.Weekday
	At       booking.Clock
	Location *time.Location
	// Grace is how long after At a late start still fires.
	Grace time.Duration
}

// Due reports whether now falls inside this week's firing window.
func (t Trigger) Due(now time.Time) bool {
	loc := t.Location
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	if now.Weekday() != t.Weekday {
		return false
	}
	start := booking.OnDate(now, t.At, loc)
	grace := t.Grace
	if grace <= 0 {
		grace = 30 * time.Minute
	}
	return !now.Before(start) && now.Before(start.Add(grace))
}

// Scheduler polls the trigger and runs the job when due. It also accepts
// manual triggers. At most one run is in flight.
type Scheduler struct {
	Job      Runner
	Trigger  Trigger
	Interval time.Duration
	History  History
	Log      *zap.Logger
	Now      func() time.Time

	mu        sync.Mutex
	wg        sync.WaitGroup
	running   bool
	lastFired string
	last      *booking.RunResult
	manual    chan struct{}
	once      sync.Once
}

func (s *Scheduler) init() {
	s.once.Do(func() {
		s.manual = make(chan struct{}, 1)
		if s.Log == nil {
			s.Log = zap.NewNop()
		}
		if s.Now == nil {
			s.Now = time.Now
		}
		if s.Interval <= 0 {
			s.Interval = 30 * time.Second
		}
	})
}

func (s *Scheduler) Run(ctx context.Context) error {
	s.init()
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	// kick immediately
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-t.C:
			s.tick(ctx)
		case <-s.manual:
			s.start(ctx, "manual")
		}
	}
}

// TriggerNow asks for an immediate run. It returns false when a run is
// already in flight or queued.
func (s *Scheduler) TriggerNow() bool {
	s.init()
	if s.Running() {
		return false
	}
	select {
	case s.manual <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Last returns the most recent result produced by this process, if any.
func (s *Scheduler) Last() (booking.RunResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return booking.RunResult{}, false
	}
	return *s.last, true
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.Now()
	if !s.Trigger.Due(now) {
		return
	}
	day := now.In(s.location()).Format("2006-01-02")
	s.mu.Lock()
	fired := s.lastFired == day
	s.mu.Unlock()
	if fired {
		return
	}

	if s.History != nil {
		done, err := s.History.HasRunFor(ctx, s.Job.TargetDate())
		if err != nil {
			s.Log.Warn("scheduler: run history lookup failed", zap.Error(err))
		} else if done {
			s.Log.Info("scheduler: target date already has a run, skipping")
			s.markFired(day)
			return
		}
	}
	if s.start(ctx, "weekly") {
		s.markFired(day)
	}
}

func (s *Scheduler) location() *time.Location {
	if s.Trigger.Location != nil {
		return s.Trigger.Location
	}
	return time.Local
}

func (s *Scheduler) markFired(day string) {
	s.mu.Lock()
	s.lastFired = day
	s.mu.Unlock()
}

func (s *Scheduler) start(ctx context.Context, cause string) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.Log.Info("scheduler: run already in progress", zap.String("cause", cause))
		return false
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()

		s.Log.Info("scheduler: starting run", zap.String("cause", cause))
		res, err := s.Job.Run(ctx)
		if err != nil {
			s.Log.Error("scheduler: run failed", zap.String("cause", cause), zap.Error(err))
			return
		}
		s.mu.Lock()
		s.last = &res
		s.mu.Unlock()
		s.Log.Info("scheduler: run finished",
			zap.String("run_id", res.RunID),
			zap.String("status", string(res.Status)),
			zap.Int("booked", res.Booked),
		)
	}()
	return true
}
