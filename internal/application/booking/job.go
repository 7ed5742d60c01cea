package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"go.uber.org/zap"
)

// Job is one scheduled booking run: load preferences, work out the date,
// open a session, wait for the tee sheet to open, book, publish.
type Job struct {
	Portal       booking.Portal
	Source       booking.PreferenceSource
	Sinks        []ResultSink
	Policy       Policy
	Recorder     Recorder
	Log          *zap.Logger
	Location     *time.Location
	Weekday      time.Weekday
	IncludeToday bool
	// OpensAt, when set, is the local time on the run day the tee sheet opens.
	OpensAt *booking.Clock
	// TargetOverride replaces the target count from the preference source when > 0.
	TargetOverride int
	Now            func() time.Time
}

func (j *Job) logger() *zap.Logger {
	if j.Log == nil {
		return zap.NewNop()
	}
	return j.Log
}

func (j *Job) clock() time.Time {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	loc := j.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

func (j *Job) policy() Policy {
	if j.Policy == (Policy{}) {
		return DefaultPolicy()
	}
	return j.Policy
}

// TargetDate is the date the next run would book.
func (j *Job) TargetDate() time.Time {
	return booking.NextWeekday(j.clock(), j.Weekday, j.IncludeToday)
}

func (j *Job) preferences(ctx context.Context) (booking.PreferenceSet, error) {
	prefs, err := j.Source.LoadPreferences(ctx)
	if err != nil {
		return booking.PreferenceSet{}, err
	}
	if j.TargetOverride > 0 {
		prefs.Target = j.TargetOverride
	}
	return prefs, prefs.Validate()
}

// Run performs a single booking run for TargetDate.
func (j *Job) Run(ctx context.Context) (booking.RunResult, error) {
	log := j.logger()
	prefs, err := j.preferences(ctx)
	if err != nil {
		return booking.RunResult{}, err
	}
	date := j.TargetDate()
	log.Info("starting booking run",
		zap.String("portal", j.Portal.Name()),
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("target", prefs.Target),
		zap.Int("preferences", len(prefs.Preferences)),
	)

	res, err := runSession(ctx, j.Portal, j.policy(), j.Recorder, log, prefs, date, j.waitForOpen)
	if err != nil {
		return booking.RunResult{}, err
	}
	publish(ctx, log, j.Sinks, res)
	return res, nil
}

// RunWeeks books the next weeks target dates concurrently, each on its own session.
func (j *Job) RunWeeks(ctx context.Context, weeks, limit int) ([]UnitResult, error) {
	prefs, err := j.preferences(ctx)
	if err != nil {
		return nil, err
	}
	first := j.TargetDate()
	units := make([]Unit, 0, weeks)
	for w := 0; w < weeks; w++ {
		d := first.AddDate(0, 0, 7*w)
		units = append(units, Unit{Name: d.Format("2006-01-02"), Date: d, Preferences: prefs})
	}
	pr := &ParallelRunner{
		Portal:   j.Portal,
		Policy:   j.policy(),
		Recorder: j.Recorder,
		Log:      j.logger(),
		Limit:    limit,
		Ready:    j.waitForOpen,
	}
	results := pr.Run(ctx, units)
	for _, r := range results {
		if r.Err == nil {
			publish(ctx, j.logger(), j.Sinks, r.Result)
		}
	}
	return results, nil
}

func (j *Job) waitForOpen(ctx context.Context) error {
	if j.OpensAt == nil {
		return nil
	}
	now := j.clock()
	at := booking.OnDate(now, *j.OpensAt, now.Location())
	if !at.After(now) {
		return nil
	}
	j.logger().Info("waiting for tee sheet to open", zap.Time("opens_at", at), zap.Duration("in", at.Sub(now)))
	return waitUntil(ctx, at.Sub(now))
}

func waitUntil(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// runSession opens and logs into a session, releases it on every path, and
// runs the orchestrator on it.
func runSession(ctx context.Context, portal booking.Portal, policy Policy, rec Recorder, log *zap.Logger,
	prefs booking.PreferenceSet, date time.Time, ready func(context.Context) error) (booking.RunResult, error) {
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	session, err := portal.Open(ctx)
	if err != nil {
		return booking.RunResult{}, fmt.Errorf("%w: open: %v", booking.ErrSessionUnavailable, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn("session close failed", zap.Error(cerr))
		}
	}()

	if err := session.Login(ctx); err != nil {
		return booking.RunResult{}, fmt.Errorf("%w: login: %v", booking.ErrSessionUnavailable, err)
	}
	if ready != nil {
		if err := ready(ctx); err != nil {
			return booking.RunResult{}, fmt.Errorf("waiting for open: %w", err)
		}
	}

	orch := NewOrchestrator(session,
		WithPolicy(policy),
		WithLogger(log),
		WithRecorder(rec),
		WithPortalName(portal.Name()),
	)
	return orch.Run(ctx, prefs, date)
}
