package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	runs []booking.RunResult
	err  error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Record(_ context.Context, r booking.RunResult) error {
	s.runs = append(s.runs, r)
	return s.err
}

type failingSource struct{ err error }

func (f failingSource) LoadPreferences(context.Context) (booking.PreferenceSet, error) {
	return booking.PreferenceSet{}, f.err
}

func friday() time.Time { return time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC) }

func TestJobRunPublishesAndClosesSession(t *testing.T) {
	s := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"))}}
	sink := &recordingSink{err: errors.New("sink down")}
	j := &Job{
		Portal:       &fakePortal{sessions: []*scriptedSession{s}},
		Source:       StaticSource(booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07")}}),
		Sinks:        []ResultSink{sink},
		Policy:       fastPolicy(),
		Location:     time.UTC,
		Weekday:      time.Saturday,
		IncludeToday: true,
		Now:          friday,
	}

	res, err := j.Run(context.Background())
	require.NoError(t, err, "sink failures do not fail the run")
	assert.Equal(t, booking.RunComplete, res.Status)
	assert.Equal(t, "2026-10-17", res.TargetDate.Format("2006-01-02"))
	assert.Equal(t, "fake", res.Portal)
	assert.Len(t, sink.runs, 1)
	assert.True(t, s.closed)
}

func TestJobLoginFailure(t *testing.T) {
	s := &scriptedSession{loginErr: errors.New("bad password")}
	j := &Job{
		Portal:  &fakePortal{sessions: []*scriptedSession{s}},
		Source:  StaticSource(booking.DefaultPreferences()),
		Weekday: time.Saturday,
		Now:     friday,
	}
	_, err := j.Run(context.Background())
	assert.ErrorIs(t, err, booking.ErrSessionUnavailable)
	assert.True(t, s.closed, "session is released on the error path")
	assert.Zero(t, s.count("fetch"))
}

func TestJobOpenFailure(t *testing.T) {
	j := &Job{
		Portal:  &fakePortal{openErr: errors.New("chrome missing")},
		Source:  StaticSource(booking.DefaultPreferences()),
		Weekday: time.Saturday,
		Now:     friday,
	}
	_, err := j.Run(context.Background())
	assert.ErrorIs(t, err, booking.ErrSessionUnavailable)
}

func TestJobTargetOverride(t *testing.T) {
	s := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"), slot("8:15", 10, "b"))}}
	j := &Job{
		Portal:         &fakePortal{sessions: []*scriptedSession{s}},
		Source:         StaticSource(booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07"), pref(2, "8:15")}}),
		Policy:         fastPolicy(),
		Weekday:        time.Saturday,
		TargetOverride: 2,
		Now:            friday,
	}
	res, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Target)
	assert.Equal(t, 2, res.Booked)
}

func TestJobWaitsForOpenAndHonoursCancel(t *testing.T) {
	s := &scriptedSession{}
	opens := booking.NewClock(23, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	j := &Job{
		Portal:   &fakePortal{sessions: []*scriptedSession{s}},
		Source:   StaticSource(booking.DefaultPreferences()),
		Location: time.UTC,
		Weekday:  time.Saturday,
		OpensAt:  &opens,
		Now:      friday,
	}
	_, err := j.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, s.count("fetch"))
	assert.True(t, s.closed)
}

func TestJobSkipsWaitWhenAlreadyOpen(t *testing.T) {
	s := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"))}}
	opens := booking.NewClock(6, 0)
	j := &Job{
		Portal:   &fakePortal{sessions: []*scriptedSession{s}},
		Source:   StaticSource(booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07")}}),
		Policy:   fastPolicy(),
		Location: time.UTC,
		Weekday:  time.Saturday,
		OpensAt:  &opens,
		Now:      friday,
	}
	res, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Booked)
}

func TestFallbackSource(t *testing.T) {
	good := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "9:00")}}
	def := booking.DefaultPreferences()

	f := &FallbackSource{
		Sources: []NamedSource{
			{Name: "sheets", Source: failingSource{err: errors.New("403")}},
			{Name: "invalid", Source: StaticSource(booking.PreferenceSet{Target: 1})},
			{Name: "file", Source: StaticSource(good)},
		},
		Default: &def,
	}
	got, err := f.LoadPreferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, good, got)

	f.Sources = f.Sources[:2]
	got, err = f.LoadPreferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, def, got)

	f.Default = nil
	_, err = f.LoadPreferences(context.Background())
	assert.ErrorIs(t, err, booking.ErrNoPreferenceSource)
}

func TestParallelRunnerIsolatesSessions(t *testing.T) {
	a := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"))}}
	b := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "b"))}, loginErr: errors.New("locked")}
	pr := &ParallelRunner{
		Portal: &fakePortal{sessions: []*scriptedSession{a, b}},
		Policy: fastPolicy(),
		Limit:  1,
	}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07")}}
	results := pr.Run(context.Background(), []Unit{
		{Name: "w1", Date: saturday, Preferences: prefs},
		{Name: "w2", Date: saturday.AddDate(0, 0, 7), Preferences: prefs},
	})

	require.Len(t, results, 2)
	booked, failed := 0, 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			assert.ErrorIs(t, r.Err, booking.ErrSessionUnavailable)
			continue
		}
		booked += r.Result.Booked
	}
	assert.Equal(t, 1, booked)
	assert.Equal(t, 1, failed)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Equal(t, "w1", results[0].Unit.Name)
}

func TestJobRunWeeks(t *testing.T) {
	mk := func() *scriptedSession {
		return &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"))}}
	}
	sink := &recordingSink{}
	j := &Job{
		Portal:   &fakePortal{sessions: []*scriptedSession{mk(), mk(), mk()}},
		Source:   StaticSource(booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07")}}),
		Sinks:    []ResultSink{sink},
		Policy:   fastPolicy(),
		Location: time.UTC,
		Weekday:  time.Saturday,
		Now:      friday,
	}
	results, err := j.RunWeeks(context.Background(), 3, 1)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "2026-10-17", results[0].Unit.Name)
	assert.Equal(t, "2026-10-31", results[2].Unit.Name)
	assert.Len(t, sink.runs, 3)
}
