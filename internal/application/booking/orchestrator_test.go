package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcomeView struct {
	Priority int
	Status   booking.OutcomeStatus
	Handle   string
	Reason   string
}

func viewOutcomes(res booking.RunResult) []outcomeView {
	out := make([]outcomeView, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		v := outcomeView{Priority: o.Priority, Status: o.Status, Reason: o.Reason}
		if o.Slot != nil {
			v.Handle = o.Slot.Handle
		}
		out = append(out, v)
	}
	return out
}

func newOrch(s booking.Session, rec Recorder) *Orchestrator {
	return NewOrchestrator(s, WithPolicy(fastPolicy()), WithRecorder(rec), WithRunID(func() string { return "run-test" }))
}

func TestRunBooksFirstPreferenceAndStops(t *testing.T) {
	s := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"), slot("8:15", 10, "b"))}}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07"), pref(2, "8:15")}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)

	assert.Equal(t, booking.RunComplete, res.Status)
	assert.Equal(t, 1, res.Booked)
	assert.Equal(t, "run-test", res.RunID)
	want := []outcomeView{{Priority: 1, Status: booking.OutcomeBooked, Handle: "a"}}
	if diff := cmp.Diff(want, viewOutcomes(res)); diff != "" {
		t.Fatalf("outcomes (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, s.count("submit"))
	assert.Len(t, res.Messages, 1, "skipped preferences are noted")
}

func TestRunFallsThroughUnmatched(t *testing.T) {
	s := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("8:15", 10, "b"))}}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07"), pref(2, "8:15")}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)

	want := []outcomeView{
		{Priority: 1, Status: booking.OutcomeUnmatched},
		{Priority: 2, Status: booking.OutcomeBooked, Handle: "b"},
	}
	if diff := cmp.Diff(want, viewOutcomes(res)); diff != "" {
		t.Fatalf("outcomes (-want +got):\n%s", diff)
	}
	assert.Equal(t, booking.RunComplete, res.Status)
}

func TestRunContinuesAfterVanishedSlot(t *testing.T) {
	s := &scriptedSession{
		snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"), slot("8:15", 10, "b"))},
		selects:   map[string][]booking.StepOutcome{"a": {booking.Reject("taken")}},
	}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07"), pref(2, "8:15")}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)

	want := []outcomeView{
		{Priority: 1, Status: booking.OutcomeFailed, Handle: "a", Reason: "slot vanished: taken"},
		{Priority: 2, Status: booking.OutcomeBooked, Handle: "b"},
	}
	if diff := cmp.Diff(want, viewOutcomes(res)); diff != "" {
		t.Fatalf("outcomes (-want +got):\n%s", diff)
	}
}

func TestRunRecoversFromTransientFailure(t *testing.T) {
	s := &scriptedSession{
		snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"))},
		selects:   map[string][]booking.StepOutcome{"a": {booking.TransportError(errors.New("timeout"))}},
	}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07")}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, booking.OutcomeBooked, res.Outcomes[0].Status)
	assert.Equal(t, 1, res.Outcomes[0].Retries)
}

func TestRunNeverCountsUnconfirmedSubmit(t *testing.T) {
	ambiguous := booking.Confirmation{Kind: booking.Ambiguous, Detail: "no confirmation text"}
	s := &scriptedSession{
		snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"))},
		submits:   []booking.Confirmation{ambiguous, ambiguous},
	}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07")}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)

	assert.Zero(t, res.Booked)
	assert.Equal(t, booking.RunFailed, res.Status)
	assert.Equal(t, "unconfirmed: no confirmation text", res.Outcomes[0].Reason)
}

func TestRunContinuesAfterUnconfirmedSubmit(t *testing.T) {
	ambiguous := booking.Confirmation{Kind: booking.Ambiguous, Detail: "x"}
	s := &scriptedSession{
		snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"), slot("8:15", 10, "b"))},
		submits:   []booking.Confirmation{ambiguous, ambiguous},
	}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07"), pref(2, "8:15")}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)

	want := []outcomeView{
		{Priority: 1, Status: booking.OutcomeFailed, Handle: "a", Reason: "unconfirmed: x"},
		{Priority: 2, Status: booking.OutcomeBooked, Handle: "b"},
	}
	if diff := cmp.Diff(want, viewOutcomes(res)); diff != "" {
		t.Fatalf("outcomes (-want +got):\n%s", diff)
	}
	assert.Equal(t, booking.RunComplete, res.Status)
	assert.Equal(t, 1, res.Booked)
	assert.Equal(t, 3, s.count("submit"))
}

func TestRunAllUnmatchedFails(t *testing.T) {
	s := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("9:00", 10, "z"))}}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07"), pref(2, "8:15")}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)

	want := []outcomeView{
		{Priority: 1, Status: booking.OutcomeUnmatched},
		{Priority: 2, Status: booking.OutcomeUnmatched},
	}
	if diff := cmp.Diff(want, viewOutcomes(res)); diff != "" {
		t.Fatalf("outcomes (-want +got):\n%s", diff)
	}
	assert.Equal(t, booking.RunFailed, res.Status)
	assert.Zero(t, res.Booked)
	assert.Zero(t, s.count("select"))
	assert.Zero(t, s.count("submit"))
}

func TestRunNegativeRetriesStillFetches(t *testing.T) {
	s := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"))}}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07")}}
	p := fastPolicy()
	p.Retries = -1

	res, err := NewOrchestrator(s, WithPolicy(p)).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)
	assert.Equal(t, 1, s.count("fetch"))
	assert.Equal(t, 1, res.Booked)
	assert.Equal(t, booking.RunComplete, res.Status)
}

func TestRunNegativeRetriesReportsFetchError(t *testing.T) {
	boom := errors.New("tee sheet did not load")
	s := &scriptedSession{fetchErrs: []error{boom}}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07")}}
	p := fastPolicy()
	p.Retries = -3

	_, err := NewOrchestrator(s, WithPolicy(p)).Run(context.Background(), prefs, saturday)
	assert.ErrorIs(t, err, booking.ErrSnapshotUnavailable)
	assert.Equal(t, 1, s.count("fetch"))
}

func TestRunRefreshesAfterEachBooking(t *testing.T) {
	first := snapshot(slot("8:07", 10, "a"), slot("8:15", 10, "b"), slot("8:30", 10, "c"))
	// Someone else took 8:15 while we were booking 8:07.
	second := snapshot(slot("8:30", 10, "c"))
	s := &scriptedSession{snapshots: []booking.SlotSnapshot{first, second}}
	prefs := booking.PreferenceSet{Target: 2, Preferences: []booking.Preference{
		pref(1, "8:07"), pref(2, "8:15"), pref(3, "8:30"),
	}}

	rec := &countingRecorder{}
	res, err := newOrch(s, rec).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)

	want := []outcomeView{
		{Priority: 1, Status: booking.OutcomeBooked, Handle: "a"},
		{Priority: 2, Status: booking.OutcomeUnmatched},
		{Priority: 3, Status: booking.OutcomeBooked, Handle: "c"},
	}
	if diff := cmp.Diff(want, viewOutcomes(res)); diff != "" {
		t.Fatalf("outcomes (-want +got):\n%s", diff)
	}
	assert.Equal(t, booking.RunComplete, res.Status)
	assert.Equal(t, 2, s.count("fetch"), "initial fetch plus one refresh per booking short of the target")
	assert.Equal(t, 2, rec.attempts[booking.OutcomeBooked])
	assert.Equal(t, 1, rec.runs)
}

func TestRunPartial(t *testing.T) {
	s := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"))}}
	prefs := booking.PreferenceSet{Target: 2, Preferences: []booking.Preference{pref(1, "8:07"), pref(2, "9:00")}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)
	assert.Equal(t, booking.RunPartial, res.Status)
	assert.Equal(t, 1, res.Booked)
}

func TestRunNeverExceedsTarget(t *testing.T) {
	slots := []booking.Slot{slot("8:00", 1, "a"), slot("8:10", 1, "b"), slot("8:20", 1, "c"), slot("8:30", 1, "d")}
	s := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slots...)}}
	prefs := booking.PreferenceSet{Target: 2, Preferences: []booking.Preference{
		pref(1, "8:00"), pref(2, "8:10"), pref(3, "8:20"), pref(4, "8:30"),
	}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Booked)
	assert.Equal(t, 2, s.count("submit"))
	assert.Len(t, res.Outcomes, 2)
}

func TestRunEvaluatesInPriorityOrder(t *testing.T) {
	s := &scriptedSession{snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"), slot("9:00", 10, "b"))}}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(2, "8:07"), pref(1, "9:00")}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, 1, res.Outcomes[0].Priority)
	assert.Equal(t, "b", res.Outcomes[0].Slot.Handle)
}

func TestRunFailsWithoutInitialSnapshot(t *testing.T) {
	boom := errors.New("tee sheet did not load")
	s := &scriptedSession{fetchErrs: []error{boom, boom}}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07")}}

	_, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.Error(t, err)
	assert.ErrorIs(t, err, booking.ErrSnapshotUnavailable)
	assert.Equal(t, 2, s.count("fetch"))
}

func TestRunRetriesInitialFetchOnce(t *testing.T) {
	s := &scriptedSession{
		fetchErrs: []error{errors.New("blip")},
		snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"))},
	}
	prefs := booking.PreferenceSet{Target: 1, Preferences: []booking.Preference{pref(1, "8:07")}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Booked)
}

func TestRunRejectsInvalidPreferences(t *testing.T) {
	s := &scriptedSession{}
	_, err := newOrch(s, nil).Run(context.Background(), booking.PreferenceSet{Target: 1}, saturday)
	assert.ErrorIs(t, err, booking.ErrInvalidPreferences)
	assert.Empty(t, s.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &scriptedSession{
		snapshots:    []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"), slot("8:15", 10, "b"))},
		beforeSubmit: cancel,
	}
	prefs := booking.PreferenceSet{Target: 2, Preferences: []booking.Preference{pref(1, "8:07"), pref(2, "8:15")}}

	res, err := newOrch(s, nil).Run(ctx, prefs, saturday)
	require.NoError(t, err)

	assert.True(t, res.Canceled)
	assert.Equal(t, 1, res.Booked, "the in-flight booking still counts")
	assert.Equal(t, booking.RunPartial, res.Status)
	assert.Equal(t, 1, s.count("submit"))
}

func TestRunStopsWhenRefreshFails(t *testing.T) {
	boom := errors.New("gone")
	s := &scriptedSession{
		snapshots: []booking.SlotSnapshot{snapshot(slot("8:07", 10, "a"), slot("8:15", 10, "b"))},
		fetchErrs: []error{nil, boom, boom},
	}
	prefs := booking.PreferenceSet{Target: 2, Preferences: []booking.Preference{pref(1, "8:07"), pref(2, "8:15")}}

	res, err := newOrch(s, nil).Run(context.Background(), prefs, saturday)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Booked)
	assert.Len(t, res.Outcomes, 1)
	require.NotEmpty(t, res.Messages)
	assert.Contains(t, res.Messages[0], "refresh failed")
}
