package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator walks a preference list against one session and books up to
// the target count. Attempts are strictly sequential.
type Orchestrator struct {
	session  booking.Session
	policy   Policy
	log      *zap.Logger
	recorder Recorder
	portal   string
	now      func() time.Time
	newID    func() string
}

type Option func(*Orchestrator)

func WithPolicy(p Policy) Option { return func(o *Orchestrator) { o.policy = p } }

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

func WithPortalName(name string) Option { return func(o *Orchestrator) { o.portal = name } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func WithRunID(fn func() string) Option { return func(o *Orchestrator) { o.newID = fn } }

func NewOrchestrator(session booking.Session, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session:  session,
		policy:   DefaultPolicy(),
		log:      zap.NewNop(),
		recorder: nopRecorder{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.policy = o.policy.normalized()
	return o
}

// Run books against date. An error is returned only when the run could not
// start: invalid preferences or no initial snapshot. Everything after that is
// reported in the RunResult.
func (o *Orchestrator) Run(ctx context.Context, prefs booking.PreferenceSet, date time.Time) (booking.RunResult, error) {
	if err := prefs.Validate(); err != nil {
		return booking.RunResult{}, err
	}

	res := booking.RunResult{
		RunID:      o.newID(),
		Portal:     o.portal,
		TargetDate: date,
		Target:     prefs.Target,
		StartedAt:  o.now(),
		Outcomes:   []booking.Outcome{},
	}
	log := o.log.With(zap.String("run_id", res.RunID), zap.String("date", date.Format("2006-01-02")))

	snap, err := o.fetch(ctx, date)
	if err != nil {
		log.Error("initial availability fetch failed", zap.Error(err))
		return booking.RunResult{}, fmt.Errorf("%w: %v", booking.ErrSnapshotUnavailable, err)
	}
	log.Info("availability loaded", zap.Int("slots", len(snap.Slots)), zap.Int("target", prefs.Target))

	ordered := prefs.Ordered()
	for i, p := range ordered {
		if res.Booked >= prefs.Target {
			res.Messages = append(res.Messages,
				fmt.Sprintf("target of %d reached; %d preference(s) not evaluated", prefs.Target, len(ordered)-i))
			break
		}
		if err := ctx.Err(); err != nil {
			res.Canceled = true
			res.Messages = append(res.Messages,
				fmt.Sprintf("run canceled before priority %d: %v", p.Priority, err))
			break
		}

		slot, ok := snap.Match(p)
		if !ok {
			log.Info("no slot for preference", zap.Stringer("preference", p))
			res.Outcomes = append(res.Outcomes, booking.Outcome{
				Priority:   p.Priority,
				Preference: p,
				Status:     booking.OutcomeUnmatched,
			})
			o.recorder.AttemptFinished(booking.OutcomeUnmatched, "", 0, 0)
			continue
		}

		rep := NewAttempt(o.session, p, slot, o.policy, log).Run(ctx)
		out := booking.Outcome{
			Priority:   p.Priority,
			Preference: p,
			Slot:       &slot,
			Retries:    rep.Retries,
			Duration:   rep.Duration,
		}
		if rep.Confirmed() {
			out.Status = booking.OutcomeBooked
			out.Confirmation = rep.Confirmation
			res.Booked++
			log.Info("booked", zap.Stringer("preference", p), zap.String("slot", slot.Time.String()), zap.Int("tee", slot.Tee))
		} else {
			out.Status = booking.OutcomeFailed
			out.Reason = rep.FailureText()
			if rep.Reason == ReasonCanceled {
				res.Canceled = true
			}
			log.Warn("attempt failed", zap.Stringer("preference", p), zap.String("reason", out.Reason))
		}
		res.Outcomes = append(res.Outcomes, out)
		o.recorder.AttemptFinished(out.Status, rep.Reason, rep.Retries, rep.Duration)

		if rep.Confirmed() && res.Booked < prefs.Target && i < len(ordered)-1 {
			// A booking changes what is left; never match against the old view.
			snap, err = o.fetch(ctx, date)
			if err != nil {
				res.Messages = append(res.Messages,
					fmt.Sprintf("availability refresh failed after priority %d, stopping: %v", p.Priority, err))
				if ctx.Err() != nil {
					res.Canceled = true
				}
				break
			}
		}
	}

	res.Status = booking.StatusFor(res.Booked, res.Target)
	res.FinishedAt = o.now()
	o.recorder.RunFinished(res)
	log.Info("run finished", zap.String("status", string(res.Status)), zap.Int("booked", res.Booked))
	return res, nil
}

func (o *Orchestrator) fetch(ctx context.Context, date time.Time) (booking.SlotSnapshot, error) {
	var lastErr error
	for try := 0; try <= o.policy.Retries; try++ {
		if err := ctx.Err(); err != nil {
			return booking.SlotSnapshot{}, err
		}
		fctx, cancel := context.WithTimeout(ctx, o.policy.FetchTimeout)
		snap, err := o.session.FetchAvailability(fctx, date)
		cancel()
		if err == nil {
			return snap, nil
		}
		lastErr = err
		o.log.Warn("availability fetch failed", zap.Int("try", try+1), zap.Error(err))
	}
	return booking.SlotSnapshot{}, lastErr
}
