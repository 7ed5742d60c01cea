package booking

import (
	"context"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"go.uber.org/zap"
)

type AttemptState string

const (
	StateMatched     AttemptState = "matched"
	StateSelecting   AttemptState = "selecting"
	StateConfiguring AttemptState = "configuring_options"
	StateSubmitting  AttemptState = "submitting"
	StateConfirmed   AttemptState = "confirmed"
	StateAborted     AttemptState = "aborted"
)

// Abort reasons recorded on failed outcomes.
const (
	ReasonSlotVanished   = "slot vanished"
	ReasonOptionRejected = "option rejected"
	ReasonDeclined       = "submit declined"
	ReasonUnconfirmed    = "unconfirmed"
	ReasonTimeout        = "portal timeout"
	ReasonCanceled       = "canceled"
)

var nextStates = map[AttemptState][]AttemptState{
	StateMatched:     {StateSelecting, StateAborted},
	StateSelecting:   {StateConfiguring, StateAborted},
	StateConfiguring: {StateSubmitting, StateAborted},
	StateSubmitting:  {StateConfirmed, StateAborted},
}

// AttemptReport is what an attempt hands back to the orchestrator.
type AttemptReport struct {
	State        AttemptState
	Reason       string
	Detail       string
	Retries      int
	Confirmation string
	History      []AttemptState
	Duration     time.Duration
}

func (r AttemptReport) Confirmed() bool { return r.State == StateConfirmed }

// FailureText joins reason and detail for the run record.
func (r AttemptReport) FailureText() string {
	if r.Detail == "" || r.Detail == r.Reason {
		return r.Reason
	}
	return r.Reason + ": " + r.Detail
}

// Attempt drives one matched preference through select, options and submit.
// It is single use; a retry of the whole booking is a new Attempt.
type Attempt struct {
	session booking.Session
	pref    booking.Preference
	slot    booking.Slot
	policy  Policy
	log     *zap.Logger

	state   AttemptState
	history []AttemptState
	reason  string
	detail  string
	retries int
	ref     string
}

func NewAttempt(session booking.Session, pref booking.Preference, slot booking.Slot, policy Policy, log *zap.Logger) *Attempt {
	if log == nil {
		log = zap.NewNop()
	}
	return &Attempt{
		session: session,
		pref:    pref,
		slot:    slot,
		policy:  policy.normalized(),
		log: log.With(
			zap.Int("priority", pref.Priority),
			zap.String("slot", slot.Time.String()),
			zap.Int("tee", slot.Tee),
		),
		state:   StateMatched,
		history: []AttemptState{StateMatched},
	}
}

func (a *Attempt) State() AttemptState { return a.state }

// Run executes the state machine to a terminal state. Cancellation of ctx is
// honoured before submit; a submit that has started always runs to its own
// timeout.
func (a *Attempt) Run(ctx context.Context) AttemptReport {
	start := time.Now()
	defer func() {
		a.log.Debug("attempt finished",
			zap.String("state", string(a.state)),
			zap.String("reason", a.reason),
			zap.Int("retries", a.retries),
		)
	}()

	a.transition(StateSelecting)
	ok := a.step(ctx, ReasonSlotVanished, a.policy.StepTimeout, func(ctx context.Context) booking.StepOutcome {
		return a.session.SelectSlot(ctx, a.slot.Handle)
	})
	if !ok {
		return a.report(start)
	}

	a.transition(StateConfiguring)
	opts := booking.OptionsFor(a.pref)
	ok = a.step(ctx, ReasonOptionRejected, a.policy.StepTimeout, func(ctx context.Context) booking.StepOutcome {
		return a.session.SetOptions(ctx, opts)
	})
	if !ok {
		return a.report(start)
	}

	if err := ctx.Err(); err != nil {
		a.abort(ReasonCanceled, err.Error())
		return a.report(start)
	}
	a.transition(StateSubmitting)
	a.submit(context.WithoutCancel(ctx))
	return a.report(start)
}

// step runs one portal interaction with the bounded retry rule: transport
// failures get one more try, rejections abort straight away.
func (a *Attempt) step(ctx context.Context, rejectReason string, timeout time.Duration, fn func(context.Context) booking.StepOutcome) bool {
	for try := 0; ; try++ {
		if err := ctx.Err(); err != nil {
			a.abort(ReasonCanceled, err.Error())
			return false
		}
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		out := fn(stepCtx)
		cancel()

		switch out.Kind {
		case booking.Accepted:
			return true
		case booking.Rejected:
			a.abort(rejectReason, out.Reason)
			return false
		default:
			if ctx.Err() == nil && try < a.policy.Retries {
				a.retries++
				a.log.Warn("transient portal failure, retrying",
					zap.String("state", string(a.state)),
					zap.String("detail", out.Reason),
				)
				continue
			}
			a.abort(ReasonTimeout, out.Reason)
			return false
		}
	}
}

func (a *Attempt) submit(ctx context.Context) {
	for try := 0; ; try++ {
		subCtx, cancel := context.WithTimeout(ctx, a.policy.SubmitTimeout)
		c := a.session.Submit(subCtx)
		cancel()

		switch c.Kind {
		case booking.Confirmed:
			a.ref = c.Reference
			a.transition(StateConfirmed)
			return
		case booking.Declined:
			a.abort(ReasonDeclined, c.Detail)
			return
		default:
			if try < a.policy.Retries {
				a.retries++
				a.log.Warn("submit not confirmed, retrying", zap.String("detail", c.Detail))
				continue
			}
			a.abort(ReasonUnconfirmed, c.Detail)
			return
		}
	}
}

func (a *Attempt) transition(to AttemptState) {
	for _, allowed := range nextStates[a.state] {
		if allowed == to {
			a.state = to
			a.history = append(a.history, to)
			return
		}
	}
	a.log.Error("illegal attempt transition", zap.String("from", string(a.state)), zap.String("to", string(to)))
	a.state = StateAborted
	a.history = append(a.history, StateAborted)
	a.reason = "illegal transition"
}

func (a *Attempt) abort(reason, detail string) {
	a.reason = reason
	a.detail = detail
	a.transition(StateAborted)
}

func (a *Attempt) report(start time.Time) AttemptReport {
	h := make([]AttemptState, len(a.history))
	copy(h, a.history)
	return AttemptReport{
		State:        a.state,
		Reason:       a.reason,
		Detail:       a.detail,
		Retries:      a.retries,
		Confirmation: a.ref,
		History:      h,
		Duration:     time.Since(start),
	}
}
