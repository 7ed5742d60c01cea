package booking

import (
	"context"
	"fmt"
	"time"
)

type OutcomeKind int

const (
	// Accepted means the portal took the step.
	Accepted OutcomeKind = iota
	// Rejected means the portal answered and said no. Retrying will not help.
	Rejected
	// TransportFailure means no usable answer arrived (timeout, navigation error).
	TransportFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case TransportFailure:
		return "transport_error"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// StepOutcome is the result of one portal interaction.
type StepOutcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

func Accept() StepOutcome { return StepOutcome{Kind: Accepted} }

func Reject(reason string) StepOutcome { return StepOutcome{Kind: Rejected, Reason: reason} }

func TransportError(err error) StepOutcome {
	reason := "transport error"
	if err != nil {
		reason = err.Error()
	}
	return StepOutcome{Kind: TransportFailure, Reason: reason, Err: err}
}

func (o StepOutcome) String() string {
	if o.Kind == Accepted {
		return o.Kind.String()
	}
	return o.Kind.String() + ": " + o.Reason
}

type ConfirmationKind int

const (
	Confirmed ConfirmationKind = iota
	// Declined is an explicit refusal shown by the portal after submit.
	Declined
	// Ambiguous covers a page that neither confirms nor refuses, including timeouts.
	Ambiguous
)

func (k ConfirmationKind) String() string {
	switch k {
	case Confirmed:
		return "confirmed"
	case Declined:
		return "declined"
	case Ambiguous:
		return "ambiguous"
	default:
		return fmt.Sprintf("ConfirmationKind(%d)", int(k))
	}
}

// Confirmation is what came back from a submit. Only Confirmed counts as a booking.
type Confirmation struct {
	Kind      ConfirmationKind
	Reference string
	Detail    string
}

// Options are the per-booking choices applied after a slot is opened.
type Options struct {
	Guests    int
	Holes     HoleCount
	Transport Transport
}

func OptionsFor(p Preference) Options {
	return Options{Guests: p.Guests, Holes: p.Holes, Transport: p.Transport}
}

// Session is one logged-in portal session. It carries mutable form state and
// must not be shared by concurrent attempts.
type Session interface {
	Login(ctx context.Context) error
	FetchAvailability(ctx context.Context, date time.Time) (SlotSnapshot, error)
	SelectSlot(ctx context.Context, handle string) StepOutcome
	SetOptions(ctx context.Context, opts Options) StepOutcome
	Submit(ctx context.Context) Confirmation
	Close() error
}

// Portal hands out independent sessions.
type Portal interface {
	Name() string
	Open(ctx context.Context) (Session, error)
}

// PreferenceSource loads the preference list for a run.
type PreferenceSource interface {
	LoadPreferences(ctx context.Context) (PreferenceSet, error)
}
