package booking

import (
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
)

// Policy bounds every portal interaction of a run.
type Policy struct {
	FetchTimeout  time.Duration
	StepTimeout   time.Duration
	SubmitTimeout time.Duration
	// Retries is the number of extra tries a transition gets after a transport failure.
	Retries int
}

func DefaultPolicy() Policy {
	return Policy{
		FetchTimeout:  30 * time.Second,
		StepTimeout:   10 * time.Second,
		SubmitTimeout: 20 * time.Second,
		Retries:       1,
	}
}

// normalized clamps Retries so every transition is tried at least once.
func (p Policy) normalized() Policy {
	p.Retries = max(p.Retries, 0)
	return p
}

// Recorder receives run and attempt measurements.
type Recorder interface {
	AttemptFinished(status booking.OutcomeStatus, reason string, retries int, d time.Duration)
	RunFinished(r booking.RunResult)
}

type nopRecorder struct{}

func (nopRecorder) AttemptFinished(booking.OutcomeStatus, string, int, time.Duration) {}
func (nopRecorder) RunFinished(booking.RunResult)                                     {}
