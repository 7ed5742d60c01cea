package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
)

// scriptedSession replays canned portal answers. Unscripted steps succeed.
type scriptedSession struct {
	mu sync.Mutex

	snapshots []booking.SlotSnapshot
	fetchErrs []error
	selects   map[string][]booking.StepOutcome
	options   []booking.StepOutcome
	submits   []booking.Confirmation
	loginErr  error

	// beforeSubmit runs at the start of every Submit call.
	beforeSubmit func()

	fetches int
	calls   []string
	closed  bool
}

func (s *scriptedSession) Login(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "login")
	return s.loginErr
}

func (s *scriptedSession) FetchAvailability(_ context.Context, date time.Time) (booking.SlotSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.fetches
	s.fetches++
	s.calls = append(s.calls, "fetch")
	if i < len(s.fetchErrs) && s.fetchErrs[i] != nil {
		return booking.SlotSnapshot{}, s.fetchErrs[i]
	}
	if len(s.snapshots) == 0 {
		return booking.NewSnapshot(date, time.Now(), nil), nil
	}
	// fetchErrs entries consume a call but not a snapshot.
	ok := 0
	for j := 0; j < i; j++ {
		if j >= len(s.fetchErrs) || s.fetchErrs[j] == nil {
			ok++
		}
	}
	if ok >= len(s.snapshots) {
		ok = len(s.snapshots) - 1
	}
	return s.snapshots[ok], nil
}

func (s *scriptedSession) SelectSlot(_ context.Context, handle string) booking.StepOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "select:"+handle)
	q := s.selects[handle]
	if len(q) == 0 {
		return booking.Accept()
	}
	s.selects[handle] = q[1:]
	return q[0]
}

func (s *scriptedSession) SetOptions(context.Context, booking.Options) booking.StepOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "options")
	if len(s.options) == 0 {
		return booking.Accept()
	}
	o := s.options[0]
	s.options = s.options[1:]
	return o
}

func (s *scriptedSession) Submit(context.Context) booking.Confirmation {
	if s.beforeSubmit != nil {
		s.beforeSubmit()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "submit")
	if len(s.submits) == 0 {
		return booking.Confirmation{Kind: booking.Confirmed, Reference: "ok"}
	}
	c := s.submits[0]
	s.submits = s.submits[1:]
	return c
}

func (s *scriptedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedSession) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type fakePortal struct {
	mu       sync.Mutex
	sessions []*scriptedSession
	openErr  error
	opened   int
}

func (p *fakePortal) Name() string { return "fake" }

func (p *fakePortal) Open(context.Context) (booking.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return nil, p.openErr
	}
	if p.opened >= len(p.sessions) {
		return nil, errors.New("no more sessions")
	}
	s := p.sessions[p.opened]
	p.opened++
	return s, nil
}

func clock(s string) booking.Clock {
	c, err := booking.ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func pref(priority int, window string) booking.Preference {
	w, err := booking.ParseTimeWindow(window)
	if err != nil {
		panic(err)
	}
	return booking.Preference{
		Priority:  priority,
		Window:    w,
		Holes:     booking.HolesEighteen,
		Transport: booking.TransportCart,
		Guests:    3,
	}
}

func slot(at string, tee int, handle string) booking.Slot {
	return booking.Slot{SlotKey: booking.SlotKey{Time: clock(at), Tee: tee}, Capacity: 4, Handle: handle}
}

func snapshot(slots ...booking.Slot) booking.SlotSnapshot {
	return booking.NewSnapshot(saturday, saturday, slots)
}

var saturday = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

func fastPolicy() Policy {
	return Policy{FetchTimeout: time.Second, StepTimeout: time.Second, SubmitTimeout: time.Second, Retries: 1}
}

type countingRecorder struct {
	mu       sync.Mutex
	attempts map[booking.OutcomeStatus]int
	runs     int
}

func (r *countingRecorder) AttemptFinished(status booking.OutcomeStatus, _ string, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempts == nil {
		r.attempts = map[booking.OutcomeStatus]int{}
	}
	r.attempts[status]++
}

func (r *countingRecorder) RunFinished(booking.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
}
