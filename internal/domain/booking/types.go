package booking

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type HoleCount int

const (
	HolesNine     HoleCount = 9
	HolesEighteen HoleCount = 18
)

func (h HoleCount) Valid() bool { return h == HolesNine || h == HolesEighteen }

type Transport string

const (
	TransportCart     Transport = "CART"
	TransportWalk     Transport = "WALK"
	TransportWalkRide Transport = "WALK/RIDE"
)

// ParseTransport normalizes a transport string. Unknown values fall back to CART.
func ParseTransport(s string) Transport {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WALK":
		return TransportWalk
	case "WALK/RIDE", "WALK-RIDE", "W/R":
		return TransportWalkRide
	default:
		return TransportCart
	}
}

// Clock is a time of day in minutes after midnight.
type Clock int

func NewClock(hour, minute int) Clock { return Clock(hour*60 + minute) }

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// String renders the clock as HH:MM.
func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute()) }

// PortalString renders the clock the way the portal encodes it (HH:MM:SS).
func (c Clock) PortalString() string { return c.String() + ":00" }

// ParseClock accepts "8:07", "08:07", "08:07:00" and "1:30 PM".
// Without an AM/PM marker, hours 1 through 5 are read as afternoon tee times.
func ParseClock(s string) (Clock, error) { return parseClock(s, true) }

// ParseWallClock is ParseClock without the afternoon rule, for schedule
// settings such as "05:55".
func ParseWallClock(s string) (Clock, error) { return parseClock(s, false) }

func parseClock(s string, teeTime bool) (Clock, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return 0, fmt.Errorf("empty time")
	}
	pm := strings.HasSuffix(raw, "PM")
	am := strings.HasSuffix(raw, "AM")
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(raw, "PM"), "AM"))

	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	switch {
	case pm && hour < 12:
		hour += 12
	case am && hour == 12:
		hour = 0
	case teeTime && !pm && !am && hour >= 1 && hour <= 5:
		hour += 12
	}
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	return NewClock(hour, minute), nil
}

// TimeWindow is an inclusive range of tee times. Start == End is an exact time.
type TimeWindow struct {
	Start Clock `json:"start" yaml:"start"`
	End   Clock `json:"end" yaml:"end"`
}

func At(c Clock) TimeWindow { return TimeWindow{Start: c, End: c} }

func (w TimeWindow) Exact() bool { return w.Start == w.End }

func (w TimeWindow) Contains(c Clock) bool { return c >= w.Start && c <= w.End }

func (w TimeWindow) String() string {
	if w.Exact() {
		return w.Start.String()
	}
	return w.Start.String() + "-" + w.End.String()
}

// ParseTimeWindow parses either a single time ("8:07") or a range ("8:00-9:30").
func ParseTimeWindow(s string) (TimeWindow, error) {
	if from, to, ok := strings.Cut(s, "-"); ok {
		start, err := ParseClock(from)
		if err != nil {
			return TimeWindow{}, err
		}
		end, err := ParseClock(to)
		if err != nil {
			return TimeWindow{}, err
		}
		if end < start {
			return TimeWindow{}, fmt.Errorf("time range %q ends before it starts", s)
		}
		return TimeWindow{Start: start, End: end}, nil
	}
	c, err := ParseClock(s)
	if err != nil {
		return TimeWindow{}, err
	}
	return At(c), nil
}

// MaxGuests is the portal's group limit minus the member.
const MaxGuests = 3

type Preference struct {
	Priority  int        `json:"priority"`
	Window    TimeWindow `json:"window"`
	Tee       int        `json:"tee,omitempty"` // starting hole; 0 means any
	Holes     HoleCount  `json:"holes"`
	Transport Transport  `json:"transport"`
	Guests    int        `json:"guests"`
}

// PartySize is the member plus guests.
func (p Preference) PartySize() int { return 1 + p.Guests }

func (p Preference) String() string {
	s := fmt.Sprintf("#%d %s %dh %s +%d", p.Priority, p.Window, p.Holes, p.Transport, p.Guests)
	if p.Tee != 0 {
		s += fmt.Sprintf(" tee %d", p.Tee)
	}
	return s
}

func (p Preference) Validate() error {
	if !p.Holes.Valid() {
		return fmt.Errorf("priority %d: holes must be 9 or 18, got %d", p.Priority, p.Holes)
	}
	if p.Guests < 0 || p.Guests > MaxGuests {
		return fmt.Errorf("priority %d: guests must be 0..%d, got %d", p.Priority, MaxGuests, p.Guests)
	}
	if p.Window.End < p.Window.Start {
		return fmt.Errorf("priority %d: time window ends before it starts", p.Priority)
	}
	switch p.Transport {
	case TransportCart, TransportWalk, TransportWalkRide:
	default:
		return fmt.Errorf("priority %d: unknown transport %q", p.Priority, p.Transport)
	}
	return nil
}

// PreferenceSet is the ranked wish list for one run plus how many bookings to make.
type PreferenceSet struct {
	Target      int          `json:"target"`
	Preferences []Preference `json:"preferences"`
}

func (s PreferenceSet) Validate() error {
	if len(s.Preferences) == 0 {
		return fmt.Errorf("%w: no preferences", ErrInvalidPreferences)
	}
	if s.Target < 1 {
		return fmt.Errorf("%w: target must be >= 1, got %d", ErrInvalidPreferences, s.Target)
	}
	seen := make(map[int]bool, len(s.Preferences))
	for _, p := range s.Preferences {
		if seen[p.Priority] {
			return fmt.Errorf("%w: duplicate priority %d", ErrInvalidPreferences, p.Priority)
		}
		seen[p.Priority] = true
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPreferences, err)
		}
	}
	return nil
}

// Ordered returns a copy of the preferences sorted by ascending priority.
func (s PreferenceSet) Ordered() []Preference {
	out := make([]Preference, len(s.Preferences))
	copy(out, s.Preferences)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// DefaultPreferences is used when no preference source is reachable.
func DefaultPreferences() PreferenceSet {
	return PreferenceSet{
		Target: 1,
		Preferences: []Preference{
			{Priority: 1, Window: At(NewClock(8, 7)), Tee: 10, Holes: HolesEighteen, Transport: TransportCart, Guests: 3},
		},
	}
}

func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
