// Package preffile reads a preference list from a YAML file:
//
//	target: 2
//	preferences:
//	  - priority: 1
//	    time: "8:07"
//	    tee: 10
//	    holes: 18
//	    transport: CART
//	    guests: 3
package preffile

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"gopkg.in/yaml.v3"
)

type document struct {
	Target      int     `yaml:"target"`
	Preferences []entry `yaml:"preferences"`
}

type entry struct {
	Priority  int    `yaml:"priority"`
	Time      string `yaml:"time"`
	Tee       int    `yaml:"tee"`
	Holes     int    `yaml:"holes"`
	Transport string `yaml:"transport"`
	Guests    *int   `yaml:"guests"`
}

type Source struct {
	Path string
}

func (s Source) LoadPreferences(_ context.Context) (booking.PreferenceSet, error) {
	if s.Path == "" {
		return booking.PreferenceSet{}, errors.New("preffile: no path configured")
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return booking.PreferenceSet{}, fmt.Errorf("preffile: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a preference document.
func Parse(b []byte) (booking.PreferenceSet, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return booking.PreferenceSet{}, fmt.Errorf("preffile: %w", err)
	}
	set := booking.PreferenceSet{Target: doc.Target}
	if set.Target == 0 {
		set.Target = 1
	}
	for i, e := range doc.Preferences {
		w, err := booking.ParseTimeWindow(e.Time)
		if err != nil {
			return booking.PreferenceSet{}, fmt.Errorf("preffile: preference %d: %w", i+1, err)
		}
		p := booking.Preference{
			Priority:  e.Priority,
			Window:    w,
			Tee:       e.Tee,
			Holes:     booking.HoleCount(e.Holes),
			Transport: booking.ParseTransport(e.Transport),
			Guests:    booking.MaxGuests,
		}
		if p.Holes == 0 {
			p.Holes = booking.HolesEighteen
		}
		if e.Guests != nil {
			p.Guests = *e.Guests
		}
		set.Preferences = append(set.Preferences, p)
	}
	if err := set.Validate(); err != nil {
		return booking.PreferenceSet{}, err
	}
	return set, nil
}

// Marshal renders a set in the file format, for `prefs show`.
func Marshal(set booking.PreferenceSet) ([]byte, error) {
	doc := document{Target: set.Target}
	for _, p := range set.Ordered() {
		g := p.Guests
		doc.Preferences = append(doc.Preferences, entry{
			Priority:  p.Priority,
			Time:      p.Window.String(),
			Tee:       p.Tee,
			Holes:     int(p.Holes),
			Transport: string(p.Transport),
			Guests:    &g,
		})
	}
	return yaml.Marshal(doc)
}
